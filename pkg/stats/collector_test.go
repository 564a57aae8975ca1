package stats

import (
	"sync"
	"testing"
)

func TestCollector_TrackOperation(t *testing.T) {
	collector := NewCollector()

	// Track operations
	collector.TrackOperation(OpPut)
	collector.TrackOperation(OpPut)
	collector.TrackOperation(OpGet)

	// Get stats
	stats := collector.GetStats()

	// Verify counts
	if stats["put_ops"].(uint64) != 2 {
		t.Errorf("Expected 2 put operations, got %v", stats["put_ops"])
	}

	if stats["get_ops"].(uint64) != 1 {
		t.Errorf("Expected 1 get operation, got %v", stats["get_ops"])
	}

	// Verify last operation times exist
	if _, exists := stats["last_put_time"]; !exists {
		t.Errorf("Expected last_put_time to exist in stats")
	}

	if _, exists := stats["last_get_time"]; !exists {
		t.Errorf("Expected last_get_time to exist in stats")
	}
}

func TestCollector_TrackMissAndFallback(t *testing.T) {
	collector := NewCollector()

	collector.TrackMiss()
	collector.TrackMiss()
	collector.TrackFallback()

	stats := collector.GetStats()

	if misses := stats["miss_count"].(uint64); misses != 2 {
		t.Errorf("Expected 2 misses, got %v", misses)
	}

	if fallbacks := stats["fallback_count"].(uint64); fallbacks != 1 {
		t.Errorf("Expected 1 fallback, got %v", fallbacks)
	}
}

func TestCollector_TrackError(t *testing.T) {
	collector := NewCollector()

	collector.TrackError(ErrCorruptChain)
	collector.TrackError(ErrCorruptChain)
	collector.TrackError(ErrIOFault)

	stats := collector.GetStats()
	errorStats, ok := stats["errors"].(map[string]uint64)
	if !ok {
		t.Fatalf("Expected errors to be a map, got %T", stats["errors"])
	}

	if errorStats[ErrCorruptChain] != 2 {
		t.Errorf("Expected 2 corrupt chain errors, got %v", errorStats[ErrCorruptChain])
	}

	if errorStats[ErrIOFault] != 1 {
		t.Errorf("Expected 1 io fault, got %v", errorStats[ErrIOFault])
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	collector := NewCollector()
	const numGoroutines = 10
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	// Launch goroutines to track operations concurrently
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			for j := 0; j < opsPerGoroutine; j++ {
				// Mix different operations
				switch j % 3 {
				case 0:
					collector.TrackOperation(OpPut)
				case 1:
					collector.TrackOperation(OpGet)
				case 2:
					collector.TrackMiss()
				}
			}
		}(i)
	}

	wg.Wait()

	// Get stats
	stats := collector.GetStats()

	// Atomic counters lose nothing, so the counts are exact
	expectedPuts := uint64(numGoroutines * ((opsPerGoroutine + 2) / 3))
	expectedGets := uint64(numGoroutines * ((opsPerGoroutine + 1) / 3))
	expectedMisses := uint64(numGoroutines * (opsPerGoroutine / 3))

	if ops := stats["put_ops"].(uint64); ops != expectedPuts {
		t.Errorf("Expected %d put operations, got %v", expectedPuts, ops)
	}

	if ops := stats["get_ops"].(uint64); ops != expectedGets {
		t.Errorf("Expected %d get operations, got %v", expectedGets, ops)
	}

	if misses := stats["miss_count"].(uint64); misses != expectedMisses {
		t.Errorf("Expected %d misses, got %v", expectedMisses, misses)
	}
}

func TestCollector_GetStatsFiltered(t *testing.T) {
	collector := NewCollector()

	// Track different operations
	collector.TrackOperation(OpPut)
	collector.TrackOperation(OpGet)
	collector.TrackOperation(OpGet)
	collector.TrackError(ErrIOFault)

	// Filter by "get" prefix
	getStats := collector.GetStatsFiltered("get")

	// Should only contain get_ops and related stats
	if len(getStats) == 0 {
		t.Errorf("Expected non-empty filtered stats")
	}

	if _, exists := getStats["get_ops"]; !exists {
		t.Errorf("Expected get_ops in filtered stats")
	}

	if _, exists := getStats["put_ops"]; exists {
		t.Errorf("Did not expect put_ops in get-filtered stats")
	}

	// Filter by "error" prefix
	errorStats := collector.GetStatsFiltered("error")

	if _, exists := errorStats["errors"]; !exists {
		t.Errorf("Expected errors in error-filtered stats")
	}
}

func TestCollector_TrackBytes(t *testing.T) {
	collector := NewCollector()

	// Track read and write bytes
	collector.TrackBytes(true, 1000) // write
	collector.TrackBytes(false, 500) // read

	stats := collector.GetStats()

	if bytesWritten := stats["total_bytes_written"].(uint64); bytesWritten != 1000 {
		t.Errorf("Expected 1000 bytes written, got %v", bytesWritten)
	}

	if bytesRead := stats["total_bytes_read"].(uint64); bytesRead != 500 {
		t.Errorf("Expected 500 bytes read, got %v", bytesRead)
	}
}
