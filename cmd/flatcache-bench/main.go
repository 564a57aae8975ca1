package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/flatcache/flatcache/pkg/cache"
	"github.com/flatcache/flatcache/pkg/filestore"
)

const (
	defaultValueSize = 100
	defaultFileCount = 100000
)

var (
	// Command line flags
	benchmarkType = flag.String("type", "all", "Type of benchmark to run (write, read, overwrite, mixed, verify, or all)")
	duration      = flag.Duration("duration", 10*time.Second, "Duration to run the benchmark")
	numFiles      = flag.Int("files", defaultFileCount, "Number of file ids to use")
	valueSize     = flag.Int("value-size", defaultValueSize, "Size of values in bytes")
	dataDir       = flag.String("data-dir", "./benchmark-data", "Directory to store benchmark data")
	storeIndex    = flag.Int("store", 0, "Store index to benchmark (0-255)")
	sequential    = flag.Bool("sequential", false, "Use sequential file ids instead of random")
	randSeed      = flag.Int64("seed", 0, "Seed for the id generator (0 means time-based)")
	cpuProfile    = flag.String("cpu-profile", "", "Write CPU profile to file")
	memProfile    = flag.String("mem-profile", "", "Write memory profile to file")
	resultsFile   = flag.String("results", "", "File to write results to (in addition to stdout)")
)

func main() {
	flag.Parse()

	// Set up CPU profiling if requested
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	// Remove any existing benchmark data before starting
	if _, err := os.Stat(*dataDir); err == nil {
		fmt.Println("Cleaning previous benchmark data...")
		if err := os.RemoveAll(*dataDir); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to clean benchmark directory: %v\n", err)
		}
	}

	// Open the cache
	c, err := cache.Open(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open cache: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	st, err := c.Store(*storeIndex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store %d: %v\n", *storeIndex, err)
		os.Exit(1)
	}

	// Prepare result output
	var results []string
	results = append(results, fmt.Sprintf("Benchmark Report (%s)", time.Now().Format(time.RFC3339)))
	results = append(results, fmt.Sprintf("Files: %d, Value Size: %d bytes, Duration: %s, Mode: %s",
		*numFiles, *valueSize, *duration, idMode()))

	// Run the specified benchmarks
	types := strings.Split(*benchmarkType, ",")
	for _, typ := range types {
		switch strings.ToLower(typ) {
		case "write":
			results = append(results, runWriteBenchmark(st))
		case "read":
			results = append(results, runReadBenchmark(st))
		case "overwrite":
			results = append(results, runOverwriteBenchmark(st))
		case "mixed":
			results = append(results, runMixedBenchmark(st))
		case "verify":
			results = append(results, runVerifyBenchmark(c))
		case "all":
			results = append(results, runWriteBenchmark(st))
			results = append(results, runReadBenchmark(st))
			results = append(results, runOverwriteBenchmark(st))
			results = append(results, runMixedBenchmark(st))
			results = append(results, runVerifyBenchmark(c))
		default:
			fmt.Fprintf(os.Stderr, "Unknown benchmark type: %s\n", typ)
			os.Exit(1)
		}
	}

	// Print results
	for _, result := range results {
		fmt.Println(result)
	}

	// Write results to file if requested
	if *resultsFile != "" {
		err := os.WriteFile(*resultsFile, []byte(strings.Join(results, "\n")), 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write results to file: %v\n", err)
		}
	}

	// Write memory profile if requested
	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create memory profile: %v\n", err)
		} else {
			defer f.Close()
			runtime.GC() // Run GC before taking memory profile
			if err := pprof.WriteHeapProfile(f); err != nil {
				fmt.Fprintf(os.Stderr, "Could not write memory profile: %v\n", err)
			}
		}
	}
}

// idMode returns a string describing the id generation mode
func idMode() string {
	if *sequential {
		return "Sequential"
	}
	return "Random"
}

// newRand builds the id generator, seeded from -seed for repeatable runs.
func newRand() *rand.Rand {
	seed := *randSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// generateID picks the file id for the next operation.
func generateID(r *rand.Rand, counter int) uint32 {
	if *sequential {
		return uint32(counter % *numFiles)
	}
	return uint32(r.Intn(*numFiles))
}

// fillValue writes the deterministic payload for a file id.
func fillValue(dst []byte, id uint32) {
	for i := range dst {
		dst[i] = byte(uint32(i)*31 + id)
	}
}

// runWriteBenchmark benchmarks write performance
func runWriteBenchmark(st *filestore.Store) string {
	fmt.Println("Running Write Benchmark...")

	// Larger values take more frames per put, so check the clock in
	// smaller batches
	batchSize := 1000
	if *valueSize > 4096 {
		batchSize = 100
	} else if *valueSize > 1024 {
		batchSize = 500
	}

	start := time.Now()
	deadline := start.Add(*duration)

	value := make([]byte, *valueSize)
	r := newRand()

	var opsCount int
	var consecutiveErrors int
	maxConsecutiveErrors := 10

	for time.Now().Before(deadline) {
		for i := 0; i < batchSize && time.Now().Before(deadline); i++ {
			id := generateID(r, opsCount)
			fillValue(value, id)

			if err := st.Put(id, value, len(value)); err != nil {
				fmt.Fprintf(os.Stderr, "Write error (file %d): %v\n", id, err)
				consecutiveErrors++
				if consecutiveErrors >= maxConsecutiveErrors {
					fmt.Fprintf(os.Stderr, "Too many consecutive errors, stopping benchmark\n")
					goto benchmarkEnd
				}
				continue
			}

			consecutiveErrors = 0
			opsCount++
		}
	}

benchmarkEnd:
	elapsed := time.Since(start)
	opsPerSecond := float64(opsCount) / elapsed.Seconds()
	mbPerSecond := float64(opsCount) * float64(*valueSize) / (1024 * 1024) / elapsed.Seconds()

	result := fmt.Sprintf("\nWrite Benchmark Results:")
	result += fmt.Sprintf("\n  Id Mode: %s", idMode())
	result += fmt.Sprintf("\n  Operations: %d", opsCount)
	result += fmt.Sprintf("\n  Data Written: %.2f MB", float64(opsCount)*float64(*valueSize)/(1024*1024))
	result += fmt.Sprintf("\n  Time: %.2f seconds", elapsed.Seconds())
	result += fmt.Sprintf("\n  Throughput: %.2f ops/sec (%.2f MB/sec)", opsPerSecond, mbPerSecond)
	result += fmt.Sprintf("\n  Latency: %.3f µs/op", 1000000.0/opsPerSecond)
	result += fmt.Sprintf("\n  Note: Random mode rewrites ids it has seen before, sequential mode wraps after -files")

	return result
}

// runReadBenchmark benchmarks read performance against known contents
func runReadBenchmark(st *filestore.Store) string {
	fmt.Println("Preparing data for Read Benchmark...")

	actualNumFiles := *numFiles
	if actualNumFiles > 100000 {
		actualNumFiles = 100000
		fmt.Println("Limiting to 100,000 files for preparation phase")
	}

	// Write every file and remember its digest so reads can be checked
	value := make([]byte, *valueSize)
	digests := make([]uint64, actualNumFiles)

	for i := 0; i < actualNumFiles; i++ {
		id := uint32(i)
		fillValue(value, id)
		digests[i] = xxhash.Sum64(value)

		if err := st.Put(id, value, len(value)); err != nil {
			fmt.Fprintf(os.Stderr, "Write error during preparation: %v\n", err)
			return "Read Benchmark Failed: Error preparing data"
		}
	}

	fmt.Println("Running Read Benchmark...")
	start := time.Now()
	deadline := start.Add(*duration)

	var opsCount, hitCount, corruptCount int
	r := newRand()

	for time.Now().Before(deadline) {
		batchSize := 1000
		for i := 0; i < batchSize && time.Now().Before(deadline); i++ {
			idx := r.Intn(actualNumFiles)

			val := st.Get(uint32(idx))
			if val != nil {
				hitCount++
				if xxhash.Sum64(val) != digests[idx] {
					corruptCount++
				}
			}
			opsCount++
		}
	}

	elapsed := time.Since(start)
	opsPerSecond := float64(opsCount) / elapsed.Seconds()
	mbPerSecond := float64(hitCount) * float64(*valueSize) / (1024 * 1024) / elapsed.Seconds()
	hitRate := float64(hitCount) / float64(opsCount) * 100

	result := fmt.Sprintf("\nRead Benchmark Results:")
	result += fmt.Sprintf("\n  Operations: %d", opsCount)
	result += fmt.Sprintf("\n  Hit Rate: %.2f%%", hitRate)
	result += fmt.Sprintf("\n  Digest Mismatches: %d", corruptCount)
	result += fmt.Sprintf("\n  Time: %.2f seconds", elapsed.Seconds())
	result += fmt.Sprintf("\n  Throughput: %.2f ops/sec (%.2f MB/sec)", opsPerSecond, mbPerSecond)
	result += fmt.Sprintf("\n  Latency: %.3f µs/op", 1000000.0/opsPerSecond)

	return result
}

// runOverwriteBenchmark benchmarks rewriting existing files with sizes
// that grow and shrink, which keeps the chain reuse path busy
func runOverwriteBenchmark(st *filestore.Store) string {
	fmt.Println("Preparing data for Overwrite Benchmark...")

	actualNumFiles := *numFiles
	if actualNumFiles > 10000 {
		actualNumFiles = 10000
		fmt.Println("Limiting to 10,000 files for overwrite benchmark")
	}

	value := make([]byte, *valueSize*2)
	for i := 0; i < actualNumFiles; i++ {
		id := uint32(i)
		fillValue(value[:*valueSize], id)
		if err := st.Put(id, value[:*valueSize], *valueSize); err != nil {
			fmt.Fprintf(os.Stderr, "Write error during preparation: %v\n", err)
			return "Overwrite Benchmark Failed: Error preparing data"
		}
	}

	fmt.Println("Running Overwrite Benchmark...")
	start := time.Now()
	deadline := start.Add(*duration)

	var opsCount int
	var bytesWritten int64
	var consecutiveErrors int
	maxConsecutiveErrors := 10
	r := newRand()

	for time.Now().Before(deadline) {
		batchSize := 1000
		for i := 0; i < batchSize && time.Now().Before(deadline); i++ {
			id := uint32(r.Intn(actualNumFiles))
			size := 1 + r.Intn(*valueSize*2)
			fillValue(value[:size], id)

			if err := st.Put(id, value[:size], size); err != nil {
				fmt.Fprintf(os.Stderr, "Overwrite error (file %d): %v\n", id, err)
				consecutiveErrors++
				if consecutiveErrors >= maxConsecutiveErrors {
					fmt.Fprintf(os.Stderr, "Too many consecutive errors, stopping benchmark\n")
					goto benchmarkEnd
				}
				continue
			}

			consecutiveErrors = 0
			opsCount++
			bytesWritten += int64(size)
		}
	}

benchmarkEnd:
	elapsed := time.Since(start)
	opsPerSecond := float64(opsCount) / elapsed.Seconds()
	mbPerSecond := float64(bytesWritten) / (1024 * 1024) / elapsed.Seconds()

	result := fmt.Sprintf("\nOverwrite Benchmark Results:")
	result += fmt.Sprintf("\n  Operations: %d", opsCount)
	result += fmt.Sprintf("\n  Data Written: %.2f MB", float64(bytesWritten)/(1024*1024))
	result += fmt.Sprintf("\n  Time: %.2f seconds", elapsed.Seconds())
	result += fmt.Sprintf("\n  Throughput: %.2f ops/sec (%.2f MB/sec)", opsPerSecond, mbPerSecond)
	result += fmt.Sprintf("\n  Latency: %.3f µs/op", 1000000.0/opsPerSecond)
	result += fmt.Sprintf("\n  Note: Sizes vary between 1 byte and twice -value-size to exercise chain reuse")

	return result
}

// runMixedBenchmark benchmarks a mix of read and write operations
func runMixedBenchmark(st *filestore.Store) string {
	fmt.Println("Preparing data for Mixed Benchmark...")

	actualNumFiles := *numFiles / 2
	if actualNumFiles > 50000 {
		actualNumFiles = 50000
		fmt.Println("Limiting to 50,000 initial files for mixed benchmark")
	}
	if actualNumFiles == 0 {
		actualNumFiles = 1
	}

	value := make([]byte, *valueSize)
	for i := 0; i < actualNumFiles; i++ {
		id := uint32(i)
		fillValue(value, id)
		if err := st.Put(id, value, len(value)); err != nil {
			fmt.Fprintf(os.Stderr, "Write error during preparation: %v\n", err)
			return "Mixed Benchmark Failed: Error preparing data"
		}
	}

	fmt.Println("Running Mixed Benchmark (75% reads, 25% writes)...")
	start := time.Now()
	deadline := start.Add(*duration)

	var readOps, writeOps int
	r := newRand()

	idCounter := actualNumFiles

	for time.Now().Before(deadline) {
		batchSize := 1000
		for i := 0; i < batchSize && time.Now().Before(deadline); i++ {
			// Decide operation: 75% reads, 25% writes
			if r.Float64() < 0.75 {
				// Read operation, random existing id
				st.Get(uint32(r.Intn(idCounter)))
				readOps++
			} else {
				// Write operation, new id
				id := uint32(idCounter)
				idCounter++
				fillValue(value, id)

				if err := st.Put(id, value, len(value)); err != nil {
					fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
					continue
				}
				writeOps++
			}
		}
	}

	elapsed := time.Since(start)
	totalOps := readOps + writeOps
	opsPerSecond := float64(totalOps) / elapsed.Seconds()
	readRatio := float64(readOps) / float64(totalOps) * 100
	writeRatio := float64(writeOps) / float64(totalOps) * 100

	result := fmt.Sprintf("\nMixed Benchmark Results:")
	result += fmt.Sprintf("\n  Total Operations: %d", totalOps)
	result += fmt.Sprintf("\n  Read Operations: %d (%.1f%%)", readOps, readRatio)
	result += fmt.Sprintf("\n  Write Operations: %d (%.1f%%)", writeOps, writeRatio)
	result += fmt.Sprintf("\n  Time: %.2f seconds", elapsed.Seconds())
	result += fmt.Sprintf("\n  Throughput: %.2f ops/sec", opsPerSecond)
	result += fmt.Sprintf("\n  Latency: %.3f µs/op", 1000000.0/opsPerSecond)

	return result
}

// runVerifyBenchmark times full integrity sweeps over one store
func runVerifyBenchmark(c *cache.Cache) string {
	fmt.Println("Preparing data for Verify Benchmark...")

	st, err := c.Store(*storeIndex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store %d: %v\n", *storeIndex, err)
		return "Verify Benchmark Failed: Error opening store"
	}

	actualNumFiles := *numFiles
	if actualNumFiles > 100000 {
		actualNumFiles = 100000
		fmt.Println("Limiting to 100,000 files for verify benchmark")
	}

	value := make([]byte, *valueSize)
	for i := 0; i < actualNumFiles; i++ {
		id := uint32(i)
		fillValue(value, id)
		if err := st.Put(id, value, len(value)); err != nil {
			fmt.Fprintf(os.Stderr, "Write error during preparation: %v\n", err)
			return "Verify Benchmark Failed: Error preparing data"
		}
	}

	fmt.Println("Running Verify Benchmark...")
	start := time.Now()
	deadline := start.Add(*duration)

	var passes, filesChecked, damaged int

	for time.Now().Before(deadline) {
		checks, err := c.Verify(*storeIndex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Verify error: %v\n", err)
			break
		}

		for _, chk := range checks {
			if chk.Status == cache.StatusDamaged {
				damaged++
			}
		}
		filesChecked += len(checks)
		passes++
	}

	elapsed := time.Since(start)
	filesPerSecond := float64(filesChecked) / elapsed.Seconds()
	mbPerSecond := float64(filesChecked) * float64(*valueSize) / (1024 * 1024) / elapsed.Seconds()

	result := fmt.Sprintf("\nVerify Benchmark Results:")
	result += fmt.Sprintf("\n  Passes: %d", passes)
	result += fmt.Sprintf("\n  Files Checked: %d", filesChecked)
	result += fmt.Sprintf("\n  Damaged: %d", damaged)
	result += fmt.Sprintf("\n  Time: %.2f seconds", elapsed.Seconds())
	result += fmt.Sprintf("\n  Throughput: %.2f files/sec (%.2f MB/sec)", filesPerSecond, mbPerSecond)

	return result
}
