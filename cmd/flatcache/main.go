package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"github.com/flatcache/flatcache/pkg/cache"
	"github.com/flatcache/flatcache/pkg/container"
	"github.com/flatcache/flatcache/pkg/filestore"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".close"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem("STORE"),
	readline.PcItem("COUNT"),
	readline.PcItem("SIZE"),
	readline.PcItem("PUT"),
	readline.PcItem("GET"),
	readline.PcItem("IMPORT"),
	readline.PcItem("EXPORT"),
	readline.PcItem("PACK"),
	readline.PcItem("UNPACK"),
	readline.PcItem("VERIFY"),
)

const helpText = `
Flatcache (flatcache) - A sector-chained binary block store.

Usage:
  flatcache [options] [cache_path]  - Start with an optional cache directory

Options:
  -log-level string       - Log level: trace, debug, info, warn, error (default "info")
  -prefix string          - File prefix when creating a new cache (default "store")
  -max-size int           - Per-file size limit when creating a new cache

Commands (interactive mode only):
  .help                   - Show this help message
  .open PATH              - Open a cache at PATH
  .close                  - Close the current cache
  .exit                   - Exit the program
  .stats                  - Show cache statistics

  STORE n                 - Select store n (0-255, default 0)
  COUNT                   - Show the number of index records in the selected store
  SIZE id                 - Show the stored size of a file
  PUT id value            - Store a value given on the command line
  GET id                  - Retrieve a file and print it
  IMPORT id path          - Store the contents of a local file
  EXPORT id path          - Write a stored file to a local file
  PACK id path [codec]    - Compress a local file into a container and store it
                          - Codecs: gzip (default), none
  UNPACK id path          - Retrieve a container, decode it, write out the payload
  VERIFY [n]              - Check every file in store n (default: selected store)
`

// Config holds the application configuration
type Config struct {
	CachePath   string
	LogLevel    string
	FilePrefix  string
	MaxFileSize int
}

func main() {
	// Parse command line arguments and get configuration
	config := parseFlags()

	logger := newLogger(config.LogLevel)

	// Open cache if path provided
	var c *cache.Cache
	var err error

	if config.CachePath != "" {
		fmt.Printf("Opening cache at %s\n", config.CachePath)
		c, err = openCache(config.CachePath, config, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening cache: %s\n", err)
			os.Exit(1)
		}
		defer c.Close()
	}

	// Run in interactive mode
	runInteractive(c, config.CachePath, config, logger)
}

// parseFlags parses command line flags and returns a Config
func parseFlags() Config {
	// Define custom usage message
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Flatcache - A sector-chained binary block store\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: flatcache [options] [cache_path]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Flatcache runs in interactive mode with a command-line interface.\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nInteractive mode commands:\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  STORE n                 - Select a store by index\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  PUT id value            - Store a value\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  GET id                  - Retrieve a value\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  IMPORT id path          - Store a local file\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  EXPORT id path          - Write a stored file out\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  VERIFY                  - Check every file in the selected store\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  .help                   - Show detailed help\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  .exit                   - Exit the program\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "For more details, start flatcache and type .help\n")
	}

	logLevel := flag.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	filePrefix := flag.String("prefix", "", "File prefix when creating a new cache (default \"store\")")
	maxFileSize := flag.Int("max-size", 0, "Per-file size limit when creating a new cache (default 16777215)")

	// Parse flags
	flag.Parse()

	// Get cache path from remaining arguments
	var cachePath string
	if flag.NArg() > 0 {
		cachePath = flag.Arg(0)
	}

	return Config{
		CachePath:   cachePath,
		LogLevel:    *logLevel,
		FilePrefix:  *filePrefix,
		MaxFileSize: *maxFileSize,
	}
}

// newLogger builds a console logger at the requested level.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unknown log level %q, using info\n", level)
		lvl = zerolog.InfoLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// openCache opens the cache at path, applying any creation settings
// given on the command line. An existing manifest still wins over them.
func openCache(path string, config Config, logger zerolog.Logger) (*cache.Cache, error) {
	opts := []cache.Option{cache.WithLogger(logger)}
	if config.FilePrefix != "" || config.MaxFileSize > 0 {
		cfg := cache.NewDefaultConfig()
		if config.FilePrefix != "" {
			cfg.FilePrefix = config.FilePrefix
		}
		if config.MaxFileSize > 0 {
			cfg.MaxFileSize = config.MaxFileSize
		}
		opts = append(opts, cache.WithConfig(cfg))
	}
	return cache.Open(path, opts...)
}

// runInteractive starts the interactive CLI mode
func runInteractive(c *cache.Cache, dir string, config Config, logger zerolog.Logger) {
	fmt.Println("Flatcache (flatcache) version 1.0.0")
	fmt.Println("Enter .help for usage hints.")

	storeIdx := 0
	var err error

	// Setup readline with history support
	historyFile := filepath.Join(os.TempDir(), ".flatcache_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "flatcache> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	// openStore resolves the selected store on the open cache, printing
	// the reason when it cannot.
	openStore := func() *filestore.Store {
		if c == nil {
			fmt.Println("Error: No cache open")
			return nil
		}
		st, err := c.Store(storeIdx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store %d: %s\n", storeIdx, err)
			return nil
		}
		return st
	}

	for {
		// Update prompt based on current state
		var prompt string
		if dir != "" {
			prompt = fmt.Sprintf("flatcache:%s[s%d]> ", dir, storeIdx)
		} else {
			prompt = "flatcache> "
		}
		rl.SetPrompt(prompt)

		// Read command
		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				} else {
					continue
				}
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		// Line is already trimmed by readline
		if line == "" {
			continue
		}

		// Process command
		parts := strings.Fields(line)
		cmd := strings.ToUpper(parts[0])

		// Special dot commands
		if strings.HasPrefix(cmd, ".") {
			cmd = strings.ToLower(cmd)
			switch cmd {
			case ".help":
				fmt.Print(helpText)

			case ".open":
				if len(parts) < 2 {
					fmt.Println("Error: Missing path argument")
					continue
				}

				// Close any existing cache
				if c != nil {
					c.Close()
				}

				// Open the cache
				dir = parts[1]
				c, err = openCache(dir, config, logger)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error opening cache: %s\n", err)
					dir = ""
					c = nil
					continue
				}
				storeIdx = 0
				fmt.Printf("Cache opened at %s\n", dir)

			case ".close":
				if c == nil {
					fmt.Println("No cache open")
					continue
				}

				err = c.Close()
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error closing cache: %s\n", err)
				} else {
					fmt.Printf("Cache %s closed\n", dir)
					c = nil
					dir = ""
				}

			case ".exit":
				if c != nil {
					c.Close()
				}

				fmt.Println("Goodbye!")
				return

			case ".stats":
				if c == nil {
					fmt.Println("No cache open")
					continue
				}

				printStats(c)

			default:
				fmt.Printf("Unknown command: %s\n", cmd)
			}
			continue
		}

		// Regular commands
		switch cmd {
		case "STORE":
			if len(parts) < 2 {
				fmt.Println("Error: STORE requires a store number")
				continue
			}

			n, convErr := strconv.Atoi(parts[1])
			if convErr != nil || n < 0 || n > 255 {
				fmt.Println("Error: store number must be 0-255")
				continue
			}
			storeIdx = n

		case "COUNT":
			st := openStore()
			if st == nil {
				continue
			}

			fmt.Printf("%d index records\n", st.Count())

		case "SIZE":
			if len(parts) < 2 {
				fmt.Println("Error: SIZE requires a file id argument")
				continue
			}

			id, idErr := parseFileID(parts[1])
			if idErr != nil {
				fmt.Println("Error: invalid file id")
				continue
			}

			st := openStore()
			if st == nil {
				continue
			}

			size, ok := st.Size(id)
			if !ok {
				fmt.Println("File not found")
			} else {
				fmt.Printf("%d bytes\n", size)
			}

		case "PUT":
			if len(parts) < 3 {
				fmt.Println("Error: PUT requires id and value arguments")
				continue
			}

			id, idErr := parseFileID(parts[1])
			if idErr != nil {
				fmt.Println("Error: invalid file id")
				continue
			}

			st := openStore()
			if st == nil {
				continue
			}

			data := []byte(strings.Join(parts[2:], " "))
			if err := st.Put(id, data, len(data)); err != nil {
				fmt.Fprintf(os.Stderr, "Error storing file: %s\n", err)
			} else {
				fmt.Println("Value stored")
			}

		case "GET":
			if len(parts) < 2 {
				fmt.Println("Error: GET requires a file id argument")
				continue
			}

			id, idErr := parseFileID(parts[1])
			if idErr != nil {
				fmt.Println("Error: invalid file id")
				continue
			}

			st := openStore()
			if st == nil {
				continue
			}

			val := st.Get(id)
			if val == nil {
				fmt.Println("File not found")
			} else if isPrintable(val) {
				fmt.Printf("%s\n", val)
			} else {
				fmt.Printf("%d bytes of binary data, use EXPORT to write it to a file\n", len(val))
			}

		case "IMPORT":
			if len(parts) < 3 {
				fmt.Println("Error: IMPORT requires id and path arguments")
				continue
			}

			id, idErr := parseFileID(parts[1])
			if idErr != nil {
				fmt.Println("Error: invalid file id")
				continue
			}

			st := openStore()
			if st == nil {
				continue
			}

			data, readErr := os.ReadFile(parts[2])
			if readErr != nil {
				fmt.Fprintf(os.Stderr, "Error reading %s: %s\n", parts[2], readErr)
				continue
			}

			if err := st.Put(id, data, len(data)); err != nil {
				fmt.Fprintf(os.Stderr, "Error storing file: %s\n", err)
			} else {
				fmt.Printf("Stored %d bytes\n", len(data))
			}

		case "EXPORT":
			if len(parts) < 3 {
				fmt.Println("Error: EXPORT requires id and path arguments")
				continue
			}

			id, idErr := parseFileID(parts[1])
			if idErr != nil {
				fmt.Println("Error: invalid file id")
				continue
			}

			st := openStore()
			if st == nil {
				continue
			}

			val := st.Get(id)
			if val == nil {
				fmt.Println("File not found")
				continue
			}

			if err := os.WriteFile(parts[2], val, 0644); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing %s: %s\n", parts[2], err)
			} else {
				fmt.Printf("Wrote %d bytes to %s\n", len(val), parts[2])
			}

		case "PACK":
			if len(parts) < 3 {
				fmt.Println("Error: PACK requires id and path arguments")
				continue
			}

			id, idErr := parseFileID(parts[1])
			if idErr != nil {
				fmt.Println("Error: invalid file id")
				continue
			}

			codec := container.Gzip
			if len(parts) >= 4 {
				switch strings.ToLower(parts[3]) {
				case "gzip":
					codec = container.Gzip
				case "none":
					codec = container.None
				default:
					fmt.Printf("Error: unknown codec %q (gzip, none)\n", parts[3])
					continue
				}
			}

			st := openStore()
			if st == nil {
				continue
			}

			data, readErr := os.ReadFile(parts[2])
			if readErr != nil {
				fmt.Fprintf(os.Stderr, "Error reading %s: %s\n", parts[2], readErr)
				continue
			}

			blob, encErr := container.Encode(codec, data)
			if encErr != nil {
				fmt.Fprintf(os.Stderr, "Error encoding container: %s\n", encErr)
				continue
			}

			if err := st.Put(id, blob, len(blob)); err != nil {
				fmt.Fprintf(os.Stderr, "Error storing file: %s\n", err)
			} else {
				fmt.Printf("Stored %d bytes (%s, %d uncompressed)\n", len(blob), codec, len(data))
			}

		case "UNPACK":
			if len(parts) < 3 {
				fmt.Println("Error: UNPACK requires id and path arguments")
				continue
			}

			id, idErr := parseFileID(parts[1])
			if idErr != nil {
				fmt.Println("Error: invalid file id")
				continue
			}

			st := openStore()
			if st == nil {
				continue
			}

			blob := st.Get(id)
			if blob == nil {
				fmt.Println("File not found")
				continue
			}

			payload, decErr := container.Decode(blob)
			if decErr != nil {
				fmt.Fprintf(os.Stderr, "Error decoding container: %s\n", decErr)
				continue
			}

			if err := os.WriteFile(parts[2], payload, 0644); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing %s: %s\n", parts[2], err)
			} else {
				fmt.Printf("Wrote %d bytes to %s\n", len(payload), parts[2])
			}

		case "VERIFY":
			if c == nil {
				fmt.Println("Error: No cache open")
				continue
			}

			n := storeIdx
			if len(parts) >= 2 {
				v, convErr := strconv.Atoi(parts[1])
				if convErr != nil || v < 0 || v > 255 {
					fmt.Println("Error: store number must be 0-255")
					continue
				}
				n = v
			}

			checks, verr := c.Verify(n)
			if verr != nil {
				fmt.Fprintf(os.Stderr, "Error verifying store %d: %s\n", n, verr)
				continue
			}

			damaged := 0
			for _, chk := range checks {
				if chk.Status == cache.StatusDamaged {
					damaged++
					fmt.Printf("file %d: damaged (declared %d bytes)\n", chk.File, chk.Size)
				}
			}
			fmt.Printf("%d files checked, %d damaged\n", len(checks), damaged)

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}
	}
}

// printStats renders the cache counters in sections.
func printStats(c *cache.Cache) {
	stats := c.Stats()

	// Helper function to safely get a uint64 value with default
	getUint64 := func(m map[string]interface{}, key string, defaultVal uint64) uint64 {
		if val, ok := m[key]; ok {
			switch v := val.(type) {
			case uint64:
				return v
			case int64:
				return uint64(v)
			case int:
				return uint64(v)
			case float64:
				return uint64(v)
			default:
				return defaultVal
			}
		}
		return defaultVal
	}

	// Format human-readable time for the last operation timestamps
	var lastPutTime, lastGetTime, lastVerifyTime time.Time
	if putTime, ok := stats["last_put_time"].(int64); ok && putTime > 0 {
		lastPutTime = time.Unix(0, putTime)
	}
	if getTime, ok := stats["last_get_time"].(int64); ok && getTime > 0 {
		lastGetTime = time.Unix(0, getTime)
	}
	if verifyTime, ok := stats["last_verify_time"].(int64); ok && verifyTime > 0 {
		lastVerifyTime = time.Unix(0, verifyTime)
	}

	// Operations section
	fmt.Println("📊 Operations:")
	fmt.Printf("  • Puts: %d\n", getUint64(stats, "put_ops", 0))
	fmt.Printf("  • Gets: %d (Misses: %d)\n", getUint64(stats, "get_ops", 0), getUint64(stats, "miss_count", 0))
	fmt.Printf("  • Verifies: %d\n", getUint64(stats, "verify_ops", 0))

	// Last Operation Times
	fmt.Println("\n⏱️ Last Operation Times:")
	if !lastPutTime.IsZero() {
		fmt.Printf("  • Last Put: %s\n", lastPutTime.Format(time.RFC3339))
	} else {
		fmt.Printf("  • Last Put: Never\n")
	}
	if !lastGetTime.IsZero() {
		fmt.Printf("  • Last Get: %s\n", lastGetTime.Format(time.RFC3339))
	} else {
		fmt.Printf("  • Last Get: Never\n")
	}
	if !lastVerifyTime.IsZero() {
		fmt.Printf("  • Last Verify: %s\n", lastVerifyTime.Format(time.RFC3339))
	} else {
		fmt.Printf("  • Last Verify: Never\n")
	}

	// Storage metrics
	fmt.Println("\n💾 Storage:")
	fmt.Printf("  • Total Bytes Read: %d\n", getUint64(stats, "total_bytes_read", 0))
	fmt.Printf("  • Total Bytes Written: %d\n", getUint64(stats, "total_bytes_written", 0))
	fmt.Printf("  • Fallback Rewrites: %d\n", getUint64(stats, "fallback_count", 0))

	// Store layout
	fmt.Println("\n📋 Stores:")
	if stores, err := c.Stores(); err == nil {
		fmt.Printf("  • On Disk: %d\n", len(stores))
	}
	cfg := c.Config()
	fmt.Printf("  • File Prefix: %s\n", cfg.FilePrefix)
	fmt.Printf("  • Max File Size: %d bytes\n", cfg.MaxFileSize)

	// Error counts from the nested errors map
	if errorsMap, ok := stats["errors"].(map[string]uint64); ok && len(errorsMap) > 0 {
		fmt.Println("\n⚠️ Errors:")
		for errType, count := range errorsMap {
			// Format the error type for display
			displayKey := toTitle(strings.Replace(errType, "_", " ", -1))
			fmt.Printf("  • %s: %d\n", displayKey, count)
		}
	}
}

// parseFileID parses a decimal file id.
func parseFileID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(id), nil
}

// isPrintable reports whether data can go straight to the terminal.
func isPrintable(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, r := range string(data) {
		if r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// toTitle replaces strings.Title which is deprecated
// It converts the first character of each word to title case
func toTitle(s string) string {
	prev := ' '
	return strings.Map(
		func(r rune) rune {
			if unicode.IsSpace(prev) || unicode.IsPunct(prev) {
				prev = r
				return unicode.ToTitle(r)
			}
			prev = r
			return r
		},
		s)
}
