package feedgen

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/okian/skillsync/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "feed_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	if err := logger.InitWithWriter(multiWriter, "text"); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the feed tool.
func ShowHelp() {
	os.Stdout.WriteString(`SkillSync Feed Tool
===================

Drives a running service with realtime change events and checks that the
live views converge on the generated state.

Usage:
  go run ./cmd/feed-events [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -users int
        Number of synthetic users (default 50)
  -skills int
        Skills inserted per user (default 6)
  -updates int
        Proficiency updates per user (default 20)
  -projects int
        Projects owned per user (default 3)
  -replays int
        Envelopes resent to exercise deduplication (default 25)
  -role string
        Role used for the gap check (default "Backend Engineer")
  -seed uint
        Seed for generated values (default: current time)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -settle duration
        How long live views may take to converge (default 10s)
  -output string
        Output file for envelopes (default: generated_envelopes_TIMESTAMP.json)
  -log string
        Log file for run output (default: feed_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Run with default settings
  go run ./cmd/feed-events

  # Larger run against another instance
  go run ./cmd/feed-events -users 500 -updates 100 -workers 16 -url http://localhost:8080

  # Reproduce a previous run
  go run ./cmd/feed-events -seed 42 -verbose
`)
}
