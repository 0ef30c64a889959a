package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/skillsync/internal/feedgen"
)

// Default configuration constants.
const (
	defaultUsers    = 50
	defaultSkills   = 6
	defaultUpdates  = 20
	defaultProjects = 3
	defaultReplays  = 25
	defaultWorkers  = 2 // multiplier for runtime.NumCPU()
	defaultTimeout  = 30 * time.Second
	defaultSettle   = 10 * time.Second
	defaultRunLimit = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		users      = flag.Int("users", defaultUsers, "Number of synthetic users")
		skills     = flag.Int("skills", defaultSkills, "Skills inserted per user")
		updates    = flag.Int("updates", defaultUpdates, "Proficiency updates per user")
		projects   = flag.Int("projects", defaultProjects, "Projects owned per user")
		replays    = flag.Int("replays", defaultReplays, "Envelopes resent to exercise deduplication")
		role       = flag.String("role", "Backend Engineer", "Role used for the gap check")
		seed       = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Seed for generated values")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", defaultSettle, "How long live views may take to converge")
		outputFile = flag.String("output", "", "Output file for envelopes (default: generated_envelopes_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for run output (default: feed_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		feedgen.ShowHelp()
		return
	}

	if err := feedgen.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunLimit)
	defer cancel()

	config := &feedgen.Config{
		BaseURL:         *baseURL,
		Users:           *users,
		SkillsPerUser:   *skills,
		UpdatesPerUser:  *updates,
		ProjectsPerUser: *projects,
		Replays:         *replays,
		Role:            *role,
		Seed:            *seed,
		Workers:         *workers,
		Timeout:         *timeout,
		Settle:          *settle,
		OutputFile:      *outputFile,
		LogFile:         *logFile,
		Verbose:         *verbose,
	}

	if err := feedgen.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Feed run failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
