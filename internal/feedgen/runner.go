package feedgen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/internal/domain/roles"
	"github.com/okian/skillsync/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// Run executes a complete feed run against a live service.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting skillsync feed run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("users", config.Users),
		logger.Int("workers", config.Workers),
		logger.String("role", config.Role),
		logger.Any("seed", config.Seed),
		logger.Duration("timeout", config.Timeout),
		logger.Bool("verbose", config.Verbose))

	role, err := resolveRole(config.Role)
	if err != nil {
		return err
	}
	client := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate envelopes
	names := make([]string, 0, len(role.Requirements))
	for _, req := range role.Requirements {
		names = append(names, req.Name)
	}
	plans, err := generatePlans(ctx, config, names, stats)
	if err != nil {
		return fmt.Errorf("envelope generation failed: %w", err)
	}

	// Step 3: Open live views before anything is published
	for _, plan := range plans {
		if err := client.watch(ctx, plan.UserID); err != nil {
			return fmt.Errorf("watch failed: %w", err)
		}
		stats.UsersWatched++
	}
	defer func() {
		for _, plan := range plans {
			if err := client.unwatch(context.WithoutCancel(ctx), plan.UserID); err != nil {
				logger.Get().Warn(ctx, "unwatch failed", logger.String("userID", plan.UserID), logger.Error(err))
			}
		}
	}()

	// Step 4: Submit envelopes concurrently
	submitPlans(ctx, config, client, plans, stats)
	if stats.EnvelopesFailed > 0 {
		return fmt.Errorf("%d envelopes were rejected", stats.EnvelopesFailed)
	}

	// Step 5: Replays must be reported as duplicates
	if err := replayEnvelopes(ctx, client, plans, config.Replays, stats); err != nil {
		return fmt.Errorf("deduplication check failed: %w", err)
	}

	// Step 6: Verify the live views converged
	if err := verifyPlans(ctx, config, client, role, plans, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Step 7: Save envelopes to file
	if err := saveEnvelopesToFile(ctx, config, plans); err != nil {
		logger.Get().Warn(ctx, "failed to save envelopes to file", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	logger.Get().Info(ctx, "feed run completed successfully")
	return nil
}

// resolveRole looks the role up in the built-in catalog.
func resolveRole(name string) (model.Role, error) {
	catalog, err := roles.NewCatalog(roles.Default()...)
	if err != nil {
		return model.Role{}, err
	}
	return catalog.Get(name)
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	logger.Get().Info(ctx, "checking service health")

	resp, err := client.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	// The health route serves Prometheus metrics; any 200 is healthy.
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveEnvelopesToFile writes every generated envelope as one JSON array.
func saveEnvelopesToFile(ctx context.Context, config *Config, plans []UserPlan) error {
	if len(plans) == 0 {
		return fmt.Errorf("no envelopes to save")
	}

	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "generated_envelopes_" + timestamp + ".json"
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	all := make([]feed.Envelope, 0)
	for _, plan := range plans {
		for _, env := range plan.Envelopes {
			all = append(all, env)
		}
	}
	if err := enc.Encode(all); err != nil {
		return fmt.Errorf("failed to write envelopes: %w", err)
	}

	logger.Get().Info(ctx, "envelopes saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final run statistics.
func displayFinalStats(stats *Stats) {
	var acceptRate, envelopesPerSecond float64

	if stats.EnvelopesSubmitted > 0 {
		acceptRate = float64(stats.EnvelopesAccepted) / float64(stats.EnvelopesSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		envelopesPerSecond = float64(stats.EnvelopesSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("envelopesGenerated", stats.EnvelopesGenerated),
		logger.Int("envelopesSubmitted", stats.EnvelopesSubmitted),
		logger.Int("envelopesAccepted", stats.EnvelopesAccepted),
		logger.Int("envelopesDuplicate", stats.EnvelopesDuplicate),
		logger.Int("envelopesFailed", stats.EnvelopesFailed),
		logger.Int("usersWatched", stats.UsersWatched),
		logger.Int("usersVerified", stats.UsersVerified),
		logger.Int("usersMismatched", stats.UsersMismatched),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("envelopesPerSecond", envelopesPerSecond))
}
