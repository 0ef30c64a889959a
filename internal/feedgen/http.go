package feedgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/skillsync/internal/domain/feed"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// do sends a request with an optional JSON body.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

// getJSON performs a GET and decodes a 200 response into v.
func (c *HTTPClient) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// watch opens live views for userID.
func (c *HTTPClient) watch(ctx context.Context, userID string) error {
	resp, err := c.do(ctx, http.MethodPut, "/watch/"+url.PathEscape(userID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("watch %s: unexpected status %d", userID, resp.StatusCode)
	}
	return nil
}

// unwatch closes the live views for userID.
func (c *HTTPClient) unwatch(ctx context.Context, userID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/watch/"+url.PathEscape(userID), nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// submitEnvelope posts one envelope and classifies the reply.
func (c *HTTPClient) submitEnvelope(ctx context.Context, env feed.Envelope) string {
	resp, err := c.do(ctx, http.MethodPost, "/events", env)
	if err != nil {
		return outcomeFailed
	}
	defer resp.Body.Close()

	var ack struct {
		Status    string `json:"status"`
		Duplicate bool   `json:"duplicate"`
	}
	switch resp.StatusCode {
	case StatusAccepted:
		return outcomeAccepted
	case StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&ack); err == nil && !ack.Duplicate {
			return outcomeAccepted
		}
		return outcomeDuplicate
	default:
		return outcomeFailed
	}
}

// submitPlans posts every plan's envelopes. A user's stream is always sent by
// a single worker so its changes arrive in order.
func submitPlans(ctx context.Context, config *Config, client *HTTPClient, plans []UserPlan, stats *Stats) {
	total := 0
	for _, p := range plans {
		total += len(p.Envelopes)
	}
	log.Printf("📤 Submitting %d envelopes for %d users with %d workers...", total, len(plans), config.Workers)

	var counters submitCounters
	var lastReport atomic.Int64
	reportInterval := time.Second

	planChan := make(chan UserPlan, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for plan := range planChan {
				for _, env := range plan.Envelopes {
					if ctx.Err() != nil {
						return
					}
					counters.add(client.submitEnvelope(ctx, env))

					now := time.Now().UnixNano()
					last := lastReport.Load()
					if now-last >= int64(reportInterval) && lastReport.CompareAndSwap(last, now) {
						sub, acc, dup, fail := counters.load()
						if config.Verbose {
							log.Printf("📊 Progress: %d/%d submitted (accepted: %d, duplicate: %d, failed: %d)",
								sub, total, acc, dup, fail)
						} else {
							fmt.Printf("\r📤 Submitted: %d/%d (accepted: %d, duplicate: %d, failed: %d)",
								sub, total, acc, dup, fail)
						}
					}
				}
			}
		}()
	}

	go func() {
		defer close(planChan)
		for _, plan := range plans {
			select {
			case <-ctx.Done():
				return
			case planChan <- plan:
			}
		}
	}()

	wg.Wait()
	if !config.Verbose {
		fmt.Println()
	}

	sub, acc, dup, fail := counters.load()
	stats.EnvelopesSubmitted += sub
	stats.EnvelopesAccepted += acc
	stats.EnvelopesDuplicate += dup
	stats.EnvelopesFailed += fail

	log.Printf(`✅ Envelope submission completed:
   Accepted: %d
   Duplicate: %d
   Failed: %d
`, stats.EnvelopesAccepted, stats.EnvelopesDuplicate, stats.EnvelopesFailed)
}

// replayEnvelopes resends up to n already accepted envelopes. Every replay
// must come back as a duplicate.
func replayEnvelopes(ctx context.Context, client *HTTPClient, plans []UserPlan, n int, stats *Stats) error {
	replayed, unexpected := 0, 0
	for _, plan := range plans {
		for _, env := range plan.Envelopes {
			if replayed == n {
				break
			}
			outcome := client.submitEnvelope(ctx, env)
			stats.EnvelopesSubmitted++
			switch outcome {
			case outcomeDuplicate:
				stats.EnvelopesDuplicate++
			case outcomeAccepted:
				stats.EnvelopesAccepted++
				unexpected++
			default:
				stats.EnvelopesFailed++
			}
			replayed++
		}
	}
	log.Printf("🔁 Replayed %d envelopes", replayed)
	if unexpected > 0 {
		return fmt.Errorf("%d replayed envelopes were accepted again", unexpected)
	}
	return nil
}

type submitCounters struct {
	submitted, accepted, duplicate, failed atomic.Int64
}

func (c *submitCounters) add(outcome string) {
	c.submitted.Add(1)
	switch outcome {
	case outcomeAccepted:
		c.accepted.Add(1)
	case outcomeDuplicate:
		c.duplicate.Add(1)
	default:
		c.failed.Add(1)
	}
}

func (c *submitCounters) load() (submitted, accepted, duplicate, failed int) {
	return int(c.submitted.Load()), int(c.accepted.Load()), int(c.duplicate.Load()), int(c.failed.Load())
}
