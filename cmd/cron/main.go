// Command cron triggers one campaign batch on the dispatch server. It is
// meant to be run by a scheduler (ECS scheduled task, Kubernetes CronJob,
// crontab) every few minutes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/ignite/dm-dispatch/internal/config"
	"github.com/ignite/dm-dispatch/internal/pkg/httpretry"
	"github.com/ignite/dm-dispatch/internal/service/dispatch"
)

type batchResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	dispatch.BatchResult
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Cron.TargetURL == "" {
		log.Fatal("CRON_TARGET_URL is required")
	}
	if cfg.Cron.Secret == "" {
		log.Fatal("CRON_SECRET is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Cron.Timeout())
	defer cancel()

	client := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Cron.Timeout()}, cfg.Cron.MaxRetries,
		httpretry.WithBackoff(500*time.Millisecond, 5*time.Second))

	res, err := trigger(ctx, client, cfg.Cron.TargetURL, cfg.Cron.Secret)
	if err != nil {
		log.Fatalf("Batch trigger failed: %v", err)
	}
	if res.Skipped {
		log.Println("Batch skipped: another run holds the lock")
		return
	}
	log.Printf("Batch done: processed=%d failed=%d total=%d", res.Processed, res.Failed, res.Total)
	for _, c := range res.Campaigns {
		if !c.Success {
			log.Printf("  campaign %s (%s) failed: %s", c.CampaignID, c.Name, c.Error)
		}
	}
}

// trigger POSTs to the batch endpoint. The batch is idempotent, so the
// retrying client may safely repeat the call.
func trigger(ctx context.Context, client httpretry.HTTPDoer, url, secret string) (*batchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out batchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("status %d: decode response: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !out.Success {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, out.Error)
	}
	return &out, nil
}
