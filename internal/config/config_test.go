package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
scheduler:
  cycle_minutes: 30
  staleness_days: 14
  max_per_cycle: 25
  reference_only: true
  worker_count: 8
search:
  primary_provider: brave
  providers: ["brave", "serpapi"]
  brave_key: brv-key
  timeout_seconds: 20
  cache_backend: redis
  cache_ttl_minutes: 15
  redis_addr: localhost:6379
scrape:
  backend: headless
  user_agent: custom-agent
  timeout_seconds: 40
vision:
  detect_url: http://models:9000/detect
  embed_url: http://models:9000/embed
  similarity_threshold: 0.75
  max_matches: 3
job:
  max_images_per_source: 10
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Scheduler.MaxPerCycle != 25 || !cfg.Scheduler.ReferenceOnly {
		t.Fatalf("expected scheduler overrides to apply: %+v", cfg.Scheduler)
	}
	if cfg.Search.PrimaryProvider != "brave" || cfg.Search.CacheBackend != "redis" {
		t.Fatalf("expected search overrides to apply: %+v", cfg.Search)
	}
	if cfg.Scrape.Backend != "headless" || cfg.Scrape.UserAgent != "custom-agent" {
		t.Fatalf("expected scrape overrides to apply: %+v", cfg.Scrape)
	}
	if cfg.Vision.SimilarityThreshold != 0.75 || cfg.Vision.MaxMatches != 3 {
		t.Fatalf("expected vision overrides to apply: %+v", cfg.Vision)
	}
	if cfg.Job.MaxImagesPerSource != 10 {
		t.Fatalf("expected job cap override, got %d", cfg.Job.MaxImagesPerSource)
	}
	if got := cfg.Staleness(); got != 14*24*time.Hour {
		t.Fatalf("expected 14 day staleness, got %v", got)
	}
	if got := cfg.CacheTTL(); got != 15*time.Minute {
		t.Fatalf("expected 15m cache TTL, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Vision.SimilarityThreshold != 0.8 {
		t.Fatalf("expected default threshold 0.8, got %v", cfg.Vision.SimilarityThreshold)
	}
	if cfg.Vision.MaxMatches != 5 {
		t.Fatalf("expected default max matches 5, got %d", cfg.Vision.MaxMatches)
	}
	if cfg.Job.MaxImagesPerSource != 20 || cfg.Job.MaxImagesPerPage != 50 {
		t.Fatalf("expected default image caps, got %+v", cfg.Job)
	}
	if cfg.Queue.Backend != "memory" || cfg.Archive.Backend != "noop" {
		t.Fatalf("expected local backends by default: %+v %+v", cfg.Queue, cfg.Archive)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080},
		Scheduler: SchedulerConfig{WorkerCount: 1, MaxPerCycle: 5},
		Search:    SearchConfig{TimeoutSeconds: 10},
		Vision:    VisionConfig{SimilarityThreshold: 0.8},
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no workers", func(c *Config) { c.Scheduler.WorkerCount = 0 }, "worker_count"},
		{"no cycle cap", func(c *Config) { c.Scheduler.MaxPerCycle = 0 }, "max_per_cycle"},
		{"bad timeout", func(c *Config) { c.Search.TimeoutSeconds = 0 }, "timeout_seconds"},
		{"bad threshold", func(c *Config) { c.Vision.SimilarityThreshold = 1.5 }, "similarity_threshold"},
		{"pubsub incomplete", func(c *Config) { c.Queue.Backend = "pubsub" }, "queue.project_id"},
		{"gcs incomplete", func(c *Config) { c.Archive.Backend = "gcs" }, "archive.gcs_bucket"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.substr) {
				t.Fatalf("expected error mentioning %q, got %v", tc.substr, err)
			}
		})
	}
}
