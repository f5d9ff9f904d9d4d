// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Search    SearchConfig    `mapstructure:"search"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Vision    VisionConfig    `mapstructure:"vision"`
	Job       JobConfig       `mapstructure:"job"`
	DB        DBConfig        `mapstructure:"db"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SchedulerConfig governs priority selection and the dispatch cycle.
type SchedulerConfig struct {
	CycleMinutes   int  `mapstructure:"cycle_minutes"`
	StalenessDays  int  `mapstructure:"staleness_days"`
	MaxPerCycle    int  `mapstructure:"max_per_cycle"`
	ReferenceOnly  bool `mapstructure:"reference_only"`
	QueueDepth     int  `mapstructure:"queue_depth"`
	WorkerCount    int  `mapstructure:"worker_count"`
	DisableTicker  bool `mapstructure:"disable_ticker"`
	SearchAugment  bool `mapstructure:"search_augment"`
	SearchPerQuery int  `mapstructure:"search_per_query"`
}

// SearchConfig configures the web-search provider chain and its cache.
type SearchConfig struct {
	PrimaryProvider string   `mapstructure:"primary_provider"`
	Providers       []string `mapstructure:"providers"`
	SerpAPIKey      string   `mapstructure:"serpapi_key"`
	BraveAPIKey     string   `mapstructure:"brave_key"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
	CacheBackend    string   `mapstructure:"cache_backend"`
	CacheTTLMinutes int      `mapstructure:"cache_ttl_minutes"`
	RedisAddr       string   `mapstructure:"redis_addr"`
	RedisPassword   string   `mapstructure:"redis_password"`
	RedisDB         int      `mapstructure:"redis_db"`
}

// ScrapeConfig configures the page-scraping backend.
type ScrapeConfig struct {
	Backend         string `mapstructure:"backend"`
	UserAgent       string `mapstructure:"user_agent"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	HeadlessMaxPar  int    `mapstructure:"headless_max_parallel"`
	HeadlessNavSecs int    `mapstructure:"headless_nav_timeout_seconds"`
}

// VisionConfig points at the detection and identification backends.
type VisionConfig struct {
	DetectURL           string  `mapstructure:"detect_url"`
	EmbedURL            string  `mapstructure:"embed_url"`
	TimeoutSeconds      int     `mapstructure:"timeout_seconds"`
	MilvusAddr          string  `mapstructure:"milvus_addr"`
	MilvusCollection    string  `mapstructure:"milvus_collection"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaxMatches          int     `mapstructure:"max_matches"`
}

// JobConfig bounds per-job crawl work.
type JobConfig struct {
	MaxImagesPerSource int `mapstructure:"max_images_per_source"`
	MaxImagesPerPage   int `mapstructure:"max_images_per_page"`
	ImageFetchTimeout  int `mapstructure:"image_fetch_timeout_seconds"`
}

// DBConfig controls access to the relational store.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// QueueConfig selects the job-queue backend.
type QueueConfig struct {
	Backend        string `mapstructure:"backend"`
	ProjectID      string `mapstructure:"project_id"`
	TopicID        string `mapstructure:"topic_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

// ArchiveConfig selects the evidence-image archive backend.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features. Level may name any
// zap level; empty keeps the preset's default.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TIGERWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scheduler.cycle_minutes", 60)
	v.SetDefault("scheduler.staleness_days", 7)
	v.SetDefault("scheduler.max_per_cycle", 10)
	v.SetDefault("scheduler.queue_depth", 64)
	v.SetDefault("scheduler.worker_count", 4)
	v.SetDefault("scheduler.search_augment", false)
	v.SetDefault("scheduler.search_per_query", 5)
	v.SetDefault("search.primary_provider", "serpapi")
	v.SetDefault("search.providers", []string{"serpapi", "brave"})
	v.SetDefault("search.timeout_seconds", 15)
	v.SetDefault("search.cache_backend", "memory")
	v.SetDefault("search.cache_ttl_minutes", 60)
	v.SetDefault("scrape.backend", "colly")
	v.SetDefault("scrape.user_agent", "tigerwatch-bot/0.1")
	v.SetDefault("scrape.timeout_seconds", 20)
	v.SetDefault("scrape.headless_max_parallel", 1)
	v.SetDefault("scrape.headless_nav_timeout_seconds", 25)
	v.SetDefault("vision.timeout_seconds", 30)
	v.SetDefault("vision.similarity_threshold", 0.8)
	v.SetDefault("vision.max_matches", 5)
	v.SetDefault("job.max_images_per_source", 20)
	v.SetDefault("job.max_images_per_page", 50)
	v.SetDefault("job.image_fetch_timeout_seconds", 15)
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("archive.backend", "noop")
	v.SetDefault("archive.prefix", "evidence")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scheduler.WorkerCount <= 0 {
		return fmt.Errorf("scheduler.worker_count must be > 0")
	}
	if c.Scheduler.MaxPerCycle <= 0 {
		return fmt.Errorf("scheduler.max_per_cycle must be > 0")
	}
	if c.Search.TimeoutSeconds <= 0 {
		return fmt.Errorf("search.timeout_seconds must be > 0")
	}
	if c.Vision.SimilarityThreshold < 0 || c.Vision.SimilarityThreshold > 1 {
		return fmt.Errorf("vision.similarity_threshold must be in [0,1]")
	}
	if c.Queue.Backend == "pubsub" && (c.Queue.ProjectID == "" || c.Queue.TopicID == "") {
		return fmt.Errorf("queue.project_id and queue.topic_id must be set for the pubsub backend")
	}
	if c.Archive.Backend == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
	}
	return nil
}

// Staleness converts the scheduler staleness window to a duration.
func (c Config) Staleness() time.Duration {
	return time.Duration(c.Scheduler.StalenessDays) * 24 * time.Hour
}

// SearchTimeout returns the timeout applied to each search call.
func (c Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSeconds) * time.Second
}

// CacheTTL returns the search-cache entry lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Search.CacheTTLMinutes) * time.Minute
}
