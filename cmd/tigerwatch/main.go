// Package main wires together the facility monitoring service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wildsight/tigerwatch/internal/clock/system"
	"github.com/wildsight/tigerwatch/internal/config"
	"github.com/wildsight/tigerwatch/internal/evidence"
	"github.com/wildsight/tigerwatch/internal/extract"
	"github.com/wildsight/tigerwatch/internal/id/uuid"
	"github.com/wildsight/tigerwatch/internal/logging"
	"github.com/wildsight/tigerwatch/internal/metrics"
	"github.com/wildsight/tigerwatch/internal/monitor"
	queueMemory "github.com/wildsight/tigerwatch/internal/queue/memory"
	queuePubsub "github.com/wildsight/tigerwatch/internal/queue/pubsub"
	"github.com/wildsight/tigerwatch/internal/retrieval"
	"github.com/wildsight/tigerwatch/internal/scheduler"
	"github.com/wildsight/tigerwatch/internal/server"
	"github.com/wildsight/tigerwatch/internal/storage/gcs"
	storageMemory "github.com/wildsight/tigerwatch/internal/storage/memory"
	"github.com/wildsight/tigerwatch/internal/storage/postgres"
	"github.com/wildsight/tigerwatch/internal/vision"
	"github.com/wildsight/tigerwatch/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	// Stores.
	var (
		facilities    monitor.FacilityStore
		histories     monitor.HistoryStore
		evidenceStore monitor.EvidenceStore
	)
	if cfg.DB.DSN != "" {
		store, pool, err := postgres.New(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pool.Close()
		facilities, histories, evidenceStore = store, store, store
	} else {
		logger.Warn("no db.dsn configured, using in-memory stores")
		facilities = storageMemory.NewFacilityStore()
		histories = storageMemory.NewHistoryStore()
		evidenceStore = storageMemory.NewEvidenceStore()
	}

	// Job queue.
	var queue monitor.Queue
	switch cfg.Queue.Backend {
	case "pubsub":
		psQueue, err := queuePubsub.NewQueue(ctx, queuePubsub.Options{
			ProjectID:      cfg.Queue.ProjectID,
			TopicID:        cfg.Queue.TopicID,
			SubscriptionID: cfg.Queue.SubscriptionID,
			Buffer:         cfg.Scheduler.QueueDepth,
		}, logger.Named("pubsub"))
		if err != nil {
			logger.Fatal("pubsub queue init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := psQueue.Close(); closeErr != nil {
				logger.Warn("pubsub queue close failed", zap.Error(closeErr))
			}
		}()
		queue = psQueue
	default:
		memQueue := queueMemory.NewQueue(cfg.Scheduler.QueueDepth)
		defer memQueue.Close()
		queue = memQueue
	}

	// Search cache.
	var cache retrieval.Cache
	switch cfg.Search.CacheBackend {
	case "redis":
		redisCache, err := retrieval.NewRedisCache(ctx, cfg.Search.RedisAddr, cfg.Search.RedisPassword, cfg.Search.RedisDB)
		if err != nil {
			logger.Warn("redis cache init failed, falling back to in-process cache", zap.Error(err))
			cache = retrieval.NewMemoryCache(cfg.CacheTTL())
		} else {
			cache = redisCache
		}
	case "none":
		cache = retrieval.NoopCache{}
	default:
		cache = retrieval.NewMemoryCache(cfg.CacheTTL())
	}

	// Scraper.
	var scraper retrieval.Scraper
	switch cfg.Scrape.Backend {
	case "headless":
		headless, err := retrieval.NewHeadlessScraper(retrieval.HeadlessConfig{
			MaxParallel:       cfg.Scrape.HeadlessMaxPar,
			UserAgent:         cfg.Scrape.UserAgent,
			NavigationTimeout: time.Duration(cfg.Scrape.HeadlessNavSecs) * time.Second,
		})
		if err != nil {
			logger.Warn("headless scraper init failed, scraping disabled", zap.Error(err))
		} else {
			scraper = headless
		}
	case "none":
		// scrape degrades to warnings
	default:
		scraper = retrieval.NewCollyScraper(retrieval.CollyConfig{
			UserAgent: cfg.Scrape.UserAgent,
			Timeout:   time.Duration(cfg.Scrape.TimeoutSeconds) * time.Second,
		})
	}

	// Search providers, in fallback order.
	var providers []retrieval.Provider
	for _, name := range cfg.Search.Providers {
		switch name {
		case "serpapi":
			if cfg.Search.SerpAPIKey != "" {
				providers = append(providers, retrieval.NewSerpAPIProvider(cfg.Search.SerpAPIKey, "", cfg.SearchTimeout()))
			}
		case "brave":
			if cfg.Search.BraveAPIKey != "" {
				providers = append(providers, retrieval.NewBraveProvider(cfg.Search.BraveAPIKey, "", cfg.SearchTimeout()))
			}
		default:
			logger.Warn("unknown search provider", zap.String("provider", name))
		}
	}
	providers = append(providers, retrieval.NewResultsPageProvider("", cfg.Scrape.UserAgent, cfg.SearchTimeout()))

	gateway := retrieval.New(providers, cache, cfg.CacheTTL(), scraper, logger.Named("retrieval"))

	// Vision stages.
	detector := vision.NewHTTPDetector(vision.DetectorConfig{
		DetectURL: cfg.Vision.DetectURL,
		Timeout:   time.Duration(cfg.Vision.TimeoutSeconds) * time.Second,
	}, logger.Named("detector"))

	var index vision.MatchIndex
	if cfg.Vision.MilvusAddr != "" {
		milvusIndex, err := vision.NewMilvusIndex(ctx, cfg.Vision.MilvusAddr, cfg.Vision.MilvusCollection, logger.Named("milvus"))
		if err != nil {
			logger.Warn("milvus init failed, identification disabled", zap.Error(err))
		} else {
			defer func() {
				if closeErr := milvusIndex.Close(); closeErr != nil {
					logger.Warn("milvus close failed", zap.Error(closeErr))
				}
			}()
			index = milvusIndex
		}
	}
	identifier := vision.NewIdentifier(vision.IdentifierConfig{
		EmbedURL:            cfg.Vision.EmbedURL,
		Timeout:             time.Duration(cfg.Vision.TimeoutSeconds) * time.Second,
		SimilarityThreshold: cfg.Vision.SimilarityThreshold,
		MaxMatches:          cfg.Vision.MaxMatches,
	}, index, logger.Named("identifier"))

	// Image archive.
	var archiver monitor.ImageArchiver
	if cfg.Archive.Backend == "gcs" {
		gcsArchiver, err := gcs.NewArchiver(ctx, cfg.Archive.GCSBucket, cfg.Archive.Prefix, logger.Named("gcs"))
		if err != nil {
			logger.Fatal("gcs archiver init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := gcsArchiver.Close(); closeErr != nil {
				logger.Warn("gcs archiver close failed", zap.Error(closeErr))
			}
		}()
		archiver = gcsArchiver
	} else {
		archiver = storageMemory.NoopArchiver{}
	}

	synth := evidence.NewSynthesizer(idGen, clock)
	extractor := extract.New(cfg.Job.MaxImagesPerPage)
	fetcher := vision.NewImageFetcher(time.Duration(cfg.Job.ImageFetchTimeout)*time.Second, cfg.Scrape.UserAgent)

	workerCfg := worker.Config{
		MaxImagesPerSource: cfg.Job.MaxImagesPerSource,
		SearchAugment:      cfg.Scheduler.SearchAugment,
		SearchPerQuery:     cfg.Scheduler.SearchPerQuery,
		SearchProvider:     cfg.Search.PrimaryProvider,
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Scheduler.WorkerCount; i++ {
		workers = append(workers, worker.New(
			queue,
			facilities,
			histories,
			evidenceStore,
			gateway,
			extractor,
			fetcher,
			detector,
			identifier,
			archiver,
			synth,
			idGen,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	pool := worker.NewPool(workers)

	sched := scheduler.New(facilities, histories, queue, idGen, clock, scheduler.Config{
		Staleness:     cfg.Staleness(),
		MaxPerCycle:   cfg.Scheduler.MaxPerCycle,
		ReferenceOnly: cfg.Scheduler.ReferenceOnly,
	}, logger.Named("scheduler"))

	opsServer := server.NewServer(sched, evidenceStore, histories, logger.Named("http"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           opsServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("worker pool started", zap.Int("workers", cfg.Scheduler.WorkerCount))
		pool.Run(ctx)
	}()

	if !cfg.Scheduler.DisableTicker {
		go func() {
			interval := time.Duration(cfg.Scheduler.CycleMinutes) * time.Minute
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			logger.Info("scheduler cycle started", zap.Duration("interval", interval))
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					result := sched.RunCycle(ctx)
					logger.Info("scheduler cycle finished",
						zap.Int("scheduled", len(result.Scheduled)),
						zap.Int("failed", len(result.Failed)),
					)
				}
			}
		}()
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
