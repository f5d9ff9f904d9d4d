// Package worker implements the crawl pipeline execution loop.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/wildsight/tigerwatch/internal/evidence"
	"github.com/wildsight/tigerwatch/internal/extract"
	"github.com/wildsight/tigerwatch/internal/hash/sha256"
	"github.com/wildsight/tigerwatch/internal/metrics"
	"github.com/wildsight/tigerwatch/internal/monitor"
	"github.com/wildsight/tigerwatch/internal/retrieval"
)

// Retriever is the slice of the retrieval gateway a job consumes.
type Retriever interface {
	Search(ctx context.Context, query string, limit int, provider string) retrieval.SearchResponse
	Scrape(ctx context.Context, url string, extract bool) retrieval.ScrapeResponse
}

// ImageFetcher downloads image bytes for the vision stages.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config controls Worker behavior.
type Config struct {
	MaxImagesPerSource int
	SearchAugment      bool
	SearchPerQuery     int
	SearchProvider     string
}

// Worker consumes queue items and executes the crawl pipeline for one
// facility at a time.
type Worker struct {
	queue      monitor.Queue
	facilities monitor.FacilityStore
	history    monitor.HistoryStore
	evidence   monitor.EvidenceStore
	retriever  Retriever
	extractor  *extract.Extractor
	fetcher    ImageFetcher
	detector   monitor.Detector
	identifier monitor.Identifier
	archiver   monitor.ImageArchiver
	synth      *evidence.Synthesizer
	ids        monitor.IDGenerator
	clock      monitor.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	queue monitor.Queue,
	facilities monitor.FacilityStore,
	history monitor.HistoryStore,
	evidenceStore monitor.EvidenceStore,
	retriever Retriever,
	extractor *extract.Extractor,
	fetcher ImageFetcher,
	detector monitor.Detector,
	identifier monitor.Identifier,
	archiver monitor.ImageArchiver,
	synth *evidence.Synthesizer,
	ids monitor.IDGenerator,
	clock monitor.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.MaxImagesPerSource <= 0 {
		cfg.MaxImagesPerSource = 20
	}
	if cfg.SearchPerQuery <= 0 {
		cfg.SearchPerQuery = 5
	}
	return &Worker{
		queue:      queue,
		facilities: facilities,
		history:    history,
		evidence:   evidenceStore,
		retriever:  retriever,
		extractor:  extractor,
		fetcher:    fetcher,
		detector:   detector,
		identifier: identifier,
		archiver:   archiver,
		synth:      synth,
		ids:        ids,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job",
			zap.String("job_id", item.JobID),
			zap.String("facility_id", item.FacilityID),
		)
		w.Process(ctx, item)
	}
}

type source struct {
	url string
	typ monitor.SourceType
}

// Process runs the full pipeline for one dispatched facility. Failures
// local to one source or one image are recorded in the report's error
// list and never stop the remaining work; only a missing facility record
// fails the job. Exactly one history row is written either way.
func (w *Worker) Process(ctx context.Context, item monitor.QueueItem) monitor.JobReport {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := w.clock.Now()

	facility, err := w.facilities.GetFacility(ctx, item.FacilityID)
	if err != nil {
		w.logger.Error("job precondition failed",
			zap.String("job_id", item.JobID),
			zap.String("facility_id", item.FacilityID),
			zap.Error(err),
		)
		return w.finish(ctx, item, monitor.JobReport{
			JobID:      item.JobID,
			FacilityID: item.FacilityID,
			Status:     monitor.CrawlFailed,
			Errors:     []string{err.Error()},
		}, start, nil)
	}

	report := monitor.JobReport{
		JobID:      item.JobID,
		FacilityID: item.FacilityID,
		Status:     monitor.CrawlCompleted,
	}

	sources := w.collectSources(ctx, facility)
	for _, src := range sources {
		w.processSource(ctx, facility, src, &report)
	}

	stats := map[string]any{
		"sources": len(sources),
	}
	return w.finish(ctx, item, report, start, stats)
}

// collectSources lists crawl targets in deterministic order: the website
// first, then each social link, then any search-discovered pages.
func (w *Worker) collectSources(ctx context.Context, f monitor.Facility) []source {
	var sources []source
	seen := make(map[string]bool)
	add := func(url string, typ monitor.SourceType) {
		key := strings.ToLower(url)
		if url == "" || seen[key] {
			return
		}
		seen[key] = true
		sources = append(sources, source{url: url, typ: typ})
	}

	add(f.Website, monitor.SourceWebsite)
	for _, link := range f.SocialMediaLinks {
		add(link, monitor.SourceSocialMedia)
	}

	if w.cfg.SearchAugment {
		query := fmt.Sprintf("%q tiger", f.Name)
		resp := w.retriever.Search(ctx, query, w.cfg.SearchPerQuery, w.cfg.SearchProvider)
		if resp.Error != "" {
			w.logger.Warn("source discovery search exhausted providers",
				zap.String("facility_id", f.ID),
				zap.String("error", resp.Error),
			)
		}
		for _, r := range resp.Results {
			add(r.URL, monitor.SourceWebSearch)
		}
	}
	return sources
}

func (w *Worker) processSource(ctx context.Context, f monitor.Facility, src source, report *monitor.JobReport) {
	scraped := w.retriever.Scrape(ctx, src.url, true)
	if scraped.Content == "" && scraped.HTML == "" {
		reason := scraped.Warning
		if reason == "" {
			reason = "empty page"
		}
		report.Errors = append(report.Errors, fmt.Sprintf("source %s: %s", src.url, reason))
		return
	}
	report.PagesCrawled++

	images := w.extractor.Images(scraped.Content, scraped.HTML, src.url)
	if len(images) > w.cfg.MaxImagesPerSource {
		images = images[:w.cfg.MaxImagesPerSource]
	}
	report.ImagesFound += len(images)

	snippet := scraped.Extracted
	if snippet == "" {
		snippet = truncate(scraped.Content, 280)
	}

	for _, imageURL := range images {
		w.processImage(ctx, f, src, imageURL, snippet, report)
	}
}

func (w *Worker) processImage(ctx context.Context, f monitor.Facility, src source, imageURL, snippet string, report *monitor.JobReport) {
	data, err := w.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("image %s: %v", imageURL, err))
		return
	}
	metrics.ObserveImage()

	detection := w.detector.Detect(ctx, data)
	if detection.Error != "" {
		report.Errors = append(report.Errors, fmt.Sprintf("detect %s: %s", imageURL, detection.Error))
	}
	if !detection.Detected {
		return
	}
	report.TigersDetected++
	metrics.ObserveDetection()

	identification := w.identifier.Identify(ctx, data)
	if identification.Error != "" {
		report.Errors = append(report.Errors, fmt.Sprintf("identify %s: %s", imageURL, identification.Error))
	}
	if identification.Identified {
		report.TigersIdentified++
		metrics.ObserveIdentification()
	}

	path := fmt.Sprintf("%s/%s%s", f.ID, sha256.Sum(data)[:16], imageExt(imageURL))
	archiveURI, err := w.archiver.Archive(ctx, path, http.DetectContentType(data), data)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("archive %s: %v", imageURL, err))
		archiveURI = ""
	}

	record, err := w.synth.New(evidence.Input{
		Facility:       f,
		SourceType:     src.typ,
		SourceURL:      src.url,
		ImageURL:       imageURL,
		ArchiveURI:     archiveURI,
		Detection:      detection,
		Identification: identification,
		Snippet:        snippet,
	})
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("evidence for %s: %v", imageURL, err))
		return
	}
	if err := w.evidence.InsertEvidence(ctx, record); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("store evidence for %s: %v", imageURL, err))
		return
	}
	report.EvidenceCreated++
	metrics.ObserveEvidence(string(src.typ))
}

// finish stamps the report, writes the single history row and records
// job metrics.
func (w *Worker) finish(ctx context.Context, item monitor.QueueItem, report monitor.JobReport, start time.Time, stats map[string]any) monitor.JobReport {
	duration := w.clock.Now().Sub(start)
	report.DurationMs = duration.Milliseconds()

	rowID, err := w.ids.NewID()
	if err != nil {
		w.logger.Error("failed to generate history id", zap.Error(err))
	}
	row := monitor.CrawlHistory{
		ID:               rowID,
		FacilityID:       item.FacilityID,
		Status:           report.Status,
		PagesCrawled:     report.PagesCrawled,
		ImagesFound:      report.ImagesFound,
		TigersDetected:   report.TigersDetected,
		TigersIdentified: report.TigersIdentified,
		EvidenceCreated:  report.EvidenceCreated,
		DurationMs:       report.DurationMs,
		Errors:           report.Errors,
		Statistics:       stats,
		CompletedAt:      w.clock.Now(),
	}
	if err := w.history.InsertHistory(ctx, row); err != nil {
		w.logger.Error("failed to write crawl history",
			zap.String("job_id", item.JobID),
			zap.String("facility_id", item.FacilityID),
			zap.Error(err),
		)
	}

	metrics.ObserveJob(string(report.Status), duration)
	w.logger.Info("job finished",
		zap.String("job_id", item.JobID),
		zap.String("facility_id", item.FacilityID),
		zap.String("status", string(report.Status)),
		zap.Int("evidence_created", report.EvidenceCreated),
		zap.Int("errors", len(report.Errors)),
		zap.Duration("duration", duration),
	)
	return report
}

func imageExt(rawURL string) string {
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.LastIndex(trimmed, "."); i >= 0 {
		ext := strings.ToLower(trimmed[i:])
		if len(ext) <= 5 {
			return ext
		}
	}
	return ""
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
