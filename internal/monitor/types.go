// Package monitor defines core types shared across the facility
// monitoring pipeline.
package monitor

import "time"

// SourceType labels where a piece of evidence was collected from.
type SourceType string

// Evidence source types persisted with each record.
const (
	SourceWebSearch   SourceType = "web_search"
	SourceSocialMedia SourceType = "social_media"
	SourceWebsite     SourceType = "website"
)

// Facility is a captive-wildlife facility under monitoring. It is created
// and maintained by facility management; the pipeline only reads it, except
// for LastCrawledAt which the scheduler stamps at dispatch.
type Facility struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Website           string     `json:"website"`
	SocialMediaLinks  []string   `json:"social_media_links"`
	KnownTigerCount   int        `json:"known_tiger_count"`
	ViolationCount    int        `json:"violation_count"`
	ReferenceFacility bool       `json:"reference_facility"`
	LastCrawledAt     *time.Time `json:"last_crawled_at,omitempty"`
}

// HasSources reports whether the facility has anything to crawl.
func (f Facility) HasSources() bool {
	return f.Website != "" || len(f.SocialMediaLinks) > 0
}

// SourceCount returns the number of configured crawl targets.
func (f Facility) SourceCount() int {
	n := len(f.SocialMediaLinks)
	if f.Website != "" {
		n++
	}
	return n
}

// CrawlStatus is the terminal state of a crawl run.
type CrawlStatus string

// Crawl run statuses written to the history ledger.
const (
	CrawlCompleted CrawlStatus = "completed"
	CrawlFailed    CrawlStatus = "failed"
)

// CrawlHistory is the audit record of one pipeline execution for one
// facility. Written exactly once per run and immutable afterwards.
type CrawlHistory struct {
	ID               string         `json:"id"`
	FacilityID       string         `json:"facility_id"`
	Status           CrawlStatus    `json:"status"`
	PagesCrawled     int            `json:"pages_crawled"`
	ImagesFound      int            `json:"images_found"`
	TigersDetected   int            `json:"tigers_detected"`
	TigersIdentified int            `json:"tigers_identified"`
	EvidenceCreated  int            `json:"evidence_created"`
	DurationMs       int64          `json:"duration_ms"`
	Errors           []string       `json:"errors,omitempty"`
	Statistics       map[string]any `json:"statistics,omitempty"`
	CompletedAt      time.Time      `json:"completed_at"`
}

// Evidence is a persisted, scored artifact linking a source URL and its
// detection payload to a facility. Never mutated by the pipeline after
// creation.
type Evidence struct {
	ID             string         `json:"id"`
	FacilityID     string         `json:"facility_id"`
	SourceType     SourceType     `json:"source_type"`
	SourceURL      string         `json:"source_url"`
	Content        map[string]any `json:"content"`
	ExtractedText  string         `json:"extracted_text,omitempty"`
	RelevanceScore float64        `json:"relevance_score"`
	CreatedAt      time.Time      `json:"created_at"`
}

// BoundingBox locates a detected animal within an image.
type BoundingBox struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

// DetectionResult is the transient outcome of running object detection on
// one image. Failures degrade to a negative result with Error set.
type DetectionResult struct {
	Detected   bool          `json:"detected"`
	Detections []BoundingBox `json:"detections"`
	Confidence float64       `json:"confidence"`
	Error      string        `json:"error,omitempty"`
}

// TigerMatch is one candidate individual from the re-identification index.
type TigerMatch struct {
	TigerID    string  `json:"tiger_id"`
	Name       string  `json:"name,omitempty"`
	Similarity float64 `json:"similarity"`
}

// IdentificationResult is the transient outcome of matching a detected
// tiger against the known-individual gallery. Matches are ranked by
// similarity, best first.
type IdentificationResult struct {
	Identified bool         `json:"identified"`
	Matches    []TigerMatch `json:"matches"`
	BestMatch  *TigerMatch  `json:"best_match,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// QueueItem is the dispatch payload handed from the scheduler to a worker.
type QueueItem struct {
	JobID      string `json:"job_id"`
	FacilityID string `json:"facility_id"`
	Submitted  int64  `json:"submitted"`
}

// JobReport summarizes one crawl job execution.
type JobReport struct {
	JobID            string      `json:"job_id"`
	FacilityID       string      `json:"facility_id"`
	Status           CrawlStatus `json:"status"`
	PagesCrawled     int         `json:"pages_crawled"`
	ImagesFound      int         `json:"images_found"`
	TigersDetected   int         `json:"tigers_detected"`
	TigersIdentified int         `json:"tigers_identified"`
	EvidenceCreated  int         `json:"evidence_created"`
	DurationMs       int64       `json:"duration_ms"`
	Errors           []string    `json:"errors,omitempty"`
}

// DispatchFailure names a facility that could not be scheduled and why.
type DispatchFailure struct {
	FacilityID string `json:"facility_id"`
	Reason     string `json:"reason"`
}

// BatchResult reports the outcome of a batch dispatch. Per-facility
// failures never abort sibling dispatches.
type BatchResult struct {
	Scheduled []string          `json:"scheduled"`
	Failed    []DispatchFailure `json:"failed"`
}
