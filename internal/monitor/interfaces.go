package monitor

import (
	"context"
	"time"
)

// FacilityStore reads facility records and stamps crawl bookkeeping.
type FacilityStore interface {
	GetFacility(ctx context.Context, id string) (Facility, error)
	ListFacilities(ctx context.Context) ([]Facility, error)
	TouchLastCrawled(ctx context.Context, id string, at time.Time) error
}

// HistoryStore is the crawl-history ledger. Insert is called exactly once
// per job run.
type HistoryStore interface {
	InsertHistory(ctx context.Context, h CrawlHistory) error
	LatestHistory(ctx context.Context, facilityID string) (CrawlHistory, error)
	ListHistory(ctx context.Context, facilityID string, limit int) ([]CrawlHistory, error)
}

// EvidenceStore persists scored evidence records.
type EvidenceStore interface {
	InsertEvidence(ctx context.Context, e Evidence) error
	ListEvidence(ctx context.Context, facilityID string) ([]Evidence, error)
}

// Queue provides enqueue/dequeue semantics for crawl jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Detector finds tigers in an image.
type Detector interface {
	Detect(ctx context.Context, image []byte) DetectionResult
}

// Identifier matches a detected tiger against the known-individual gallery.
type Identifier interface {
	Identify(ctx context.Context, image []byte) IdentificationResult
}

// ImageArchiver stores a copy of a positive-detection image and returns a URI.
type ImageArchiver interface {
	Archive(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
