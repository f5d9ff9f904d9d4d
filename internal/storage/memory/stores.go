// Package memory provides store implementations for local development
// and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wildsight/tigerwatch/internal/monitor"
)

// FacilityStore is an in-memory monitor.FacilityStore.
type FacilityStore struct {
	mu         sync.RWMutex
	facilities map[string]monitor.Facility
}

// NewFacilityStore builds an empty FacilityStore.
func NewFacilityStore() *FacilityStore {
	return &FacilityStore{facilities: make(map[string]monitor.Facility)}
}

// Put inserts or replaces a facility (test/dev seeding).
func (s *FacilityStore) Put(f monitor.Facility) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facilities[f.ID] = f
}

// GetFacility returns the facility or monitor.ErrFacilityNotFound.
func (s *FacilityStore) GetFacility(_ context.Context, id string) (monitor.Facility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facilities[id]
	if !ok {
		return monitor.Facility{}, fmt.Errorf("facility %s: %w", id, monitor.ErrFacilityNotFound)
	}
	return f, nil
}

// ListFacilities returns all facilities in stable ID order.
func (s *FacilityStore) ListFacilities(context.Context) ([]monitor.Facility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.Facility, 0, len(s.facilities))
	for _, f := range s.facilities {
		out = append(out, f)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

// TouchLastCrawled stamps the facility's last crawl time.
func (s *FacilityStore) TouchLastCrawled(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facilities[id]
	if !ok {
		return fmt.Errorf("facility %s: %w", id, monitor.ErrFacilityNotFound)
	}
	f.LastCrawledAt = &at
	s.facilities[id] = f
	return nil
}

// HistoryStore is an in-memory monitor.HistoryStore.
type HistoryStore struct {
	mu   sync.RWMutex
	rows []monitor.CrawlHistory
}

// NewHistoryStore builds an empty HistoryStore.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

// InsertHistory appends one ledger row.
func (s *HistoryStore) InsertHistory(_ context.Context, h monitor.CrawlHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, h)
	return nil
}

// LatestHistory returns the most recent row for the facility.
func (s *HistoryStore) LatestHistory(_ context.Context, facilityID string) (monitor.CrawlHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		latest monitor.CrawlHistory
		found  bool
	)
	for _, h := range s.rows {
		if h.FacilityID != facilityID {
			continue
		}
		if !found || h.CompletedAt.After(latest.CompletedAt) {
			latest = h
			found = true
		}
	}
	if !found {
		return monitor.CrawlHistory{}, fmt.Errorf("history for %s: %w", facilityID, monitor.ErrNotFound)
	}
	return latest, nil
}

// ListHistory returns up to limit rows for the facility, newest first.
func (s *HistoryStore) ListHistory(_ context.Context, facilityID string, limit int) ([]monitor.CrawlHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []monitor.CrawlHistory
	for _, h := range s.rows {
		if h.FacilityID == facilityID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CompletedAt.After(out[b].CompletedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every row (test helper).
func (s *HistoryStore) All() []monitor.CrawlHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]monitor.CrawlHistory(nil), s.rows...)
}

// EvidenceStore is an in-memory monitor.EvidenceStore.
type EvidenceStore struct {
	mu   sync.RWMutex
	rows []monitor.Evidence
}

// NewEvidenceStore builds an empty EvidenceStore.
func NewEvidenceStore() *EvidenceStore {
	return &EvidenceStore{}
}

// InsertEvidence appends one evidence record.
func (s *EvidenceStore) InsertEvidence(_ context.Context, e monitor.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, e)
	return nil
}

// ListEvidence returns all records for the facility in insertion order.
func (s *EvidenceStore) ListEvidence(_ context.Context, facilityID string) ([]monitor.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []monitor.Evidence
	for _, e := range s.rows {
		if e.FacilityID == facilityID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every record (test helper).
func (s *EvidenceStore) All() []monitor.Evidence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]monitor.Evidence(nil), s.rows...)
}

// NoopArchiver discards image archives. Selected when no blob backend is
// configured.
type NoopArchiver struct{}

// Archive drops the data and returns a placeholder URI.
func (NoopArchiver) Archive(_ context.Context, path string, _ string, _ []byte) (string, error) {
	return "noop://" + path, nil
}
