package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wildsight/tigerwatch/internal/monitor"
)

func TestFacilityStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewFacilityStore()
	s.Put(monitor.Facility{ID: "f1", Name: "Cat Haven"})

	got, err := s.GetFacility(context.Background(), "f1")
	if err != nil {
		t.Fatalf("GetFacility() error = %v", err)
	}
	if got.Name != "Cat Haven" {
		t.Fatalf("expected Cat Haven, got %q", got.Name)
	}

	if _, err := s.GetFacility(context.Background(), "absent"); !errors.Is(err, monitor.ErrFacilityNotFound) {
		t.Fatalf("expected ErrFacilityNotFound, got %v", err)
	}
}

func TestFacilityStoreTouchLastCrawled(t *testing.T) {
	t.Parallel()

	s := NewFacilityStore()
	s.Put(monitor.Facility{ID: "f1"})

	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := s.TouchLastCrawled(context.Background(), "f1", at); err != nil {
		t.Fatalf("TouchLastCrawled() error = %v", err)
	}
	got, _ := s.GetFacility(context.Background(), "f1")
	if got.LastCrawledAt == nil || !got.LastCrawledAt.Equal(at) {
		t.Fatalf("expected last crawl %v, got %v", at, got.LastCrawledAt)
	}

	if err := s.TouchLastCrawled(context.Background(), "absent", at); !errors.Is(err, monitor.ErrFacilityNotFound) {
		t.Fatalf("expected ErrFacilityNotFound, got %v", err)
	}
}

func TestHistoryStoreLatest(t *testing.T) {
	t.Parallel()

	s := NewHistoryStore()
	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(48 * time.Hour)

	_ = s.InsertHistory(context.Background(), monitor.CrawlHistory{ID: "h1", FacilityID: "f1", CompletedAt: earlier})
	_ = s.InsertHistory(context.Background(), monitor.CrawlHistory{ID: "h2", FacilityID: "f1", CompletedAt: later})
	_ = s.InsertHistory(context.Background(), monitor.CrawlHistory{ID: "h3", FacilityID: "f2", CompletedAt: later})

	got, err := s.LatestHistory(context.Background(), "f1")
	if err != nil {
		t.Fatalf("LatestHistory() error = %v", err)
	}
	if got.ID != "h2" {
		t.Fatalf("expected h2, got %s", got.ID)
	}

	if _, err := s.LatestHistory(context.Background(), "absent"); !errors.Is(err, monitor.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rows, err := s.ListHistory(context.Background(), "f1", 1)
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "h2" {
		t.Fatalf("expected newest-first capped list, got %+v", rows)
	}
}

func TestEvidenceStoreList(t *testing.T) {
	t.Parallel()

	s := NewEvidenceStore()
	_ = s.InsertEvidence(context.Background(), monitor.Evidence{ID: "e1", FacilityID: "f1"})
	_ = s.InsertEvidence(context.Background(), monitor.Evidence{ID: "e2", FacilityID: "f2"})
	_ = s.InsertEvidence(context.Background(), monitor.Evidence{ID: "e3", FacilityID: "f1"})

	got, err := s.ListEvidence(context.Background(), "f1")
	if err != nil {
		t.Fatalf("ListEvidence() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "e1" || got[1].ID != "e3" {
		t.Fatalf("expected insertion-ordered records, got %+v", got)
	}
}

func TestNoopArchiver(t *testing.T) {
	t.Parallel()

	uri, err := NoopArchiver{}.Archive(context.Background(), "evidence/abc.jpg", "image/jpeg", []byte("x"))
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if uri != "noop://evidence/abc.jpg" {
		t.Fatalf("unexpected URI %q", uri)
	}
}
