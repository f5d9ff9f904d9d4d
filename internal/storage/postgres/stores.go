// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wildsight/tigerwatch/internal/monitor"
)

// DB is the subset of pgxpool.Pool the stores use; it lets tests swap in
// a pgxmock pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements the facility, history and evidence store interfaces
// over one connection pool.
type Store struct {
	db DB
}

// New connects a Store to the database at dsn.
func New(ctx context.Context, dsn string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: pool}, pool, nil
}

// NewWithDB wraps an existing connection (tests).
func NewWithDB(db DB) *Store {
	return &Store{db: db}
}

// GetFacility loads one facility by ID.
func (s *Store) GetFacility(ctx context.Context, id string) (monitor.Facility, error) {
	query := `
		SELECT id, name, website, social_media_links, known_tiger_count,
		       violation_count, reference_facility, last_crawled_at
		FROM facilities
		WHERE id = $1;
	`
	var f monitor.Facility
	err := s.db.QueryRow(ctx, query, id).Scan(
		&f.ID,
		&f.Name,
		&f.Website,
		&f.SocialMediaLinks,
		&f.KnownTigerCount,
		&f.ViolationCount,
		&f.ReferenceFacility,
		&f.LastCrawledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return monitor.Facility{}, fmt.Errorf("facility %s: %w", id, monitor.ErrFacilityNotFound)
		}
		return monitor.Facility{}, fmt.Errorf("get facility: %w", err)
	}
	return f, nil
}

// ListFacilities returns all facilities.
func (s *Store) ListFacilities(ctx context.Context) ([]monitor.Facility, error) {
	query := `
		SELECT id, name, website, social_media_links, known_tiger_count,
		       violation_count, reference_facility, last_crawled_at
		FROM facilities
		ORDER BY id;
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}
	defer rows.Close()

	var out []monitor.Facility
	for rows.Next() {
		var f monitor.Facility
		if err := rows.Scan(
			&f.ID,
			&f.Name,
			&f.Website,
			&f.SocialMediaLinks,
			&f.KnownTigerCount,
			&f.ViolationCount,
			&f.ReferenceFacility,
			&f.LastCrawledAt,
		); err != nil {
			return nil, fmt.Errorf("scan facility: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facilities: %w", err)
	}
	return out, nil
}

// TouchLastCrawled stamps the facility's last crawl time.
func (s *Store) TouchLastCrawled(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE facilities SET last_crawled_at = $1 WHERE id = $2;`, at, id)
	if err != nil {
		return fmt.Errorf("touch last_crawled_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("facility %s: %w", id, monitor.ErrFacilityNotFound)
	}
	return nil
}

// InsertHistory writes one ledger row.
func (s *Store) InsertHistory(ctx context.Context, h monitor.CrawlHistory) error {
	stats, err := json.Marshal(h.Statistics)
	if err != nil {
		return fmt.Errorf("marshal statistics: %w", err)
	}
	query := `
		INSERT INTO crawl_history (
			id, facility_id, status, pages_crawled, images_found,
			tigers_detected, tigers_identified, evidence_created,
			duration_ms, errors, statistics, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`
	_, err = s.db.Exec(ctx, query,
		h.ID,
		h.FacilityID,
		string(h.Status),
		h.PagesCrawled,
		h.ImagesFound,
		h.TigersDetected,
		h.TigersIdentified,
		h.EvidenceCreated,
		h.DurationMs,
		h.Errors,
		stats,
		h.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert crawl history: %w", err)
	}
	return nil
}

// LatestHistory returns the most recent ledger row for the facility.
func (s *Store) LatestHistory(ctx context.Context, facilityID string) (monitor.CrawlHistory, error) {
	query := `
		SELECT id, facility_id, status, pages_crawled, images_found,
		       tigers_detected, tigers_identified, evidence_created,
		       duration_ms, errors, statistics, completed_at
		FROM crawl_history
		WHERE facility_id = $1
		ORDER BY completed_at DESC
		LIMIT 1;
	`
	h, err := s.scanHistoryRow(s.db.QueryRow(ctx, query, facilityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return monitor.CrawlHistory{}, fmt.Errorf("history for %s: %w", facilityID, monitor.ErrNotFound)
		}
		return monitor.CrawlHistory{}, fmt.Errorf("latest history: %w", err)
	}
	return h, nil
}

// ListHistory returns up to limit ledger rows, newest first.
func (s *Store) ListHistory(ctx context.Context, facilityID string, limit int) ([]monitor.CrawlHistory, error) {
	query := `
		SELECT id, facility_id, status, pages_crawled, images_found,
		       tigers_detected, tigers_identified, evidence_created,
		       duration_ms, errors, statistics, completed_at
		FROM crawl_history
		WHERE facility_id = $1
		ORDER BY completed_at DESC
		LIMIT $2;
	`
	rows, err := s.db.Query(ctx, query, facilityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []monitor.CrawlHistory
	for rows.Next() {
		h, err := s.scanHistoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

func (s *Store) scanHistoryRow(row pgx.Row) (monitor.CrawlHistory, error) {
	var (
		h      monitor.CrawlHistory
		status string
		stats  []byte
	)
	if err := row.Scan(
		&h.ID,
		&h.FacilityID,
		&status,
		&h.PagesCrawled,
		&h.ImagesFound,
		&h.TigersDetected,
		&h.TigersIdentified,
		&h.EvidenceCreated,
		&h.DurationMs,
		&h.Errors,
		&stats,
		&h.CompletedAt,
	); err != nil {
		return monitor.CrawlHistory{}, err
	}
	h.Status = monitor.CrawlStatus(status)
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &h.Statistics); err != nil {
			return monitor.CrawlHistory{}, fmt.Errorf("unmarshal statistics: %w", err)
		}
	}
	return h, nil
}

// InsertEvidence writes one evidence record.
func (s *Store) InsertEvidence(ctx context.Context, e monitor.Evidence) error {
	content, err := json.Marshal(e.Content)
	if err != nil {
		return fmt.Errorf("marshal evidence content: %w", err)
	}
	query := `
		INSERT INTO evidence (
			id, facility_id, source_type, source_url, content,
			extracted_text, relevance_score, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err = s.db.Exec(ctx, query,
		e.ID,
		e.FacilityID,
		string(e.SourceType),
		e.SourceURL,
		content,
		e.ExtractedText,
		e.RelevanceScore,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

// ListEvidence returns all evidence records for the facility.
func (s *Store) ListEvidence(ctx context.Context, facilityID string) ([]monitor.Evidence, error) {
	query := `
		SELECT id, facility_id, source_type, source_url, content,
		       extracted_text, relevance_score, created_at
		FROM evidence
		WHERE facility_id = $1
		ORDER BY created_at;
	`
	rows, err := s.db.Query(ctx, query, facilityID)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	var out []monitor.Evidence
	for rows.Next() {
		var (
			e          monitor.Evidence
			sourceType string
			content    []byte
		)
		if err := rows.Scan(
			&e.ID,
			&e.FacilityID,
			&sourceType,
			&e.SourceURL,
			&content,
			&e.ExtractedText,
			&e.RelevanceScore,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		e.SourceType = monitor.SourceType(sourceType)
		if len(content) > 0 {
			if err := json.Unmarshal(content, &e.Content); err != nil {
				return nil, fmt.Errorf("unmarshal evidence content: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence: %w", err)
	}
	return out, nil
}
