// Package evidence converts detection and identification output into
// scored evidence records, and provides the read-side grouping views
// used by reporting collaborators.
package evidence

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/wildsight/tigerwatch/internal/monitor"
)

// Scoring constants. Additive on a 0.5 base, clamped to 1.0. The
// constants are heuristic; only their rank-order effects are relied on.
const (
	baseScore           = 0.5
	socialMediaBoost    = 0.10
	webSearchBoost      = 0.05
	trustedDomainBoost  = 0.10
	referenceBoost      = 0.20
	confidenceWeight    = 0.15
	HighRelevanceCutoff = 0.8
)

var trustedTLDs = []string{".gov", ".edu", ".org"}

// Synthesizer builds evidence records from pipeline results.
type Synthesizer struct {
	ids   monitor.IDGenerator
	clock monitor.Clock
}

// NewSynthesizer builds a Synthesizer.
func NewSynthesizer(ids monitor.IDGenerator, clock monitor.Clock) *Synthesizer {
	return &Synthesizer{ids: ids, clock: clock}
}

// Score computes a relevance score in [0,1] for a piece of evidence.
// detectionConfidence folds the model's confidence in as a weighted
// term; zero is valid for sources scored before detection.
func Score(sourceURL string, sourceType monitor.SourceType, isReference bool, detectionConfidence float64) float64 {
	score := baseScore

	switch sourceType {
	case monitor.SourceSocialMedia:
		score += socialMediaBoost
	case monitor.SourceWebSearch:
		score += webSearchBoost
	}

	if hasTrustedDomain(sourceURL) {
		score += trustedDomainBoost
	}
	if isReference {
		score += referenceBoost
	}
	if detectionConfidence > 0 {
		score += clamp01(detectionConfidence) * confidenceWeight
	}

	return clamp01(score)
}

// Input carries everything the synthesizer needs for one record.
type Input struct {
	Facility       monitor.Facility
	SourceType     monitor.SourceType
	SourceURL      string
	ImageURL       string
	ArchiveURI     string
	Detection      monitor.DetectionResult
	Identification monitor.IdentificationResult
	Snippet        string
}

// New creates one Evidence record for a qualifying image. The source URL
// must be non-empty; records violating that invariant are refused.
func (s *Synthesizer) New(in Input) (monitor.Evidence, error) {
	if in.SourceURL == "" {
		return monitor.Evidence{}, fmt.Errorf("evidence requires a source URL")
	}
	if in.SourceType == "" {
		return monitor.Evidence{}, fmt.Errorf("evidence requires a source type")
	}

	id, err := s.ids.NewID()
	if err != nil {
		return monitor.Evidence{}, fmt.Errorf("generate evidence id: %w", err)
	}

	content := map[string]any{
		"image_url":       in.ImageURL,
		"detected":        in.Detection.Detected,
		"detection_count": len(in.Detection.Detections),
		"confidence":      in.Detection.Confidence,
		"identified":      in.Identification.Identified,
	}
	if in.ArchiveURI != "" {
		content["archive_uri"] = in.ArchiveURI
	}
	if in.Identification.BestMatch != nil {
		content["best_match"] = map[string]any{
			"tiger_id":   in.Identification.BestMatch.TigerID,
			"name":       in.Identification.BestMatch.Name,
			"similarity": in.Identification.BestMatch.Similarity,
		}
	}

	return monitor.Evidence{
		ID:             id,
		FacilityID:     in.Facility.ID,
		SourceType:     in.SourceType,
		SourceURL:      in.SourceURL,
		Content:        content,
		ExtractedText:  in.Snippet,
		RelevanceScore: Score(in.SourceURL, in.SourceType, in.Facility.ReferenceFacility, in.Detection.Confidence),
		CreatedAt:      s.clock.Now(),
	}, nil
}

func hasTrustedDomain(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, tld := range trustedTLDs {
		if strings.HasSuffix(host, tld) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// GroupByFacility buckets evidence records by facility ID.
func GroupByFacility(records []monitor.Evidence) map[string][]monitor.Evidence {
	out := make(map[string][]monitor.Evidence)
	for _, e := range records {
		out[e.FacilityID] = append(out[e.FacilityID], e)
	}
	return out
}

// GroupBySourceType buckets evidence records by source type.
func GroupBySourceType(records []monitor.Evidence) map[monitor.SourceType][]monitor.Evidence {
	out := make(map[monitor.SourceType][]monitor.Evidence)
	for _, e := range records {
		out[e.SourceType] = append(out[e.SourceType], e)
	}
	return out
}

// GroupByMonth buckets evidence records by creation month (YYYY-MM).
func GroupByMonth(records []monitor.Evidence) map[string][]monitor.Evidence {
	out := make(map[string][]monitor.Evidence)
	for _, e := range records {
		key := e.CreatedAt.Format("2006-01")
		out[key] = append(out[key], e)
	}
	return out
}

// HighRelevance returns records scoring at or above the cutoff, sorted
// by score descending. Ties keep input order.
func HighRelevance(records []monitor.Evidence) []monitor.Evidence {
	var out []monitor.Evidence
	for _, e := range records {
		if e.RelevanceScore >= HighRelevanceCutoff {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].RelevanceScore > out[b].RelevanceScore
	})
	return out
}

// MonthKey formats a timestamp the way GroupByMonth keys are built.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}
