package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/wildsight/tigerwatch/internal/monitor"
)

// Match index defaults mirror the re-identification service contract.
const (
	DefaultSimilarityThreshold = 0.8
	DefaultMaxMatches          = 5
)

// MatchIndex performs nearest-neighbor search over the known-tiger
// embedding gallery.
type MatchIndex interface {
	NearestNeighbors(ctx context.Context, embedding []float32, topK int) ([]monitor.TigerMatch, error)
}

// IdentifierConfig configures the embedding backend and match policy.
type IdentifierConfig struct {
	EmbedURL            string
	Timeout             time.Duration
	SimilarityThreshold float64
	MaxMatches          int
}

// Identifier implements monitor.Identifier: it embeds the image via the
// re-identification model and matches against the gallery index.
type Identifier struct {
	cfg        IdentifierConfig
	index      MatchIndex
	httpClient *http.Client
	logger     *zap.Logger
}

// NewIdentifier builds an Identifier over the given match index.
func NewIdentifier(cfg IdentifierConfig, index MatchIndex, logger *zap.Logger) *Identifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.MaxMatches <= 0 {
		cfg.MaxMatches = DefaultMaxMatches
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Identifier{
		cfg:        cfg,
		index:      index,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Identify embeds the image and ranks gallery matches by similarity.
// Any failure yields a negative result with Error set.
func (i *Identifier) Identify(ctx context.Context, image []byte) monitor.IdentificationResult {
	result, err := i.identify(ctx, image)
	if err != nil {
		i.logger.Warn("identification failed", zap.Error(err))
		return monitor.IdentificationResult{
			Identified: false,
			Matches:    []monitor.TigerMatch{},
			Error:      err.Error(),
		}
	}
	return result
}

func (i *Identifier) identify(ctx context.Context, image []byte) (monitor.IdentificationResult, error) {
	embedding, err := i.embed(ctx, image)
	if err != nil {
		return monitor.IdentificationResult{}, err
	}

	neighbors, err := i.index.NearestNeighbors(ctx, embedding, i.cfg.MaxMatches)
	if err != nil {
		return monitor.IdentificationResult{}, fmt.Errorf("nearest neighbors: %w", err)
	}

	matches := make([]monitor.TigerMatch, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Similarity >= i.cfg.SimilarityThreshold {
			matches = append(matches, n)
		}
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Similarity > matches[b].Similarity
	})

	result := monitor.IdentificationResult{
		Identified: len(matches) > 0,
		Matches:    matches,
	}
	if len(matches) > 0 {
		best := matches[0]
		result.BestMatch = &best
	}
	return result, nil
}

func (i *Identifier) embed(ctx context.Context, image []byte) ([]float32, error) {
	if i.cfg.EmbedURL == "" {
		return nil, fmt.Errorf("embedding backend not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.cfg.EmbedURL, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed backend returned status %d", resp.StatusCode)
	}

	var payload struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(payload.Embedding) == 0 {
		return nil, fmt.Errorf("embed backend returned empty embedding")
	}
	return payload.Embedding, nil
}
