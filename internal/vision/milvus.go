package vision

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/wildsight/tigerwatch/internal/monitor"
)

// MilvusIndex implements MatchIndex over a Milvus collection of known
// tiger embeddings. Each row carries the individual's ID and name.
type MilvusIndex struct {
	client     client.Client
	collection string
	logger     *zap.Logger
}

// NewMilvusIndex connects to Milvus and wraps the given collection.
func NewMilvusIndex(ctx context.Context, addr, collection string, logger *zap.Logger) (*MilvusIndex, error) {
	c, err := client.NewGrpcClient(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("create milvus client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("milvus index connected",
		zap.String("addr", addr),
		zap.String("collection", collection),
	)
	return &MilvusIndex{client: c, collection: collection, logger: logger}, nil
}

// Close releases the Milvus connection.
func (m *MilvusIndex) Close() error {
	return m.client.Close()
}

// NearestNeighbors searches the gallery for the closest known tigers.
func (m *MilvusIndex) NearestNeighbors(ctx context.Context, embedding []float32, topK int) ([]monitor.TigerMatch, error) {
	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, fmt.Errorf("build search params: %w", err)
	}

	vectors := []entity.Vector{entity.FloatVector(embedding)}
	results, err := m.client.Search(
		ctx,
		m.collection,
		nil,
		"",
		[]string{"tiger_id", "name"},
		vectors,
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}

	var matches []monitor.TigerMatch
	for _, rs := range results {
		idCol := fieldAsVarChar(rs.Fields.GetColumn("tiger_id"))
		nameCol := fieldAsVarChar(rs.Fields.GetColumn("name"))
		for i := 0; i < rs.ResultCount; i++ {
			match := monitor.TigerMatch{Similarity: float64(rs.Scores[i])}
			if idCol != nil && i < idCol.Len() {
				match.TigerID, _ = idCol.ValueByIdx(i)
			}
			if nameCol != nil && i < nameCol.Len() {
				match.Name, _ = nameCol.ValueByIdx(i)
			}
			matches = append(matches, match)
		}
	}
	return matches, nil
}

func fieldAsVarChar(col entity.Column) *entity.ColumnVarChar {
	if col == nil {
		return nil
	}
	vc, ok := col.(*entity.ColumnVarChar)
	if !ok {
		return nil
	}
	return vc
}
