package vision

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wildsight/tigerwatch/internal/monitor"
)

func TestDetectParsesBoundingBoxes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"detections":[
			{"bbox":[10,20,100,80],"confidence":0.91},
			{"bbox":[200,40,60,60],"confidence":0.55}
		]}`))
	}))
	defer srv.Close()

	d := NewHTTPDetector(DetectorConfig{DetectURL: srv.URL}, zap.NewNop())
	result := d.Detect(context.Background(), []byte("imagebytes"))

	assert.True(t, result.Detected)
	require.Len(t, result.Detections, 2)
	assert.Equal(t, 0.91, result.Confidence)
	assert.Equal(t, 10.0, result.Detections[0].X)
	assert.Empty(t, result.Error)
}

func TestDetectNoDetections(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"detections":[]}`))
	}))
	defer srv.Close()

	d := NewHTTPDetector(DetectorConfig{DetectURL: srv.URL}, zap.NewNop())
	result := d.Detect(context.Background(), []byte("img"))

	assert.False(t, result.Detected)
	assert.Empty(t, result.Detections)
	assert.Zero(t, result.Confidence)
}

func TestDetectBackendFailureDegrades(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewHTTPDetector(DetectorConfig{DetectURL: srv.URL}, zap.NewNop())
	result := d.Detect(context.Background(), []byte("img"))

	assert.False(t, result.Detected)
	assert.NotEmpty(t, result.Error)
	assert.Zero(t, result.Confidence)
}

func TestDetectUnconfiguredDegrades(t *testing.T) {
	t.Parallel()

	d := NewHTTPDetector(DetectorConfig{}, zap.NewNop())
	result := d.Detect(context.Background(), []byte("img"))

	assert.False(t, result.Detected)
	assert.Contains(t, result.Error, "not configured")
}

// stubIndex scripts nearest-neighbor responses.
type stubIndex struct {
	matches []monitor.TigerMatch
	err     error
}

func (s *stubIndex) NearestNeighbors(context.Context, []float32, int) ([]monitor.TigerMatch, error) {
	return s.matches, s.err
}

func embedServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
}

func TestIdentifyRanksAndThresholds(t *testing.T) {
	t.Parallel()

	srv := embedServer(t)
	defer srv.Close()

	index := &stubIndex{matches: []monitor.TigerMatch{
		{TigerID: "t-low", Similarity: 0.60},
		{TigerID: "t-mid", Similarity: 0.85},
		{TigerID: "t-high", Similarity: 0.95},
	}}
	id := NewIdentifier(IdentifierConfig{EmbedURL: srv.URL}, index, zap.NewNop())

	result := id.Identify(context.Background(), []byte("img"))

	assert.True(t, result.Identified)
	require.Len(t, result.Matches, 2, "matches below the threshold are dropped")
	assert.Equal(t, "t-high", result.Matches[0].TigerID, "matches ranked by similarity desc")
	require.NotNil(t, result.BestMatch)
	assert.Equal(t, "t-high", result.BestMatch.TigerID)
}

func TestIdentifyNoMatchAboveThreshold(t *testing.T) {
	t.Parallel()

	srv := embedServer(t)
	defer srv.Close()

	index := &stubIndex{matches: []monitor.TigerMatch{{TigerID: "t1", Similarity: 0.4}}}
	id := NewIdentifier(IdentifierConfig{EmbedURL: srv.URL}, index, zap.NewNop())

	result := id.Identify(context.Background(), []byte("img"))

	assert.False(t, result.Identified)
	assert.Empty(t, result.Matches)
	assert.Nil(t, result.BestMatch)
	assert.Empty(t, result.Error)
}

func TestIdentifyIndexFailureDegrades(t *testing.T) {
	t.Parallel()

	srv := embedServer(t)
	defer srv.Close()

	id := NewIdentifier(IdentifierConfig{EmbedURL: srv.URL}, &stubIndex{err: errors.New("index down")}, zap.NewNop())

	result := id.Identify(context.Background(), []byte("img"))

	assert.False(t, result.Identified)
	assert.Contains(t, result.Error, "index down")
}

func TestIdentifyEmbedFailureDegrades(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	id := NewIdentifier(IdentifierConfig{EmbedURL: srv.URL}, &stubIndex{}, zap.NewNop())

	result := id.Identify(context.Background(), []byte("img"))

	assert.False(t, result.Identified)
	assert.NotEmpty(t, result.Error)
}

func TestIdentifierDefaults(t *testing.T) {
	t.Parallel()

	id := NewIdentifier(IdentifierConfig{EmbedURL: "http://unused"}, &stubIndex{}, nil)
	assert.Equal(t, DefaultSimilarityThreshold, id.cfg.SimilarityThreshold)
	assert.Equal(t, DefaultMaxMatches, id.cfg.MaxMatches)
}

func TestImageFetcher(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tigerwatch-bot/0.1", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("jpegbytes"))
	}))
	defer srv.Close()

	f := NewImageFetcher(5*time.Second, "tigerwatch-bot/0.1")
	data, err := f.Fetch(context.Background(), srv.URL+"/tiger.jpg")

	require.NoError(t, err)
	assert.Equal(t, []byte("jpegbytes"), data)
}

func TestImageFetcherTransportError(t *testing.T) {
	f := NewImageFetcher(time.Second, "")
	httpmock.ActivateNonDefault(f.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, "https://cdn.example.com/gone.jpg",
		httpmock.NewErrorResponder(errors.New("connection reset")))

	_, err := f.Fetch(context.Background(), "https://cdn.example.com/gone.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestImageFetcherEmptyBody(t *testing.T) {
	f := NewImageFetcher(time.Second, "")
	httpmock.ActivateNonDefault(f.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, "https://cdn.example.com/empty.jpg",
		httpmock.NewStringResponder(http.StatusOK, ""))

	_, err := f.Fetch(context.Background(), "https://cdn.example.com/empty.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty body")
}

func TestImageFetcherErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewImageFetcher(time.Second, "")
	_, err := f.Fetch(context.Background(), srv.URL+"/missing.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
