package retrieval

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerpAPIProviderParsesResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tiger sanctuary ohio", r.URL.Query().Get("q"))
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"organic_results":[
			{"title":"Sanctuary","link":"https://sanctuary.example.org","snippet":"tigers"},
			{"title":"News","link":"https://news.example.com","snippet":"article"}
		]}`))
	}))
	defer srv.Close()

	p := NewSerpAPIProvider("test-key", srv.URL, 5*time.Second)
	results, err := p.Search(context.Background(), "tiger sanctuary ohio", 5)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Sanctuary", results[0].Title)
	assert.Equal(t, "https://sanctuary.example.org", results[0].URL)
}

func TestSerpAPIProviderWithoutKeyFails(t *testing.T) {
	t.Parallel()

	p := NewSerpAPIProvider("", "", time.Second)
	_, err := p.Search(context.Background(), "q", 5)
	require.Error(t, err)
}

func TestSerpAPIProviderRespectsLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"organic_results":[
			{"title":"a","link":"https://a.com"},
			{"title":"b","link":"https://b.com"},
			{"title":"c","link":"https://c.com"}
		]}`))
	}))
	defer srv.Close()

	p := NewSerpAPIProvider("k", srv.URL, time.Second)
	results, err := p.Search(context.Background(), "q", 2)

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestBraveProviderParsesResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "brv-key", r.Header.Get("X-Subscription-Token"))
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"title":"Park","url":"https://park.example.com","description":"big cats"}
		]}}`))
	}))
	defer srv.Close()

	p := NewBraveProvider("brv-key", srv.URL, time.Second)
	results, err := p.Search(context.Background(), "q", 5)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "big cats", results[0].Snippet)
}

func TestBraveProviderErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewBraveProvider("k", srv.URL, time.Second)
	_, err := p.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestResultsPageProviderExtractsLinks(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<a class="result__a" href="https://direct.example.com/page">Direct hit</a>
			<a class="result__a" href="/l/?uddg=https%3A%2F%2Fwrapped.example.com%2Fzoo">Wrapped hit</a>
			<a class="result__a" href="/internal">Relative, skipped</a>
		</body></html>`))
	}))
	defer srv.Close()

	p := NewResultsPageProvider(srv.URL, "test-agent", time.Second)
	results, err := p.Search(context.Background(), "roadside zoo", 10)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://direct.example.com/page", results[0].URL)
	assert.Equal(t, "https://wrapped.example.com/zoo", results[1].URL)
}

func TestResultsPageProviderLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<a class="result__a" href="https://a.example.com">A</a>
			<a class="result__a" href="https://b.example.com">B</a>
			<a class="result__a" href="https://c.example.com">C</a>
		</body></html>`))
	}))
	defer srv.Close()

	p := NewResultsPageProvider(srv.URL, "", time.Second)
	results, err := p.Search(context.Background(), "q", 1)

	require.NoError(t, err)
	assert.Len(t, results, 1)
}
