package monitor

import "errors"

// Sentinel errors for pipeline boundaries. Stage-local failures (one image,
// one source, one provider) are recorded and swallowed; only these surface
// to callers.
var (
	// ErrNoSources means the facility has neither a website nor social
	// media links and cannot be dispatched.
	ErrNoSources = errors.New("facility has no crawlable sources")

	// ErrFacilityNotFound aborts a single job at its precondition check.
	ErrFacilityNotFound = errors.New("facility not found")

	// ErrNotFound is the generic store-level miss for history and
	// evidence lookups.
	ErrNotFound = errors.New("record not found")

	// ErrProvidersExhausted marks a search where every provider in the
	// chain failed. Callers receive it as an annotation on an empty
	// result set, never as a raised error.
	ErrProvidersExhausted = errors.New("all search providers exhausted")

	// ErrScrapeUnavailable marks a scrape attempted without a configured
	// backend. Degrades to an empty-content response with a warning.
	ErrScrapeUnavailable = errors.New("scraping backend not configured")
)
