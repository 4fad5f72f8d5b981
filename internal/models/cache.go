package models

import "encoding/json"

// CacheRecord is the document persisted in the store, one per canonical key.
// Weather is opaque: it is stored and round-tripped, never interpreted.
// Timestamp is the ISO-8601 UTC time of the last successful write; it is kept
// as a string so that a malformed stored value surfaces at read time instead
// of failing decode.
type CacheRecord struct {
	City      string          `json:"city"`
	Weather   json.RawMessage `json:"weather"`
	Timestamp string          `json:"timestamp"`
}

// Miss reasons returned by cache checks.
const (
	ReasonCacheDisabled = "cache_disabled"
	ReasonNotFound      = "not_found"
	ReasonExpired       = "expired"
	ReasonError         = "error"
)

// CacheCheckResult is the response body for a cache check. Data is null on
// every miss. AgeSeconds is a pointer so that a zero age on a fresh hit is
// still emitted.
type CacheCheckResult struct {
	Cached     bool            `json:"cached"`
	Data       json.RawMessage `json:"data"`
	Reason     string          `json:"reason,omitempty"`
	AgeSeconds *int64          `json:"age_seconds,omitempty"`
}

// CacheWriteRequest is the body for POST /api/cache/write.
type CacheWriteRequest struct {
	City        string          `json:"city"`
	WeatherData json.RawMessage `json:"weather_data"`
}

// CacheWriteResult is the success response for a cache write.
type CacheWriteResult struct {
	Success bool   `json:"success"`
	City    string `json:"city"`
}
