package store

import (
	"context"

	"github.com/cumulusworks/weather-cache-service/internal/models"
)

// Store defines get-by-key / upsert-by-key access to cache documents.
// Get returns (record, true, nil) when the document exists, (zero, false, nil)
// on a clean negative lookup, and a non-nil error for any other fault.
// Put fully replaces the document at key.
type Store interface {
	Get(ctx context.Context, key string) (models.CacheRecord, bool, error)
	Put(ctx context.Context, key string, rec models.CacheRecord) error
	Ping(ctx context.Context) error
}
