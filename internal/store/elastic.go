package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"github.com/cumulusworks/weather-cache-service/internal/models"
)

// indexMapping is the schema for the cache index. Weather is stored but not
// indexed or searchable.
const indexMapping = `{
  "mappings": {
    "properties": {
      "city":      {"type": "keyword"},
      "timestamp": {"type": "date"},
      "weather":   {"type": "object", "enabled": false}
    }
  }
}`

// ElasticStore implements Store on an Elasticsearch index, one document per
// canonical key.
type ElasticStore struct {
	client *elasticsearch.Client
	index  string
}

// NewElasticStore creates an ElasticStore for the given endpoint and API key.
// The endpoint should already be normalized (see config.NormalizeEndpoint).
func NewElasticStore(endpoint, apiKey, index string) (*ElasticStore, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{endpoint},
		APIKey:    apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &ElasticStore{client: client, index: index}, nil
}

// NewElasticStoreWithClient wraps an existing client. Used by tests.
func NewElasticStoreWithClient(client *elasticsearch.Client, index string) *ElasticStore {
	return &ElasticStore{client: client, index: index}
}

// EnsureIndex creates the cache index with its mapping if it does not exist.
// Safe to call on every startup.
func (s *ElasticStore) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists(
		[]string{s.index},
		s.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("check index %s: %w", s.index, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		// fall through to create
	default:
		return fmt.Errorf("check index %s: %s", s.index, res.Status())
	}

	createRes, err := s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithBody(bytes.NewReader([]byte(indexMapping))),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", s.index, err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		return fmt.Errorf("create index %s: %s", s.index, createRes.Status())
	}
	return nil
}

// getResponse is the subset of the _doc get response we consume.
type getResponse struct {
	Found  bool               `json:"found"`
	Source models.CacheRecord `json:"_source"`
}

// Get implements Store.Get. A 404 (missing document or missing index) is a
// clean negative lookup, not an error.
func (s *ElasticStore) Get(ctx context.Context, key string) (models.CacheRecord, bool, error) {
	res, err := s.client.Get(s.index, key, s.client.Get.WithContext(ctx))
	if err != nil {
		return models.CacheRecord{}, false, fmt.Errorf("get %s/%s: %w", s.index, key, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return models.CacheRecord{}, false, nil
	}
	if res.IsError() {
		return models.CacheRecord{}, false, fmt.Errorf("get %s/%s: %s", s.index, key, res.Status())
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return models.CacheRecord{}, false, fmt.Errorf("get %s/%s: read body: %w", s.index, key, err)
	}
	var parsed getResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.CacheRecord{}, false, fmt.Errorf("get %s/%s: decode: %w", s.index, key, err)
	}
	if !parsed.Found {
		return models.CacheRecord{}, false, nil
	}
	return parsed.Source, true, nil
}

// Put implements Store.Put via an identifier-based upsert: the document at key
// is fully replaced.
func (s *ElasticStore) Put(ctx context.Context, key string, rec models.CacheRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("put %s/%s: encode: %w", s.index, key, err)
	}
	res, err := s.client.Index(
		s.index,
		bytes.NewReader(raw),
		s.client.Index.WithDocumentID(key),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.index, key, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("put %s/%s: %s", s.index, key, res.Status())
	}
	return nil
}

// Ping checks that the store is reachable. Used by the health handler.
func (s *ElasticStore) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping: %s", res.Status())
	}
	return nil
}
