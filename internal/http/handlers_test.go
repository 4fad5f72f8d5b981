package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cumulusworks/weather-cache-service/internal/gateway"
	"github.com/cumulusworks/weather-cache-service/internal/models"
)

type mockStore struct {
	data   map[string]models.CacheRecord
	getErr error
	putErr error
}

func (m *mockStore) Get(ctx context.Context, key string) (models.CacheRecord, bool, error) {
	if m.getErr != nil {
		return models.CacheRecord{}, false, m.getErr
	}
	rec, ok := m.data[key]
	return rec, ok, nil
}

func (m *mockStore) Put(ctx context.Context, key string, rec models.CacheRecord) error {
	if m.putErr != nil {
		return m.putErr
	}
	if m.data == nil {
		m.data = make(map[string]models.CacheRecord)
	}
	m.data[key] = rec
	return nil
}

func (m *mockStore) Ping(ctx context.Context) error { return nil }

func newTestRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", h.GetRoot).Methods("GET")
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.HandleFunc("/api/cache/check", h.CheckCache).Methods("GET")
	router.HandleFunc("/api/cache/write", h.WriteCache).Methods("POST")
	return router
}

// TestHandler_Root verifies the service banner response.
func TestHandler_Root(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	h := NewHandler(gateway.New(&mockStore{}, nil), logger, nil)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["service"] != "weather-cache-backend" {
		t.Errorf("service = %q, want weather-cache-backend", resp["service"])
	}
	if resp["message"] == "" {
		t.Error("message missing")
	}
}

// TestHandler_Health verifies cache_enabled reflects store configuration.
func TestHandler_Health(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	tests := []struct {
		name        string
		gw          *gateway.Gateway
		wantEnabled bool
	}{
		{"enabled", gateway.New(&mockStore{}, nil), true},
		{"disabled", gateway.New(nil, nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.gw, logger, nil)
			req := httptest.NewRequest("GET", "/health", nil)
			w := httptest.NewRecorder()
			newTestRouter(h).ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			var resp map[string]interface{}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp["status"] != "healthy" {
				t.Errorf("status = %v, want healthy", resp["status"])
			}
			if resp["cache_enabled"] != tt.wantEnabled {
				t.Errorf("cache_enabled = %v, want %v", resp["cache_enabled"], tt.wantEnabled)
			}
		})
	}
}

// TestHandler_Health_StorePing verifies the best-effort store reachability
// field when a ping is wired.
func TestHandler_Health_StorePing(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	h := NewHandler(gateway.New(&mockStore{}, nil), logger, func(ctx context.Context) error {
		return errors.New("unreachable")
	})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, req)

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["store"] != "unreachable" {
		t.Errorf("store = %v, want unreachable", resp["store"])
	}
}

// TestHandler_WriteThenCheck verifies the full round trip: write New York,
// check new york, get the payload back fresh with a small age.
func TestHandler_WriteThenCheck(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	h := NewHandler(gateway.New(&mockStore{data: make(map[string]models.CacheRecord)}, nil), logger, nil)
	router := newTestRouter(h)

	writeBody := `{"city":"New York","weather_data":{"temp":72}}`
	req := httptest.NewRequest("POST", "/api/cache/write", strings.NewReader(writeBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("write status = %d, want %d; body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	var writeResp models.CacheWriteResult
	if err := json.NewDecoder(w.Body).Decode(&writeResp); err != nil {
		t.Fatalf("decode write response: %v", err)
	}
	if !writeResp.Success || writeResp.City != "New York" {
		t.Errorf("write response = %+v, want success for New York", writeResp)
	}

	req = httptest.NewRequest("GET", "/api/cache/check?city=new+york", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("check status = %d, want %d", w.Code, http.StatusOK)
	}
	var checkResp models.CacheCheckResult
	if err := json.NewDecoder(w.Body).Decode(&checkResp); err != nil {
		t.Fatalf("decode check response: %v", err)
	}
	if !checkResp.Cached {
		t.Fatalf("check cached = false, want true; reason = %q", checkResp.Reason)
	}
	if string(checkResp.Data) != `{"temp":72}` {
		t.Errorf("check data = %s, want {\"temp\":72}", checkResp.Data)
	}
	if checkResp.AgeSeconds == nil || *checkResp.AgeSeconds > 2 {
		t.Errorf("check age_seconds = %v, want <= 2", checkResp.AgeSeconds)
	}
}

// TestHandler_Check_NotFound verifies the not_found payload for a city never
// written, with data explicitly null.
func TestHandler_Check_NotFound(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	h := NewHandler(gateway.New(&mockStore{}, nil), logger, nil)

	req := httptest.NewRequest("GET", "/api/cache/check?city=Atlantis", nil)
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["cached"] != false {
		t.Errorf("cached = %v, want false", resp["cached"])
	}
	if resp["reason"] != "not_found" {
		t.Errorf("reason = %v, want not_found", resp["reason"])
	}
	if v, ok := resp["data"]; !ok || v != nil {
		t.Errorf("data = %v (present=%v), want explicit null", v, ok)
	}
}

// TestHandler_Check_StoreError verifies that a store fault still yields 200
// with an error-reason payload rather than a request failure.
func TestHandler_Check_StoreError(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	h := NewHandler(gateway.New(&mockStore{getErr: errors.New("boom")}, nil), logger, nil)

	req := httptest.NewRequest("GET", "/api/cache/check?city=seattle", nil)
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp models.CacheCheckResult
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Cached || resp.Reason != models.ReasonError {
		t.Errorf("response = %+v, want error miss", resp)
	}
}

// TestHandler_Check_Disabled verifies cache_disabled when no store is wired.
func TestHandler_Check_Disabled(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	h := NewHandler(gateway.New(nil, nil), logger, nil)

	req := httptest.NewRequest("GET", "/api/cache/check?city=seattle", nil)
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp models.CacheCheckResult
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Cached || resp.Reason != models.ReasonCacheDisabled {
		t.Errorf("response = %+v, want cache_disabled miss", resp)
	}
}

// TestHandler_Check_EmptyCity verifies that an empty city is passed through
// and produces a not_found result rather than an input error.
func TestHandler_Check_EmptyCity(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	h := NewHandler(gateway.New(&mockStore{}, nil), logger, nil)

	req := httptest.NewRequest("GET", "/api/cache/check", nil)
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp models.CacheCheckResult
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reason != models.ReasonNotFound {
		t.Errorf("reason = %q, want not_found", resp.Reason)
	}
}

// TestHandler_Write_Disabled verifies the 503 when the cache is not configured.
func TestHandler_Write_Disabled(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	h := NewHandler(gateway.New(nil, nil), logger, nil)

	req := httptest.NewRequest("POST", "/api/cache/write", strings.NewReader(`{"city":"seattle","weather_data":{}}`))
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["detail"] != "Cache not configured" {
		t.Errorf("detail = %q, want Cache not configured", resp["detail"])
	}
}

// TestHandler_Write_StoreFailure verifies the 500 with a descriptive detail
// when the store rejects the write.
func TestHandler_Write_StoreFailure(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	h := NewHandler(gateway.New(&mockStore{putErr: errors.New("index read-only")}, nil), logger, nil)

	req := httptest.NewRequest("POST", "/api/cache/write", strings.NewReader(`{"city":"seattle","weather_data":{}}`))
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp["detail"], "Cache write failed: ") {
		t.Errorf("detail = %q, want Cache write failed prefix", resp["detail"])
	}
	if !strings.Contains(resp["detail"], "index read-only") {
		t.Errorf("detail = %q, want underlying fault description", resp["detail"])
	}
}

// TestHandler_Write_BadBody verifies a 400 for malformed JSON.
func TestHandler_Write_BadBody(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	h := NewHandler(gateway.New(&mockStore{}, nil), logger, nil)

	req := httptest.NewRequest("POST", "/api/cache/write", strings.NewReader(`{`))
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// TestHandler_Check_Expired verifies the expired payload carries the age.
func TestHandler_Check_Expired(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	st := &mockStore{data: map[string]models.CacheRecord{
		"seattle": {
			City:      "seattle",
			Weather:   json.RawMessage(`{"temp":50}`),
			Timestamp: time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC3339Nano),
		},
	}}
	h := NewHandler(gateway.New(st, nil), logger, nil)

	req := httptest.NewRequest("GET", "/api/cache/check?city=seattle", nil)
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, req)

	var resp models.CacheCheckResult
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Cached {
		t.Error("cached = true, want false")
	}
	if resp.Reason != models.ReasonExpired {
		t.Errorf("reason = %q, want expired", resp.Reason)
	}
	if resp.AgeSeconds == nil || *resp.AgeSeconds < 7199 {
		t.Errorf("age_seconds = %v, want >= 7199", resp.AgeSeconds)
	}
}
