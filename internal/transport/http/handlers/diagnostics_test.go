package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-offline/internal/core/domain"
	"github.com/arklim/social-platform-offline/internal/core/port"
	"github.com/arklim/social-platform-offline/internal/repository/memory"
	"github.com/arklim/social-platform-offline/internal/usecase"
)

type staticMonitor struct{ online bool }

func (m *staticMonitor) Online(context.Context) bool { return m.online }

func (m *staticMonitor) Subscribe(func(bool)) (unsubscribe func()) { return func() {} }

func newTestRouter(t *testing.T, store *memory.Store, applier port.Applier, online bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cache := usecase.NewCacheManager(store, nil)
	queue := usecase.NewSyncQueue(store, nil)
	limiter := usecase.NewAttemptLimiter(store, nil)

	h := NewDiagnosticsHandler(DiagnosticsDeps{
		Cache:     cache,
		Queue:     queue,
		Limiter:   limiter,
		Applier:   applier,
		Monitor:   &staticMonitor{online: online},
		Retention: 24 * time.Hour,
	})

	r := gin.New()
	r.GET("/v1/cache/stats", h.CacheStats)
	r.GET("/v1/sync/queue", h.Queue)
	r.POST("/v1/sync/drain", h.Drain)
	r.GET("/v1/rate-limits/status", h.LimitStatus)
	r.POST("/v1/rate-limits/sweep", h.Sweep)
	return r
}

func TestDiagnostics_CacheStats(t *testing.T) {
	store := memory.NewStore()
	cache := usecase.NewCacheManager(store, nil)
	if err := cache.Set(context.Background(), "profile", map[string]string{"name": "ada"}, time.Minute); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	noop := port.ApplierFunc(func(context.Context, domain.SyncOperation) error { return nil })
	router := newTestRouter(t, store, noop, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var stats domain.CacheStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.TotalItems != 1 || stats.ValidItems != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestDiagnostics_QueueAndDrain(t *testing.T) {
	store := memory.NewStore()
	queue := usecase.NewSyncQueue(store, nil)
	if _, err := queue.Enqueue(context.Background(), "post.create", map[string]string{"id": "42"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	noop := port.ApplierFunc(func(context.Context, domain.SyncOperation) error { return nil })
	router := newTestRouter(t, store, noop, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/sync/queue", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var queueResp QueueResponse
	if err := json.Unmarshal(w.Body.Bytes(), &queueResp); err != nil {
		t.Fatalf("decode queue response: %v", err)
	}
	if len(queueResp.Operations) != 1 || queueResp.Operations[0].Kind != "post.create" {
		t.Fatalf("unexpected queue response: %+v", queueResp)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/sync/drain", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var drainResp DrainResponse
	if err := json.Unmarshal(w.Body.Bytes(), &drainResp); err != nil {
		t.Fatalf("decode drain response: %v", err)
	}
	if drainResp.Summary.Applied != 1 {
		t.Fatalf("expected one applied operation, got %+v", drainResp.Summary)
	}
}

func TestDiagnostics_DrainSkipsOffline(t *testing.T) {
	store := memory.NewStore()
	queue := usecase.NewSyncQueue(store, nil)
	if _, err := queue.Enqueue(context.Background(), "post.create", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	called := false
	applier := port.ApplierFunc(func(context.Context, domain.SyncOperation) error {
		called = true
		return nil
	})
	router := newTestRouter(t, store, applier, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/sync/drain", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var drainResp DrainResponse
	if err := json.Unmarshal(w.Body.Bytes(), &drainResp); err != nil {
		t.Fatalf("decode drain response: %v", err)
	}
	if !drainResp.Summary.Skipped {
		t.Fatalf("expected skipped summary, got %+v", drainResp.Summary)
	}
	if called {
		t.Fatalf("applier must not run while offline")
	}
}

func TestDiagnostics_LimitStatus(t *testing.T) {
	store := memory.NewStore()
	limiter := usecase.NewAttemptLimiter(store, nil)
	for i := 0; i < 5; i++ {
		if err := limiter.RecordAttempt(context.Background(), "login:john.doe@example.com"); err != nil {
			t.Fatalf("record attempt: %v", err)
		}
	}

	noop := port.ApplierFunc(func(context.Context, domain.SyncOperation) error { return nil })
	router := newTestRouter(t, store, noop, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/rate-limits/status?key=login:john.doe@example.com", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var status LimitStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if status.Allowed {
		t.Fatalf("expected key to be over the limit, got %+v", status)
	}
	if status.Remaining != 0 || status.MaxAttempts != 5 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Key != "login:joh***@example.com" {
		t.Fatalf("expected masked key, got %q", status.Key)
	}

	// The key parameter is required.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/rate-limits/status", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing key, got %d", w.Code)
	}
}

func TestDiagnostics_SweepReportsRemovals(t *testing.T) {
	store := memory.NewStore()
	// An ancient record well past any retention floor.
	if err := store.Set(context.Background(), "offline:rate:login:old@x.com",
		`{"count":1,"first_attempt_at":"2020-01-01T00:00:00Z","last_attempt_at":"2020-01-01T00:00:00Z"}`); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	noop := port.ApplierFunc(func(context.Context, domain.SyncOperation) error { return nil })
	router := newTestRouter(t, store, noop, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/rate-limits/sweep", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sweepResp SweepResponse
	if err := json.Unmarshal(w.Body.Bytes(), &sweepResp); err != nil {
		t.Fatalf("decode sweep response: %v", err)
	}
	if sweepResp.Removed != 1 {
		t.Fatalf("expected one record removed, got %d", sweepResp.Removed)
	}
}
