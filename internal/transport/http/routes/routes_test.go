package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-offline/internal/core/domain"
	"github.com/arklim/social-platform-offline/internal/core/port"
	"github.com/arklim/social-platform-offline/internal/repository/memory"
	"github.com/arklim/social-platform-offline/internal/usecase"
)

func TestRegister_NilConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	r := Register(Dependencies{
		Cache:   usecase.NewCacheManager(store, nil),
		Queue:   usecase.NewSyncQueue(store, nil),
		Limiter: usecase.NewAttemptLimiter(store, nil),
		Applier: port.ApplierFunc(func(context.Context, domain.SyncOperation) error { return nil }),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d: %s", w.Code, w.Body.String())
	}
}
