package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-offline/internal/core/port"
	"github.com/arklim/social-platform-offline/internal/infra/config"
	"github.com/arklim/social-platform-offline/internal/infra/logger"
	"github.com/arklim/social-platform-offline/internal/usecase"
)

// DiagnosticsHandler exposes a local inspection surface over the resilience
// services: cache statistics, the pending sync queue, and manual triggers for
// drain and sweep. It is bound to localhost and owns no remote API.
type DiagnosticsHandler struct {
	cache     *usecase.CacheManager
	queue     *usecase.SyncQueue
	limiter   *usecase.AttemptLimiter
	applier   port.Applier
	monitor   port.ConnectivityMonitor
	rateLimit config.RateLimitSettings
	retention time.Duration
	logger    *zap.Logger
}

// DiagnosticsDeps groups the collaborators of the diagnostics surface.
type DiagnosticsDeps struct {
	Cache     *usecase.CacheManager
	Queue     *usecase.SyncQueue
	Limiter   *usecase.AttemptLimiter
	Applier   port.Applier
	Monitor   port.ConnectivityMonitor
	RateLimit config.RateLimitSettings
	Retention time.Duration
	Logger    *zap.Logger
}

// NewDiagnosticsHandler builds the diagnostics handler.
func NewDiagnosticsHandler(deps DiagnosticsDeps) *DiagnosticsHandler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	retention := deps.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &DiagnosticsHandler{
		cache:     deps.Cache,
		queue:     deps.Queue,
		limiter:   deps.Limiter,
		applier:   deps.Applier,
		monitor:   deps.Monitor,
		rateLimit: deps.RateLimit,
		retention: retention,
		logger:    log,
	}
}

// CacheStats returns the aggregate cache scan.
func (h *DiagnosticsHandler) CacheStats(c *gin.Context) {
	stats, err := h.cache.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "cache scan failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Queue returns the pending sync operations and the last drain timestamp.
func (h *DiagnosticsHandler) Queue(c *gin.Context) {
	ops, err := h.queue.Operations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "queue read failed"})
		return
	}

	resp := QueueResponse{Operations: ops}
	if at, ok, err := h.queue.LastSyncAt(c.Request.Context()); err == nil && ok {
		resp.LastSyncAt = &at
	}
	c.JSON(http.StatusOK, resp)
}

// Drain triggers a drain pass against the configured applier.
func (h *DiagnosticsHandler) Drain(c *gin.Context) {
	online := func() bool {
		if h.monitor == nil {
			return true
		}
		return h.monitor.Online(c.Request.Context())
	}

	summary, err := h.queue.Drain(c.Request.Context(), h.applier, online)
	if err != nil {
		if errors.Is(err, usecase.ErrDrainInProgress) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "drain failed"})
		return
	}
	c.JSON(http.StatusOK, DrainResponse{Summary: summary})
}

// LimitStatus reports the rate-limit state for one key without consuming an
// attempt. The attempt budget is resolved from the key's action scope
// ("login:<id>", "register:<id>", "password_reset:<id>") and is fixed by
// configuration.
func (h *DiagnosticsHandler) LimitStatus(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "key query parameter is required"})
		return
	}

	maxAttempts := h.maxAttemptsFor(key)
	window := h.rateLimit.WindowDuration
	if window <= 0 {
		window = 15 * time.Minute
	}

	ctx := c.Request.Context()
	allowed, err := h.limiter.CheckLimit(ctx, key, maxAttempts, window)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "limit check failed"})
		return
	}
	remaining, err := h.limiter.RemainingAttempts(ctx, key, maxAttempts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "limit check failed"})
		return
	}
	wait, err := h.limiter.WaitTime(ctx, key, window)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "limit check failed"})
		return
	}

	c.JSON(http.StatusOK, LimitStatusResponse{
		Key:         logger.MaskKey(key),
		Allowed:     allowed,
		MaxAttempts: maxAttempts,
		Remaining:   remaining,
		RetryAfter:  wait.String(),
	})
}

func (h *DiagnosticsHandler) maxAttemptsFor(key string) int {
	scope, _, _ := strings.Cut(key, ":")

	var limit int
	switch scope {
	case "register":
		limit = h.rateLimit.RegisterMaxAttempts
	case "password_reset":
		limit = h.rateLimit.PasswordResetMaxAttempts
	default:
		limit = h.rateLimit.LoginMaxAttempts
	}
	if limit <= 0 {
		limit = 5
	}
	return limit
}

// Sweep triggers a retention sweep over the rate-limit namespace. The
// retention floor is fixed by configuration, never by the request, so the
// endpoint cannot be used to clear records that are still blocking.
func (h *DiagnosticsHandler) Sweep(c *gin.Context) {
	removed, err := h.limiter.ClearExpired(c.Request.Context(), h.retention)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "sweep failed"})
		return
	}
	c.JSON(http.StatusOK, SweepResponse{Removed: removed})
}
