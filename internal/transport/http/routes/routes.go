package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-offline/internal/core/port"
	"github.com/arklim/social-platform-offline/internal/infra/config"
	"github.com/arklim/social-platform-offline/internal/transport/http/handlers"
	"github.com/arklim/social-platform-offline/internal/transport/http/middleware"
	"github.com/arklim/social-platform-offline/internal/usecase"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config  *config.AppConfig
	Logger  *zap.Logger
	Cache   *usecase.CacheManager
	Queue   *usecase.SyncQueue
	Limiter *usecase.AttemptLimiter
	Applier port.Applier
	Monitor port.ConnectivityMonitor
}

// Register configures the Gin engine with the diagnostics routes.
func Register(deps Dependencies) *gin.Engine {
	var (
		retention time.Duration
		rateLimit config.RateLimitSettings
	)
	if deps.Config != nil {
		if deps.Config.App.Env == "production" {
			gin.SetMode(gin.ReleaseMode)
		}
		retention = deps.Config.RateLimit.RetentionPeriod
		rateLimit = deps.Config.RateLimit
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))

	health := handlers.NewHealthHandler(deps.Monitor)
	diagnostics := handlers.NewDiagnosticsHandler(handlers.DiagnosticsDeps{
		Cache:     deps.Cache,
		Queue:     deps.Queue,
		Limiter:   deps.Limiter,
		Applier:   deps.Applier,
		Monitor:   deps.Monitor,
		RateLimit: rateLimit,
		Retention: retention,
		Logger:    deps.Logger,
	})

	r.GET("/healthz", health.Status)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.GET("/cache/stats", diagnostics.CacheStats)
		v1.GET("/sync/queue", diagnostics.Queue)
		v1.POST("/sync/drain", diagnostics.Drain)
		v1.GET("/rate-limits/status", diagnostics.LimitStatus)
		v1.POST("/rate-limits/sweep", diagnostics.Sweep)
	}

	return r
}
