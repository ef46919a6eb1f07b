package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/config"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/transport/http/handlers"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/transport/http/middleware"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config         *config.AppConfig
	Logger         *zap.Logger
	Sessions       handlers.SessionService
	Profiles       handlers.ProfileService
	Cache          handlers.CacheService
	Metrics        *middleware.HTTPMetrics
	TracerProvider trace.TracerProvider
	Database       DatabaseChecker
	Store          StoreChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// StoreChecker exposes readiness behaviour for the persisted local state backend.
type StoreChecker interface {
	Ping(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if deps.Config.Telemetry.TracingEnabled {
		r.Use(middleware.Tracing(deps.Config.Telemetry.ServiceName, deps.TracerProvider))
	}
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("postgres", deps.Database.Ping))
	}

	if deps.Store != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("store", deps.Store.Ping))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	if deps.Config.Telemetry.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api/v1")
	{
		if deps.Sessions != nil {
			handlers.NewSessionHandler(deps.Sessions).RegisterRoutes(api.Group("/session"))
		}

		if deps.Sessions != nil && deps.Profiles != nil {
			handlers.NewProfileHandler(deps.Sessions, deps.Profiles).RegisterRoutes(api.Group("/profile"))
		}

		if deps.Cache != nil {
			handlers.NewCacheHandler(deps.Cache).RegisterRoutes(api.Group("/cache"))
		}
	}

	return r
}
