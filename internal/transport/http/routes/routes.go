package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/customer-identity/internal/infra/config"
	"github.com/arklim/customer-identity/internal/transport/http/handlers"
	"github.com/arklim/customer-identity/internal/transport/http/middleware"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Auth        handlers.AuthService
	KeySet      handlers.KeySet
	RateLimiter *middleware.RateLimiter
	HTTPMetrics *middleware.HTTPMetrics
	Tracing     *middleware.TracingOptions
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
	// Readiness maps dependency names to their readiness checks.
	Readiness map[string]handlers.Pinger
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if deps.Tracing != nil {
		r.Use(middleware.Tracing(*deps.Tracing))
	}
	r.Use(middleware.RequestID())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.HTTPMetrics.Handler())
	r.Use(middleware.CORS(deps.Config.App.CORSOrigins))

	health := handlers.NewHealthHandler(deps.Readiness)
	r.GET("/healthz", health.Status)
	r.GET("/readyz", health.Ready)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	r.GET("/.well-known/jwks.json", handlers.NewJWKSHandler(deps.KeySet).Keys)

	if deps.Auth == nil {
		return r
	}

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		authHandler := handlers.NewAuthHandler(deps.Auth,
			handlers.WithDevMode(deps.Config.IsDevelopment()),
			handlers.WithLogger(deps.Logger),
		)
		authHandler.RegisterRoutes(authGroup, handlers.AuthRouteGuards{
			Register:   rateLimit(deps, "auth_register_ip", deps.Config.RateLimit.RegisterMaxAttempts),
			Activation: rateLimit(deps, "auth_activation_ip", deps.Config.RateLimit.ResendMaxAttempts),
			Login:      rateLimit(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts),
			Refresh:    rateLimit(deps, "auth_refresh_ip", deps.Config.RateLimit.RefreshMaxAttempts),
		})

		accountHandler := handlers.NewAccountHandler(deps.Auth, deps.Logger)
		accountHandler.RegisterRoutes(api.Group("/account"))
	}

	return r
}

func rateLimit(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}
	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
