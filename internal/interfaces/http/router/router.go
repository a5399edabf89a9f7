// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rag-knowledge-hub/internal/config"
	"rag-knowledge-hub/internal/interfaces/http/handler"
	"rag-knowledge-hub/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的处理器与限流器
type Handlers struct {
	Health    *handler.HealthHandler
	Documents *handler.DocumentHandler
	Query     *handler.QueryHandler

	// RateLimiter 为 nil 时不限流
	RateLimiter  middleware.RateLimiter
	RateLimitKey middleware.KeyFunc
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	cfg    *config.Config
	h      Handlers
}

// New 创建新的路由器
func New(cfg *config.Config, h Handlers) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.MaxMultipartMemory = 32 << 20

	r := &Router{
		engine: engine,
		cfg:    cfg,
		h:      h,
	}
	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics(r.cfg.Observability.Metrics.Path))
	}
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.h.Health.Health)
	r.engine.GET("/ready", r.h.Health.Ready)
	r.engine.GET("/live", r.h.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/api/v1")
	v1.Use(middleware.Auth(middleware.AuthConfig{
		Enabled: r.cfg.Security.Auth.Enabled,
		Secret:  r.cfg.Security.JWT.Secret,
		Issuer:  r.cfg.Security.JWT.Issuer,
	}))
	v1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:           r.cfg.Security.RateLimit.Enabled,
		RequestsPerSecond: r.cfg.Security.RateLimit.RequestsPerSecond,
		Burst:             r.cfg.Security.RateLimit.Burst,
	}, r.h.RateLimiter, r.h.RateLimitKey))
	v1.Use(middleware.Audit())

	RegisterV1Routes(v1, r.h.Documents, r.h.Query)
}
