// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storyforge-api/internal/config"
	"storyforge-api/internal/interfaces/http/handler"
	"storyforge-api/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的处理器集合
type Handlers struct {
	Health      *handler.HealthHandler
	Story       *handler.StoryHandler
	Playthrough *handler.PlaythroughHandler
	Turn        *handler.TurnHandler
}

// Router HTTP 路由器
type Router struct {
	engine      *gin.Engine
	cfg         *config.Config
	handlers    Handlers
	rateLimiter middleware.RateLimiter
	authCfg     middleware.AuthConfig
}

// New 创建新的路由器
func New(cfg *config.Config, handlers Handlers, rateLimiter middleware.RateLimiter, authCfg middleware.AuthConfig) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:      gin.New(),
		cfg:         cfg,
		handlers:    handlers,
		rateLimiter: rateLimiter,
		authCfg:     authCfg,
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
		r.engine.Use(middleware.Metrics())
	}
}

func (r *Router) setupRoutes() {
	r.engine.GET("/healthz", r.handlers.Health.Health)
	r.engine.GET("/ready", r.handlers.Health.Ready)
	r.engine.GET("/live", r.handlers.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/api/v1")
	v1.Use(middleware.Auth(r.authCfg))
	v1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:           r.cfg.Security.RateLimit.Enabled,
		RequestsPerSecond: r.cfg.Security.RateLimit.RequestsPerSecond,
		Burst:             r.cfg.Security.RateLimit.Burst,
	}, r.rateLimiter))

	stories := v1.Group("/stories")
	{
		stories.GET("", r.handlers.Story.List)
		stories.GET("/:id", r.handlers.Story.Get)
	}

	playthroughs := v1.Group("/playthroughs")
	{
		playthroughs.POST("", r.handlers.Playthrough.Start)
		playthroughs.GET("/:id", r.handlers.Playthrough.Get)
		playthroughs.GET("/:id/characters", r.handlers.Playthrough.ListCharacters)
		playthroughs.POST("/:id/turns", r.handlers.Turn.Process)
	}

	turns := v1.Group("/turns")
	{
		turns.GET("/:id", r.handlers.Turn.GetAudit)
	}

	characters := v1.Group("/characters")
	{
		characters.GET("/:id/state", r.handlers.Playthrough.GetCharacterState)
	}
}
