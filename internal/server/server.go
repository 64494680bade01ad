package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/comigor/botdesk/internal/chat"
	"github.com/comigor/botdesk/internal/config"
	"github.com/comigor/botdesk/internal/logger"
	"github.com/comigor/botdesk/internal/store"
)

// Deps are the collaborators the HTTP surface is built from. Redis and
// Gatherer are optional.
type Deps struct {
	Chat     *chat.Service
	Store    *store.Store
	Redis    *redis.Client
	Gatherer prometheus.Gatherer
}

type handler struct {
	chat  *chat.Service
	store *store.Store
}

// New builds the gin engine with all routes and middleware.
func New(cfg *config.Config, deps Deps) *gin.Engine {
	if logger.Level() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), cors(), requestTimeout(cfg.Server.RequestTimeout))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	h := &handler{chat: deps.Chat, store: deps.Store}

	public := r.Group("/api")
	public.GET("/bots/:botId", h.getBot)

	chatRoutes := r.Group("/api")
	if cfg.RateLimit.Enabled {
		chatRoutes.Use(rateLimiter(cfg.RateLimit, deps.Redis))
	}
	chatRoutes.POST("/chat", h.handleChat)

	admin := r.Group("/api", adminAuth(cfg.Auth.JWTSecret))
	admin.GET("/bots", h.listBots)
	admin.POST("/bots", h.createBot)
	admin.POST("/bots/:botId/documents", h.addDocument)
	admin.GET("/conversations", h.listConversations)
	admin.GET("/conversations/:id/messages", h.listMessages)
	admin.GET("/stats", h.stats)

	return r
}

func rateLimiter(cfg config.RateLimitConfig, client *redis.Client) gin.HandlerFunc {
	if cfg.UseRedis && client != nil {
		return RedisRateLimitMiddleware(client, cfg.RPS, cfg.Burst, time.Duration(cfg.WindowSeconds)*time.Second)
	}
	return RateLimitMiddleware(cfg.RPS, cfg.Burst)
}
