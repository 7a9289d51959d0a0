// Package handlers is the HTTP surface of the dispatcher process. Handlers
// translate requests into dispatcher and store calls and add nothing else.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"emlak-aggregator/internal/config"
	"emlak-aggregator/internal/database"
	"emlak-aggregator/internal/logging"
	"emlak-aggregator/internal/ratelimit"
	"emlak-aggregator/internal/search"
	"emlak-aggregator/internal/tasks"
)

// Searcher runs full-text listing searches
type Searcher interface {
	Search(ctx context.Context, p search.Params) (*search.Result, error)
}

// QueueStats reports job counts by status
type QueueStats interface {
	Stats(ctx context.Context) (map[string]int64, error)
}

// Options wires a Handler. Limiter, Search and Queue may be nil.
type Options struct {
	Dispatcher *tasks.Dispatcher
	Store      *database.Store
	Limiter    *ratelimit.RateLimiter
	Search     Searcher
	Queue      QueueStats
	Logger     *slog.Logger
}

// Handler serves the dispatcher API
type Handler struct {
	dispatcher *tasks.Dispatcher
	store      *database.Store
	limiter    *ratelimit.RateLimiter
	search     Searcher
	queue      QueueStats
	log        *slog.Logger
}

// New creates a handler
func New(o Options) *Handler {
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return &Handler{
		dispatcher: o.Dispatcher,
		store:      o.Store,
		limiter:    o.Limiter,
		search:     o.Search,
		queue:      o.Queue,
		log:        o.Logger.With("component", "api"),
	}
}

// NewRouter registers every route on a fresh gin engine
func NewRouter(h *Handler, cfg config.APIConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST"},
			AllowHeaders:     []string{"Origin", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		api.POST("/scrape", h.rateLimit(), h.Submit)
		api.GET("/scrape/status", h.Status)
		api.POST("/scrape/stop", h.Stop)

		api.GET("/listings", h.ListListings)
		api.GET("/listings/:id/history", h.PriceHistory)
		api.GET("/search", h.Search)

		api.GET("/analytics/summary", h.Summary)
		api.GET("/analytics/distribution", h.Distribution)

		api.GET("/sessions", h.ListSessions)
		api.GET("/stats", h.Stats)
	}
	return r
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// rateLimit rejects submissions over the configured budget
func (h *Handler) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter != nil && !h.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"stats": h.limiter.GetStats(),
			})
			return
		}
		c.Next()
	}
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func (h *Handler) internalError(c *gin.Context, err error) {
	h.log.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
