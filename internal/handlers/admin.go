package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"emlak-aggregator/internal/analytics"
	"emlak-aggregator/internal/database"
)

// Summary returns price statistics over the filtered listings
func (h *Handler) Summary(c *gin.Context) {
	var f database.ListingFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	summary, err := h.store.PriceSummary(c.Request.Context(), f)
	if errors.Is(err, analytics.ErrNoData) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data"})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"filter":  f,
		"summary": summary,
	})
}

// Distribution returns the price histogram of the filtered listings
func (h *Handler) Distribution(c *gin.Context) {
	var f database.ListingFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := strconv.Atoi(c.DefaultQuery("buckets", "10"))
	if err != nil || n < 1 || n > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "buckets must be between 1 and 100"})
		return
	}
	buckets, err := h.store.PriceDistribution(c.Request.Context(), f, n)
	if errors.Is(err, analytics.ErrNoData) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data"})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"filter":  f,
		"buckets": buckets,
	})
}

// ListSessions returns the most recent scrape sessions
func (h *Handler) ListSessions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	sessions, err := h.store.ListSessions(c.Request.Context(), limit)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// Stats returns queue and submission budget counters
func (h *Handler) Stats(c *gin.Context) {
	stats := gin.H{}
	if h.queue != nil {
		jobs, err := h.queue.Stats(c.Request.Context())
		if err != nil {
			h.internalError(c, err)
			return
		}
		stats["jobs"] = jobs
	}
	if h.limiter != nil {
		stats["rate_limit"] = h.limiter.GetStats()
	}
	c.JSON(http.StatusOK, stats)
}
