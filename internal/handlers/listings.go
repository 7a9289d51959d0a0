package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"emlak-aggregator/internal/database"
	"emlak-aggregator/internal/search"
)

// ListListings returns filtered listing rows
func (h *Handler) ListListings(c *gin.Context) {
	var f database.ListingFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	listings, total, err := h.store.ListListings(c.Request.Context(), f, limit, offset)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"count":    len(listings),
		"total":    total,
	})
}

// PriceHistory returns the price changes of one listing
func (h *Handler) PriceHistory(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return
	}
	ctx := c.Request.Context()
	listing, err := h.store.GetListing(ctx, uint(id))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}
	history, err := h.store.PriceHistoryFor(ctx, listing.ID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"listing": listing,
		"history": history,
		"count":   len(history),
	})
}

// Search runs a full-text query against the search index
func (h *Handler) Search(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search is not enabled"})
		return
	}
	var p search.Params
	if err := c.ShouldBindQuery(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.search.Search(c.Request.Context(), p)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
