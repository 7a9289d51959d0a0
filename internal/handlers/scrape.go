package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"emlak-aggregator/internal/broker"
	"emlak-aggregator/internal/tasks"
)

const maxBody = 1 << 20

// Submit queues a scrape job
func (h *Handler) Submit(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	id, err := h.dispatcher.Submit(c.Request.Context(), raw)
	var verr *tasks.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request",
			"details": verr.Fields,
		})
		return
	case err != nil:
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id})
}

// Status returns the status record of ?task_id, or of the active task
func (h *Handler) Status(c *gin.Context) {
	rec, err := h.dispatcher.Status(c.Request.Context(), c.Query("task_id"))
	switch {
	case errors.Is(err, tasks.ErrNoActiveTask), errors.Is(err, broker.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	case err != nil:
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Stop asks ?task_id, or the active task, to stop at its next page boundary
func (h *Handler) Stop(c *gin.Context) {
	id, err := h.dispatcher.Stop(c.Request.Context(), c.Query("task_id"))
	switch {
	case errors.Is(err, tasks.ErrNoActiveTask), errors.Is(err, broker.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	case err != nil:
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task_id": id,
		"message": "stop requested",
	})
}
