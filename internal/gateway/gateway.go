// Package gateway serves the single database probe used by deployments.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Clock reads the current time from the relational store.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

type Handler struct {
	clock   Clock
	timeout time.Duration
	log     zerolog.Logger
}

func NewHandler(clock Clock, timeout time.Duration, log zerolog.Logger) *Handler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Handler{clock: clock, timeout: timeout, log: log}
}

func (h *Handler) Register(router gin.IRouter) {
	router.GET("/api/test", h.Test)
}

type nowRow struct {
	Now string `json:"now"`
}

func (h *Handler) Test(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	now, err := h.clock.Now(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("select now failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, []nowRow{{Now: now.UTC().Format(time.RFC3339Nano)}})
}
