package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck pings one dependency.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type healthResponse struct {
	Status      string            `json:"status"`
	Checks      map[string]string `json:"checks"`
	Environment string            `json:"environment"`
}

func (h *HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Checks:      make(map[string]string, len(h.Checks)),
		Environment: h.Config.Environment,
	}
	for _, check := range h.Checks {
		status := "ok"
		if err := check.Ping(ctx); err != nil {
			status = "error"
			resp.Status = "degraded"
			h.Log.Error().Err(err).Str("check", check.Name).Msg("health check failed")
		}
		resp.Checks[check.Name] = status
	}

	c.JSON(http.StatusOK, resp)
}
