package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ardhptr21/myits-lapor/internal/response"
)

type healthResponse struct {
	Status      string            `json:"status"`
	Components  map[string]string `json:"components"`
	Environment string            `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := healthResponse{
		Status:      "ok",
		Components:  make(map[string]string, len(h.checks)),
		Environment: h.cfg.Environment,
	}
	status := http.StatusOK

	for _, check := range h.checks {
		if err := check.ping(ctx); err != nil {
			h.log.Error().Err(err).Str("component", check.name).Msg("health check failed")
			body.Components[check.name] = "error"
			body.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		body.Components[check.name] = "ok"
	}

	response.Success(c, status, body.Status, body)
}
