package notification

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rollcare/rollcare/internal/platform/auth"
	"github.com/rollcare/rollcare/pkg/envelope"
)

// Handler exposes dispatcher state to administrators.
type Handler struct {
	dispatcher *Dispatcher
}

func NewHandler(d *Dispatcher) *Handler {
	return &Handler{dispatcher: d}
}

func (h *Handler) RegisterRoutes(r *auth.Routes) {
	r.GET("/notifications/stats", h.Stats, auth.RoleAdmin)
}

func (h *Handler) Stats(c echo.Context) error {
	return envelope.JSON(c, http.StatusOK, h.dispatcher.Stats())
}
