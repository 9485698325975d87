package ticket

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rollcare/rollcare/internal/platform/apperr"
	"github.com/rollcare/rollcare/internal/platform/auth"
	"github.com/rollcare/rollcare/internal/platform/middleware"
	"github.com/rollcare/rollcare/pkg/envelope"
	"github.com/rollcare/rollcare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *auth.Routes) {
	r.POST("/tickets", h.OpenTicket, auth.RoleAdmin, auth.RoleOps, auth.RolePatient)
	r.GET("/tickets", h.ListTickets, auth.RoleAdmin, auth.RoleOps)
	r.GET("/tickets/:id", h.GetTicket, auth.RoleAdmin, auth.RoleOps, auth.RolePatient)
	r.GET("/patients/:id/tickets", h.ListPatientTickets, auth.RoleAdmin, auth.RoleOps, auth.RolePatient)
	r.POST("/tickets/:id/status", h.UpdateTicketStatus, auth.RoleAdmin, auth.RoleOps)
}

type openRequest struct {
	DeviceID    uuid.UUID `json:"deviceId"`
	Category    string    `json:"category"`
	Priority    string    `json:"priority"`
	Description string    `json:"description"`
}

type statusRequest struct {
	Status       Status     `json:"status"`
	ScheduledFor *time.Time `json:"scheduledFor"`
	Resolution   string     `json:"resolution"`
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("Invalid id")
	}
	return id, nil
}

func (h *Handler) OpenTicket(c echo.Context) error {
	var req openRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	t := &Ticket{
		DeviceID:    req.DeviceID,
		Category:    Category(req.Category),
		Priority:    Priority(req.Priority),
		Description: middleware.SanitizeString(req.Description),
	}
	if err := h.svc.Open(c.Request().Context(), t); err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusCreated, t)
}

func (h *Handler) GetTicket(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, t)
}

func (h *Handler) ListTickets(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{Status: Status(c.QueryParam("status"))}
	if raw := c.QueryParam("deviceId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperr.Invalid(apperr.Detail{Field: "deviceId", Message: "deviceId must be a UUID"})
		}
		f.DeviceID = id
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope.Paginated(items, pg, total))
}

func (h *Handler) ListPatientTickets(c echo.Context) error {
	patientID, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope.Paginated(items, pg, total))
}

func (h *Handler) UpdateTicketStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	t, err := h.svc.UpdateStatus(c.Request().Context(), id, StatusChange{
		Status:       req.Status,
		ScheduledFor: req.ScheduledFor,
		Resolution:   middleware.SanitizeString(req.Resolution),
	})
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, t)
}
