package device

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rollcare/rollcare/internal/platform/apperr"
	"github.com/rollcare/rollcare/internal/platform/auth"
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
	r.POST("/devices", h.CreateDevice, auth.RoleAdmin, auth.RoleOps)
	r.GET("/devices", h.ListDevices, auth.RoleAdmin, auth.RoleOps)
	r.GET("/devices/:id", h.GetDevice, auth.RoleAdmin, auth.RoleOps, auth.RolePrescriber, auth.RolePatient)
	r.GET("/patients/:id/devices", h.ListPatientDevices, auth.RoleAdmin, auth.RoleOps, auth.RolePrescriber, auth.RolePatient)
	r.POST("/devices/:id/status", h.TransitionDevice, auth.RoleAdmin, auth.RoleOps)
}

type createRequest struct {
	QuoteID      uuid.UUID `json:"quoteId"`
	SerialNumber string    `json:"serialNumber"`
	Model        string    `json:"model"`
	Manufacturer string    `json:"manufacturer"`
}

type transitionRequest struct {
	Status Status `json:"status"`
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("Invalid id")
	}
	return id, nil
}

func (h *Handler) CreateDevice(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	d := &Device{
		QuoteID:      req.QuoteID,
		SerialNumber: req.SerialNumber,
		Model:        req.Model,
		Manufacturer: req.Manufacturer,
	}
	if err := h.svc.CreateDevice(c.Request().Context(), d); err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusCreated, d)
}

func (h *Handler) GetDevice(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDevice(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, d)
}

func (h *Handler) ListDevices(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDevices(c.Request().Context(), Status(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope.Paginated(items, pg, total))
}

func (h *Handler) ListPatientDevices(c echo.Context) error {
	patientID, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDevicesByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope.Paginated(items, pg, total))
}

func (h *Handler) TransitionDevice(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	d, err := h.svc.Transition(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, d)
}
