package quote

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rollcare/rollcare/internal/platform/apperr"
	"github.com/rollcare/rollcare/internal/platform/auth"
	"github.com/rollcare/rollcare/internal/platform/validation"
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
	readers := []auth.Role{auth.RoleAdmin, auth.RoleOps, auth.RolePrescriber, auth.RolePatient}

	r.POST("/quotes", h.CreateQuote, auth.RoleAdmin, auth.RoleOps)
	r.GET("/quotes/:id", h.GetQuote, readers...)
	r.GET("/patients/:id/quotes", h.ListPatientQuotes, readers...)
	r.POST("/quotes/:id/send", h.SendQuote, auth.RoleAdmin, auth.RoleOps)
	r.POST("/quotes/:id/accept", h.AcceptQuote, auth.RoleOps, auth.RolePatient)
	r.POST("/quotes/:id/decline", h.DeclineQuote, auth.RoleOps, auth.RolePatient)
}

type createRequest struct {
	PrescriptionID uuid.UUID `json:"prescriptionId"`
	DeviceModel    string    `json:"deviceModel"`
	TotalCents     int64     `json:"totalCents"`
	CoveredCents   int64     `json:"coveredCents"`
	ValidUntil     string    `json:"validUntil"`
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("Invalid id")
	}
	return id, nil
}

func (h *Handler) CreateQuote(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	validUntil, err := validation.Date("validUntil", req.ValidUntil)
	if err != nil {
		return err
	}
	if !validUntil.IsZero() {
		// A quote stays valid through the whole of its last day.
		validUntil = validUntil.Add(24*time.Hour - time.Second)
	}
	q := &Quote{
		PrescriptionID: req.PrescriptionID,
		DeviceModel:    req.DeviceModel,
		TotalCents:     req.TotalCents,
		CoveredCents:   req.CoveredCents,
		ValidUntil:     validUntil,
	}
	if err := h.svc.Create(c.Request().Context(), q); err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusCreated, q)
}

func (h *Handler) GetQuote(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	q, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, q)
}

func (h *Handler) ListPatientQuotes(c echo.Context) error {
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

func (h *Handler) SendQuote(c echo.Context) error {
	return h.transition(c, h.svc.Send)
}

func (h *Handler) AcceptQuote(c echo.Context) error {
	return h.transition(c, h.svc.Accept)
}

func (h *Handler) DeclineQuote(c echo.Context) error {
	return h.transition(c, h.svc.Decline)
}

func (h *Handler) transition(c echo.Context, fn func(ctx context.Context, id uuid.UUID) (*Quote, error)) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	q, err := fn(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, q)
}
