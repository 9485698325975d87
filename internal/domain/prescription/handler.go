package prescription

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rollcare/rollcare/internal/platform/apperr"
	"github.com/rollcare/rollcare/internal/platform/auth"
	"github.com/rollcare/rollcare/internal/platform/middleware"
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

var readers = []auth.Role{auth.RoleAdmin, auth.RoleOps, auth.RolePrescriber, auth.RolePatient}

func (h *Handler) RegisterRoutes(r *auth.Routes) {
	r.POST("/prescriptions", h.CreatePrescription, auth.RoleAdmin, auth.RoleOps, auth.RolePrescriber)
	r.GET("/prescriptions/:id", h.GetPrescription, readers...)
	r.GET("/patients/:id/prescriptions", h.ListPatientPrescriptions, readers...)
	r.POST("/prescriptions/:id/verify", h.VerifyPrescription, auth.RoleAdmin, auth.RoleOps)
	r.POST("/prescriptions/:id/reject", h.RejectPrescription, auth.RoleAdmin, auth.RoleOps)
	r.POST("/prescriptions/:id/document", h.DocumentUploadURL, readers...)
	r.GET("/prescriptions/:id/document", h.DocumentDownloadURL, readers...)
}

type createRequest struct {
	PatientID      uuid.UUID `json:"patientId"`
	PrescriberName string    `json:"prescriberName"`
	PrescriberID   string    `json:"prescriberId"`
	IssuedAt       string    `json:"issuedAt"`
	DeviceCategory string    `json:"deviceCategory"`
	Notes          string    `json:"notes"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type documentRequest struct {
	ContentType string `json:"contentType"`
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("Invalid id")
	}
	return id, nil
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	issued, err := validation.Date("issuedAt", req.IssuedAt)
	if err != nil {
		return err
	}
	p := &Prescription{
		PatientID:      req.PatientID,
		PrescriberName: req.PrescriberName,
		PrescriberID:   req.PrescriberID,
		IssuedAt:       issued,
		DeviceCategory: Category(req.DeviceCategory),
		Notes:          middleware.SanitizeString(req.Notes),
	}
	if err := h.svc.Create(c.Request().Context(), p); err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusCreated, p)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, p)
}

func (h *Handler) ListPatientPrescriptions(c echo.Context) error {
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

func (h *Handler) VerifyPrescription(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Verify(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, p)
}

func (h *Handler) RejectPrescription(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	p, err := h.svc.Reject(c.Request().Context(), id, middleware.SanitizeString(req.Reason))
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, p)
}

func (h *Handler) DocumentUploadURL(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req documentRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	u, err := h.svc.DocumentUploadURL(c.Request().Context(), id, req.ContentType)
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, u)
}

func (h *Handler) DocumentDownloadURL(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.DocumentDownloadURL(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, u)
}
