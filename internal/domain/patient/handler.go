package patient

import (
	"net/http"

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
	r.POST("/patients", h.CreatePatient, auth.RoleAdmin, auth.RoleOps)
	r.GET("/patients", h.ListPatients, auth.RoleAdmin, auth.RoleOps)
	r.GET("/patients/me", h.GetMe, auth.RolePatient)
	r.GET("/patients/:id", h.GetPatient, auth.RoleAdmin, auth.RoleOps, auth.RolePrescriber, auth.RolePatient)
	r.PUT("/patients/:id", h.UpdatePatient, auth.RoleAdmin, auth.RoleOps)
	r.POST("/patients/:id/activate", h.ActivatePatient, auth.RoleAdmin, auth.RoleOps)
	r.POST("/patients/:id/archive", h.ArchivePatient, auth.RoleAdmin)
}

type patientRequest struct {
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	BirthDate         string `json:"birthDate"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	NIR               string `json:"nir"`
	CarteVitaleNumber string `json:"carteVitaleNumber"`
	AddressLine       string `json:"addressLine"`
	PostalCode        string `json:"postalCode"`
	City              string `json:"city"`
	InsurerCode       string `json:"insurerCode"`
	UserSubject       string `json:"userSubject"`
}

func (req *patientRequest) toPatient() (*Patient, error) {
	birth, err := validation.Date("birthDate", req.BirthDate)
	if err != nil {
		return nil, err
	}
	return &Patient{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		BirthDate:         birth,
		Email:             req.Email,
		Phone:             req.Phone,
		NIR:               req.NIR,
		CarteVitaleNumber: req.CarteVitaleNumber,
		AddressLine:       req.AddressLine,
		PostalCode:        req.PostalCode,
		City:              req.City,
		InsurerCode:       req.InsurerCode,
		UserSubject:       req.UserSubject,
	}, nil
}

func bindPatient(c echo.Context) (*Patient, error) {
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return nil, err
	}
	return req.toPatient()
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("Invalid id")
	}
	return id, nil
}

func (h *Handler) CreatePatient(c echo.Context) error {
	p, err := bindPatient(c)
	if err != nil {
		return err
	}
	if err := h.svc.Create(c.Request().Context(), p); err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
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

func (h *Handler) GetMe(c echo.Context) error {
	p, err := h.svc.Me(c.Request().Context())
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{Query: c.QueryParam("q"), Status: Status(c.QueryParam("status"))}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope.Paginated(items, pg, total))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	in, err := bindPatient(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, p)
}

func (h *Handler) ActivatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Activate(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, p)
}

func (h *Handler) ArchivePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Archive(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, p)
}
