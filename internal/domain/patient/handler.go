package patient

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/scheduler/internal/domain/pesel"
	"github.com/clinic/scheduler/internal/platform/auth"
	"github.com/clinic/scheduler/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := auth.RequireRole(auth.RoleSuperadmin)
	api.POST("/patients", h.Register, admin)
	api.GET("/patients", h.List, admin)
	api.GET("/patients/:id", h.Get)
	api.POST("/pesel/validate", h.ValidatePESEL)
}

type registerRequest struct {
	PESEL     string  `json:"pesel" validate:"required,pesel"`
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	BirthDate string  `json:"birth_date" validate:"required,datetime=2006-01-02"`
	Gender    string  `json:"gender" validate:"omitempty,oneof=M F"`
	Email     *string `json:"email" validate:"omitempty,email,max=255"`
	Phone     *string `json:"phone" validate:"omitempty,max=32"`
}

type validatePESELRequest struct {
	PESEL     string `json:"pesel"`
	BirthDate string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
}

func httpError(err error) error {
	var verr *pesel.ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   string(verr.Kind),
			"message": verr.Message,
		})
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicatePESEL):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "could not complete the request, please try again").SetInternal(err)
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	birth, err := time.Parse("2006-01-02", req.BirthDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
	}
	p := &Patient{
		PESEL:     req.PESEL,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		BirthDate: birth,
		Gender:    pesel.Gender(req.Gender),
		Email:     req.Email,
		Phone:     req.Phone,
	}
	if err := h.svc.Register(c.Request().Context(), p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

// Get returns a patient to superadmins and to the patient themselves.
func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if !auth.IsSuperadmin(ctx) {
		if own, ok := auth.PatientIDFromContext(ctx); !ok || own != id {
			return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
		}
	}
	p, err := h.svc.Get(ctx, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// ValidatePESEL checks a number without registering anything. With a birth
// date it runs the full registration check, otherwise the checksum only.
func (h *Handler) ValidatePESEL(c echo.Context) error {
	var req validatePESELRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	var verr error
	if req.BirthDate != "" {
		birth, _ := time.Parse("2006-01-02", req.BirthDate)
		verr = pesel.Validate(req.PESEL, birth)
	} else {
		verr = pesel.ValidateChecksum(req.PESEL)
	}
	if verr != nil {
		var ve *pesel.ValidationError
		if !errors.As(verr, &ve) {
			return httpError(verr)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"valid":   false,
			"error":   string(ve.Kind),
			"message": ve.Message,
		})
	}

	resp := map[string]interface{}{"valid": true}
	if d, ok := pesel.BirthDate(req.PESEL); ok {
		resp["birth_date"] = d.Format("2006-01-02")
	}
	if g, ok := pesel.GenderOf(req.PESEL); ok {
		resp["gender"] = g
	}
	return c.JSON(http.StatusOK, resp)
}
