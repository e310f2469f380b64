package scheduling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	patientOnly := auth.RequireRole(auth.RolePatient)
	doctorOnly := auth.RequireRole(auth.RoleDoctor)

	api.POST("/slots/check", h.CheckSlot)
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.GET("/doctors/:id/slots", h.AvailableSlots)
	api.POST("/doctors", h.CreateDoctor, auth.RequireRole(auth.RoleSuperadmin))

	api.GET("/appointments", h.ListAppointments, auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	api.POST("/appointments", h.Book, patientOnly)
	api.GET("/appointments/:id", h.GetAppointment)
	api.PUT("/appointments/:id", h.Reschedule, patientOnly)
	api.POST("/appointments/:id/cancel", h.Cancel, patientOnly)
	api.GET("/appointments/:id/series", h.Series)
	api.PATCH("/appointments/:id/outcome", h.RecordOutcome, doctorOnly)

	api.GET("/booking/status", h.BookingStatus, patientOnly)
}

// -- request DTOs --

type checkSlotRequest struct {
	DoctorID  string    `json:"doctor_id" validate:"required,uuid"`
	StartTime time.Time `json:"start_time" validate:"required"`
	ExcludeID string    `json:"exclude_id" validate:"omitempty,uuid"`
}

type bookRequest struct {
	DoctorID          string    `json:"doctor_id" validate:"required,uuid"`
	PatientID         string    `json:"patient_id" validate:"omitempty,uuid"`
	StartTime         time.Time `json:"start_time" validate:"required"`
	Reason            string    `json:"reason" validate:"required,max=200"`
	DurationMinutes   int       `json:"duration_minutes" validate:"omitempty,min=1"`
	RecurrencePattern string    `json:"recurrence_pattern" validate:"omitempty,oneof=none weekly biweekly monthly"`
	RecurrenceEndDate string    `json:"recurrence_end_date" validate:"omitempty,datetime=2006-01-02"`
}

type rescheduleRequest struct {
	StartTime *time.Time `json:"start_time"`
	Reason    *string    `json:"reason" validate:"omitempty,max=200"`
	DoctorID  *string    `json:"doctor_id" validate:"omitempty,uuid"`
}

type cancelRequest struct {
	CascadeSeries bool `json:"cascade_series"`
}

type outcomeRequest struct {
	Status string  `json:"status" validate:"required,oneof=completed no_show"`
	Notes  *string `json:"notes"`
}

type createDoctorRequest struct {
	FirstName         string `json:"first_name" validate:"required,max=100"`
	LastName          string `json:"last_name" validate:"required,max=100"`
	Specialization    string `json:"specialization" validate:"max=100"`
	AcceptingPatients *bool  `json:"accepting_patients"`
}

// -- responses --

type seriesSummary struct {
	Created   []*Appointment      `json:"created"`
	Skipped   []SkippedOccurrence `json:"skipped"`
	Requested int                 `json:"requested"`
	Message   string              `json:"message"`
}

type bookResponse struct {
	Appointment *Appointment   `json:"appointment"`
	Series      *seriesSummary `json:"series,omitempty"`
}

func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(dst)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// httpError translates service errors. Business rejections carry their
// kind in the body; infrastructure errors are never shown verbatim.
func httpError(c echo.Context, err error) error {
	if r, ok := AsRejection(err); ok {
		body := map[string]interface{}{"error": string(r.Kind), "message": r.Message}
		switch r.Kind {
		case KindInvalidRequest:
			return echo.NewHTTPError(http.StatusBadRequest, body)
		case KindSlotConflict:
			return echo.NewHTTPError(http.StatusConflict, body)
		case KindCooldownActive:
			secs := int(math.Ceil(r.RetryAfter.Seconds()))
			c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
			body["retry_after_seconds"] = secs
			return echo.NewHTTPError(http.StatusTooManyRequests, body)
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, body)
	}
	switch {
	case errors.Is(err, ErrAppointmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	case errors.Is(err, ErrDoctorNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "could not complete the request, please try again").SetInternal(err)
}

// canView reports whether the caller is a party to a.
func canView(ctx context.Context, a *Appointment) bool {
	if auth.IsSuperadmin(ctx) {
		return true
	}
	if pid, ok := auth.PatientIDFromContext(ctx); ok && pid == a.PatientID && auth.HasRole(ctx, auth.RolePatient) {
		return true
	}
	if did, ok := auth.DoctorIDFromContext(ctx); ok && did == a.DoctorID && auth.HasRole(ctx, auth.RoleDoctor) {
		return true
	}
	return false
}

// canManage reports whether the caller may change a as its patient.
func canManage(ctx context.Context, a *Appointment) bool {
	if auth.IsSuperadmin(ctx) {
		return true
	}
	pid, ok := auth.PatientIDFromContext(ctx)
	return ok && pid == a.PatientID
}

func (h *Handler) loadOwned(c echo.Context, check func(context.Context, *Appointment) bool) (*Appointment, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	appt, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return nil, httpError(c, err)
	}
	if !check(c.Request().Context(), appt) {
		// Foreign appointments are reported as missing.
		return nil, echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	return appt, nil
}

// -- Slot Handlers --

func (h *Handler) CheckSlot(c echo.Context) error {
	var req checkSlotRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	doctorID := uuid.MustParse(req.DoctorID)
	var exclude *uuid.UUID
	if req.ExcludeID != "" {
		id := uuid.MustParse(req.ExcludeID)
		exclude = &id
	}
	err := h.svc.CheckSlot(c.Request().Context(), doctorID, req.StartTime, exclude)
	if err == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"available": true})
	}
	if r, ok := AsRejection(err); ok {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"available": false,
			"error":     string(r.Kind),
			"message":   r.Message,
		})
	}
	return httpError(c, err)
}

func (h *Handler) AvailableSlots(c echo.Context) error {
	doctorID, err := parseID(c)
	if err != nil {
		return err
	}
	raw := c.QueryParam("date")
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	date, err := time.ParseInLocation("2006-01-02", raw, h.svc.Location())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), doctorID, date)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctor_id": doctorID,
		"date":      raw,
		"slots":     slots,
	})
}

// -- Doctor Handlers --

func (h *Handler) CreateDoctor(c echo.Context) error {
	var req createDoctorRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	d := &Doctor{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Specialization:    req.Specialization,
		AcceptingPatients: req.AcceptingPatients == nil || *req.AcceptingPatients,
	}
	if err := h.svc.CreateDoctor(c.Request().Context(), d); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	accepting := c.QueryParam("accepting") == "true"
	items, total, err := h.svc.ListDoctors(c.Request().Context(), accepting, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Appointment Handlers --

func (h *Handler) Book(c echo.Context) error {
	var req bookRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	patientID, ok := auth.PatientIDFromContext(ctx)
	if auth.IsSuperadmin(ctx) && req.PatientID != "" {
		patientID, ok = uuid.MustParse(req.PatientID), true
	}
	if !ok {
		return echo.NewHTTPError(http.StatusForbidden, "caller is not linked to a patient")
	}

	in := BookingRequest{
		PatientID:       patientID,
		DoctorID:        uuid.MustParse(req.DoctorID),
		StartTime:       req.StartTime,
		Reason:          req.Reason,
		DurationMinutes: req.DurationMinutes,
		Pattern:         Pattern(req.RecurrencePattern),
	}
	if req.RecurrenceEndDate != "" {
		end, err := time.Parse("2006-01-02", req.RecurrenceEndDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "recurrence_end_date must be YYYY-MM-DD")
		}
		in.EndDate = &end
	}

	result, err := h.svc.Book(ctx, in)
	if err != nil {
		return httpError(c, err)
	}
	resp := bookResponse{Appointment: result.Appointment}
	if s := result.Series; s != nil {
		resp.Series = &seriesSummary{
			Created:   s.Created,
			Skipped:   s.Skipped,
			Requested: s.Requested(),
			Message:   fmt.Sprintf("created %d of %d recurring appointments", len(s.Created), s.Requested()),
		}
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	appt, err := h.loadOwned(c, canView)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	upcoming := c.QueryParam("upcoming") == "true"

	patientID, isPatient := auth.PatientIDFromContext(ctx)
	doctorID, isDoctor := auth.DoctorIDFromContext(ctx)
	if auth.IsSuperadmin(ctx) {
		isPatient, isDoctor = false, false
		if v := c.QueryParam("patient_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
			}
			patientID, isPatient = id, true
		} else if v := c.QueryParam("doctor_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
			}
			doctorID, isDoctor = id, true
		} else {
			return echo.NewHTTPError(http.StatusBadRequest, "patient_id or doctor_id is required")
		}
	}

	var (
		items []*Appointment
		total int
		err   error
	)
	switch {
	case isPatient:
		items, total, err = h.svc.ListForPatient(ctx, patientID, upcoming, pg.Limit, pg.Offset)
	case isDoctor:
		items, total, err = h.svc.ListForDoctor(ctx, doctorID, upcoming, pg.Limit, pg.Offset)
	default:
		return echo.NewHTTPError(http.StatusForbidden, "caller is not linked to a patient or doctor")
	}
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Reschedule(c echo.Context) error {
	appt, err := h.loadOwned(c, canManage)
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	in := RescheduleRequest{Reason: req.Reason}
	if req.StartTime != nil {
		in.StartTime = *req.StartTime
	}
	if req.DoctorID != nil {
		id := uuid.MustParse(*req.DoctorID)
		in.DoctorID = &id
	}
	updated, err := h.svc.Reschedule(c.Request().Context(), appt.ID, in)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Cancel(c echo.Context) error {
	appt, err := h.loadOwned(c, canManage)
	if err != nil {
		return err
	}
	var req cancelRequest
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}
	cancelled, err := h.svc.Cancel(c.Request().Context(), appt.ID, req.CascadeSeries)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"cancelled": cancelled,
		"count":     len(cancelled),
	})
}

func (h *Handler) Series(c echo.Context) error {
	appt, err := h.loadOwned(c, canView)
	if err != nil {
		return err
	}
	items, err := h.svc.Series(c.Request().Context(), appt.ID)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"series_id":    appt.SeriesID,
		"appointments": items,
	})
}

func (h *Handler) RecordOutcome(c echo.Context) error {
	appt, err := h.loadOwned(c, canView)
	if err != nil {
		return err
	}
	var req outcomeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	updated, err := h.svc.RecordOutcome(c.Request().Context(), appt.ID, Status(req.Status), req.Notes)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) BookingStatus(c echo.Context) error {
	ctx := c.Request().Context()
	patientID, ok := auth.PatientIDFromContext(ctx)
	if auth.IsSuperadmin(ctx) {
		if v := c.QueryParam("patient_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
			}
			patientID, ok = id, true
		}
	}
	if !ok {
		return echo.NewHTTPError(http.StatusForbidden, "caller is not linked to a patient")
	}
	st, err := h.svc.BookingStatus(ctx, patientID)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"can_book":            st.CanBook,
		"retry_after_seconds": int(math.Ceil(st.RetryAfter.Seconds())),
	})
}
