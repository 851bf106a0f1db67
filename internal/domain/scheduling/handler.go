package scheduling

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/services", h.ListServices)
	api.GET("/services/:id/doctors", h.ListDoctors)
	api.GET("/doctors/:id/availability", h.GetAvailability)

	api.POST("/appointments", h.BookAppointment)
	api.GET("/appointments", h.ListMyAppointments)
	api.PUT("/appointments/:id/reschedule", h.RescheduleAppointment)
	api.POST("/appointments/:id/cancel", h.CancelAppointment)
}

// httpError maps service errors onto HTTP statuses.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSlotTaken):
		return echo.NewHTTPError(http.StatusConflict, ErrSlotTaken.Error())
	case errors.Is(err, ErrIllegalState):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out").SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func callerID(c echo.Context) (int64, error) {
	uid, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return uid, nil
}

// bindAndValidate runs the registered echo validator when one is set.
func bindAndValidate(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(v)
}

// -- Catalog Handlers --

func (h *Handler) ListServices(c echo.Context) error {
	items, err := h.svc.ListServices(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*MedicalService{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListDoctors(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Doctor{}
	}
	return c.JSON(http.StatusOK, items)
}

// -- Availability Handlers --

func (h *Handler) GetAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	includeTaken, _ := strconv.ParseBool(c.QueryParam("include_taken"))
	avail, err := h.svc.Availability(c.Request().Context(), id, includeTaken)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, avail)
}

// -- Appointment Handlers --

func (h *Handler) BookAppointment(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	var req BookingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	req.UserID = uid

	conf, err := h.svc.Book(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, conf)
}

func (h *Handler) ListMyAppointments(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMyAppointments(c.Request().Context(), uid, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL.Path))
}

func (h *Handler) RescheduleAppointment(c echo.Context) error {
	if _, err := callerID(c); err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req RescheduleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	at, err := h.svc.Instant(req.Date, req.Time)
	if err != nil {
		return httpError(err)
	}

	appt, err := h.svc.Reschedule(c.Request().Context(), id, at)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	if _, err := callerID(c); err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}
