package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/middleware"
)

func newTestHandler() (*Handler, *echo.Echo, *fixture) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	e.Validator = middleware.NewValidator()
	return h, e, f
}

func newRequest(method, target, body string, userID int64) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if userID > 0 {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	return req
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected HTTP %d, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T: %v", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d (%v)", code, httpErr.Code, httpErr.Message)
	}
}

func TestHandler_BookAppointment(t *testing.T) {
	h, e, _ := newTestHandler()
	body := `{"doctor_id":10,"service_id":20,"date":"2024-06-10","time":"9:00"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/api/v1/appointments", body, 1), rec)

	if err := h.BookAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var conf Confirmation
	if err := json.Unmarshal(rec.Body.Bytes(), &conf); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if conf.AppointmentID == 0 || conf.Time != "09:00" || conf.DoctorName != "Luis Mora" {
		t.Errorf("unexpected confirmation: %+v", conf)
	}
	if strings.Contains(rec.Body.String(), "ana@example.com") {
		t.Error("the confirmation must not echo the patient email")
	}
}

func TestHandler_BookAppointment_Conflict(t *testing.T) {
	h, e, f := newTestHandler()
	if _, err := f.book(mondayNine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := `{"doctor_id":10,"service_id":20,"date":"2024-06-10","time":"09:00"}`
	c := e.NewContext(newRequest(http.MethodPost, "/api/v1/appointments", body, 1), httptest.NewRecorder())

	expectHTTPError(t, h.BookAppointment(c), http.StatusConflict)
}

func TestHandler_BookAppointment_BadRequest(t *testing.T) {
	h, e, _ := newTestHandler()
	tests := []struct {
		name string
		body string
	}{
		{"missing doctor", `{"service_id":20,"date":"2024-06-10","time":"09:00"}`},
		{"bad date", `{"doctor_id":10,"service_id":20,"date":"june tenth","time":"09:00"}`},
		{"non numeric id", `{"doctor_id":"ten","service_id":20,"date":"2024-06-10","time":"09:00"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(newRequest(http.MethodPost, "/api/v1/appointments", tt.body, 1), httptest.NewRecorder())
			expectHTTPError(t, h.BookAppointment(c), http.StatusBadRequest)
		})
	}
}

func TestHandler_BookAppointment_Unauthenticated(t *testing.T) {
	h, e, _ := newTestHandler()
	body := `{"doctor_id":10,"service_id":20,"date":"2024-06-10","time":"09:00"}`
	c := e.NewContext(newRequest(http.MethodPost, "/api/v1/appointments", body, 0), httptest.NewRecorder())

	expectHTTPError(t, h.BookAppointment(c), http.StatusUnauthorized)
}

func TestHandler_BookAppointment_UnknownDoctor(t *testing.T) {
	h, e, _ := newTestHandler()
	body := `{"doctor_id":99,"service_id":20,"date":"2024-06-10","time":"09:00"}`
	c := e.NewContext(newRequest(http.MethodPost, "/api/v1/appointments", body, 1), httptest.NewRecorder())

	expectHTTPError(t, h.BookAppointment(c), http.StatusNotFound)
}

func TestHandler_GetAvailability(t *testing.T) {
	h, e, f := newTestHandler()
	if _, err := f.book(mondayNine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/api/v1/doctors/10/availability?include_taken=true", "", 0), rec)
	c.SetParamNames("id")
	c.SetParamValues("10")

	if err := h.GetAvailability(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var avail Availability
	if err := json.Unmarshal(rec.Body.Bytes(), &avail); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s, ok := findSlot(avail.Slots, "2024-06-10", "09:00")
	if !ok || s.Available {
		t.Errorf("expected the booked slot listed as unavailable, got %+v (found=%v)", s, ok)
	}
}

func TestHandler_GetAvailability_InvalidID(t *testing.T) {
	h, e, _ := newTestHandler()
	c := e.NewContext(newRequest(http.MethodGet, "/", "", 0), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("abc")

	expectHTTPError(t, h.GetAvailability(c), http.StatusBadRequest)
}

func TestHandler_GetAvailability_NotFound(t *testing.T) {
	h, e, _ := newTestHandler()
	c := e.NewContext(newRequest(http.MethodGet, "/", "", 0), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("404")

	expectHTTPError(t, h.GetAvailability(c), http.StatusNotFound)
}

func TestHandler_RescheduleAppointment(t *testing.T) {
	h, e, f := newTestHandler()
	conf, err := f.book(mondayNine)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := httptest.NewRecorder()
	body := `{"date":"2024-06-11","time":"14"}`
	c := e.NewContext(newRequest(http.MethodPut, "/", body, 1), rec)
	c.SetParamNames("id")
	c.SetParamValues("1")

	if err := h.RescheduleAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	got := f.store.appointment(conf.AppointmentID).ScheduledAt
	if got.Format("2006-01-02 15:04") != "2024-06-11 14:00" {
		t.Errorf("expected 2024-06-11 14:00, got %s", got)
	}
}

func TestHandler_RescheduleAppointment_Conflict(t *testing.T) {
	h, e, f := newTestHandler()
	if _, err := f.book(mondayNine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.book(mondayNine.Add(24 * time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := `{"date":"2024-06-10","time":"09:00"}`
	c := e.NewContext(newRequest(http.MethodPut, "/", body, 1), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("2")

	expectHTTPError(t, h.RescheduleAppointment(c), http.StatusConflict)
}

func TestHandler_CancelAppointment(t *testing.T) {
	h, e, f := newTestHandler()
	if _, err := f.book(mondayNine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/", "", 1), rec)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if err := h.CancelAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c = e.NewContext(newRequest(http.MethodPost, "/", "", 1), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("1")
	expectHTTPError(t, h.CancelAppointment(c), http.StatusUnprocessableEntity)
}

func TestHandler_CancelAppointment_NotFound(t *testing.T) {
	h, e, _ := newTestHandler()
	c := e.NewContext(newRequest(http.MethodPost, "/", "", 1), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("31")

	expectHTTPError(t, h.CancelAppointment(c), http.StatusNotFound)
}

func TestHandler_ListServicesAndDoctors(t *testing.T) {
	h, e, _ := newTestHandler()

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/api/v1/services", "", 0), rec)
	if err := h.ListServices(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var services []MedicalService
	if err := json.Unmarshal(rec.Body.Bytes(), &services); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(services) != 1 || services[0].Price != "50000.00" {
		t.Errorf("unexpected services: %+v", services)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(newRequest(http.MethodGet, "/", "", 0), rec)
	c.SetParamNames("id")
	c.SetParamValues("20")
	if err := h.ListDoctors(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"last_name":"Mora"`) {
		t.Errorf("expected the doctor in the listing, got %s", rec.Body.String())
	}
}

func TestHandler_ListMyAppointments(t *testing.T) {
	h, e, f := newTestHandler()
	if _, err := f.book(mondayNine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/api/v1/appointments?limit=10", "", 1), rec)
	if err := h.ListMyAppointments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp struct {
		Data  []AppointmentSummary `json:"data"`
		Total int                  `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 || resp.Data[0].ServiceName != "General medicine" {
		t.Errorf("unexpected listing: %+v", resp)
	}
}
