package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/dentaldesk/services/frontdesk-service/internal/book"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/calendar"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/clock"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/identity"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/model"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/reminder"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/store"
)

type fakePersistence struct {
	bookings      int
	statuses      int
	patients      int
	failNext      error
	failReminders error
}

func (f *fakePersistence) SaveBooking(_ context.Context, _ model.Appointment, _ []model.ReminderEvent) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.bookings++
	return nil
}

func (f *fakePersistence) SaveStatus(_ context.Context, _ model.Appointment, _ *model.VisitRecord) error {
	f.statuses++
	return nil
}

func (f *fakePersistence) SaveReminders(_ context.Context, _ []model.ReminderEvent) error {
	if f.failReminders != nil {
		err := f.failReminders
		f.failReminders = nil
		return err
	}
	return nil
}

func (f *fakePersistence) InsertPatient(_ context.Context, _ model.Patient) error {
	f.patients++
	return nil
}

func newTestHandler(t *testing.T) (*FrontDeskHandler, *fakePersistence) {
	t.Helper()
	cal, err := calendar.FromConfig(
		"mon=09:00-18:00/12:00-13:00;tue=09:00-18:00/12:00-13:00;wed=09:00-18:00/12:00-13:00;fri=09:00-18:00/12:00-13:00",
		"sun",
		"2026-09-23=Autumn Equinox",
	)
	if err != nil {
		t.Fatalf("calendar setup failed: %v", err)
	}

	mem := store.NewMemory()
	mem.UpsertPatient(model.Patient{ID: "p-1", Name: "Aiko Tanaka", Email: "aiko@example.com", Phone: "+81-90-1111-2222"})

	clk := clock.NewFixed(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC))
	planner := reminder.NewScheduler(reminder.ParseWindows("10080,4320,1440"), clk)
	engine := book.New(mem, cal, 30*time.Minute, planner, clk, time.UTC)

	persist := &fakePersistence{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewFrontDeskHandler(engine, identity.New(mem), mem, cal, 30*time.Minute, persist, logger, time.UTC)
	return h, persist
}

func TestSlots_OpenDay(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/slots?date=2026-09-11", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if !resp.Open {
		t.Fatal("expected an open day")
	}
	// 9h day minus 1h lunch at 30-minute steps.
	if len(resp.Slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(resp.Slots))
	}
}

func TestSlots_Holiday(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/slots?date=2026-09-23", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)

	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Open || resp.Reason != "Autumn Equinox" || len(resp.Slots) != 0 {
		t.Fatalf("expected closed holiday response, got %+v", resp)
	}
}

func postJSON(t *testing.T, h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestCreate_Success(t *testing.T) {
	h, persist := newTestHandler(t)

	rec := postJSON(t, h.Create, "/api/v1/appointments",
		`{"patient_id":"p-1","date":"2026-09-11","time":"14:00","treatment":"cleaning","source":"phone"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp createAppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Appointment.Status != "booked" {
		t.Fatalf("expected booked, got %s", resp.Appointment.Status)
	}
	if len(resp.Reminders) != 3 {
		t.Fatalf("expected 3 reminders, got %d", len(resp.Reminders))
	}
	if persist.bookings != 1 {
		t.Fatalf("expected 1 persisted booking, got %d", persist.bookings)
	}
}

func TestCreate_ErrorMapping(t *testing.T) {
	h, _ := newTestHandler(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"unknown patient", `{"patient_id":"p-404","date":"2026-09-11","time":"14:00"}`, http.StatusNotFound},
		{"outside hours", `{"patient_id":"p-1","date":"2026-09-11","time":"12:00"}`, http.StatusUnprocessableEntity},
		{"holiday", `{"patient_id":"p-1","date":"2026-09-23","time":"14:00"}`, http.StatusUnprocessableEntity},
		{"bad date", `{"patient_id":"p-1","date":"nope","time":"14:00"}`, http.StatusBadRequest},
		{"bad source", `{"patient_id":"p-1","date":"2026-09-11","time":"14:00","source":"pigeon"}`, http.StatusBadRequest},
		{"missing fields", `{"patient_id":"p-1"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := postJSON(t, h.Create, "/api/v1/appointments", tc.body)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}
}

func TestCreate_Conflict(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"patient_id":"p-1","date":"2026-09-11","time":"14:00"}`
	if rec := postJSON(t, h.Create, "/api/v1/appointments", body); rec.Code != http.StatusCreated {
		t.Fatalf("first booking failed: %d", rec.Code)
	}
	if rec := postJSON(t, h.Create, "/api/v1/appointments", body); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double booking, got %d", rec.Code)
	}
}

func TestCreate_PersistFailureRollsBack(t *testing.T) {
	h, persist := newTestHandler(t)
	persist.failNext = errors.New("db down")

	body := `{"patient_id":"p-1","date":"2026-09-11","time":"14:00"}`
	if rec := postJSON(t, h.Create, "/api/v1/appointments", body); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on persist failure, got %d", rec.Code)
	}
	// The failed booking must have been rolled back; the slot is free again.
	if rec := postJSON(t, h.Create, "/api/v1/appointments", body); rec.Code != http.StatusCreated {
		t.Fatalf("expected slot to be free after rollback, got %d", rec.Code)
	}
}

func TestScheduleReminders_PersistFailureDiscards(t *testing.T) {
	h, persist := newTestHandler(t)

	// An appointment without planned reminders, so a re-plan produces new events.
	h.mem.CommitBooking(model.Appointment{
		ID:        "a-1",
		PatientID: "p-1",
		Start:     time.Date(2026, 9, 11, 14, 0, 0, 0, time.UTC),
		Duration:  30 * time.Minute,
		Status:    model.StatusBooked,
		Treatment: "cleaning",
	}, nil)

	persist.failReminders = errors.New("db down")
	rec := postJSON(t, h.ScheduleReminders, "/api/v1/appointments/reminders", `{"appointment_id":"a-1"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on persist failure, got %d", rec.Code)
	}
	// The events added to memory must have been discarded with the failed write.
	if got := h.mem.RemindersFor("a-1"); len(got) != 0 {
		t.Fatalf("expected no reminders after discard, got %d", len(got))
	}

	// A retry plans the same windows again and succeeds.
	rec = postJSON(t, h.ScheduleReminders, "/api/v1/appointments/reminders", `{"appointment_id":"a-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := h.mem.RemindersFor("a-1"); len(got) != 3 {
		t.Fatalf("expected 3 reminders after retry, got %d", len(got))
	}
}

func TestTransition_Handler(t *testing.T) {
	h, persist := newTestHandler(t)

	rec := postJSON(t, h.Create, "/api/v1/appointments", `{"patient_id":"p-1","date":"2026-09-11","time":"14:00"}`)
	var created createAppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	apptID := created.Appointment.AppointmentID

	rec = postJSON(t, h.Transition, "/api/v1/appointments/transition",
		`{"appointment_id":"`+apptID+`","status":"confirmed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if persist.statuses != 1 {
		t.Fatalf("expected 1 persisted status change, got %d", persist.statuses)
	}

	// Skipping straight to completed is rejected.
	rec = postJSON(t, h.Transition, "/api/v1/appointments/transition",
		`{"appointment_id":"`+apptID+`","status":"completed"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for invalid transition, got %d", rec.Code)
	}

	rec = postJSON(t, h.Transition, "/api/v1/appointments/transition",
		`{"appointment_id":"a-404","status":"confirmed"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown appointment, got %d", rec.Code)
	}
}

func TestIdentify_Handler(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postJSON(t, h.Identify, "/api/v1/identify", `{"channel":"email","value":"aiko@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var p patientItem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if p.PatientID != "p-1" {
		t.Fatalf("expected p-1, got %s", p.PatientID)
	}

	rec = postJSON(t, h.Identify, "/api/v1/identify", `{"channel":"email","value":"+81-90-1111-2222"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-channel lookup must miss, got %d", rec.Code)
	}
}

func TestPatients_CreateAndList(t *testing.T) {
	h, persist := newTestHandler(t)

	rec := postJSON(t, h.Patients, "/api/v1/patients",
		`{"name":"Ben Ito","phone":"+81-90-3333-4444","sms_consent":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if persist.patients != 1 {
		t.Fatalf("expected 1 persisted patient, got %d", persist.patients)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	rec = httptest.NewRecorder()
	h.Patients(rec, req)
	var items []patientItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 patients, got %d", len(items))
	}
	if items[0].PatientID != "p-1" {
		t.Fatalf("expected registration order, got %s first", items[0].PatientID)
	}
}
