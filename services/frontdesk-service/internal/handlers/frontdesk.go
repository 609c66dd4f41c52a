package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/dentaldesk/services/frontdesk-service/internal/availability"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/book"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/calendar"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/identity"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/model"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/store"
)

// Persistence is the durable write-through behind the in-memory engine. The
// engine decides; persistence records the decision. A failed SaveBooking is
// compensated with a rollback so memory and database stay in step.
type Persistence interface {
	SaveBooking(ctx context.Context, appt model.Appointment, events []model.ReminderEvent) error
	SaveStatus(ctx context.Context, appt model.Appointment, visit *model.VisitRecord) error
	SaveReminders(ctx context.Context, events []model.ReminderEvent) error
	InsertPatient(ctx context.Context, p model.Patient) error
}

type FrontDeskHandler struct {
	engine   *book.Book
	resolver *identity.Resolver
	mem      *store.Memory
	cal      *calendar.Calendar
	interval time.Duration
	persist  Persistence
	logger   *slog.Logger
	loc      *time.Location
}

func NewFrontDeskHandler(engine *book.Book, resolver *identity.Resolver, mem *store.Memory, cal *calendar.Calendar, interval time.Duration, persist Persistence, logger *slog.Logger, loc *time.Location) *FrontDeskHandler {
	if loc == nil {
		loc = time.Local
	}
	return &FrontDeskHandler{
		engine:   engine,
		resolver: resolver,
		mem:      mem,
		cal:      cal,
		interval: interval,
		persist:  persist,
		logger:   logger,
		loc:      loc,
	}
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type slotsResponse struct {
	Date   string     `json:"date"`
	Open   bool       `json:"open"`
	Reason string     `json:"reason,omitempty"`
	Slots  []slotItem `json:"slots"`
}

func (h *FrontDeskHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}
	date, err := calendar.ParseDate(dateStr, h.loc)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	interval := h.interval
	if raw := strings.TrimSpace(r.URL.Query().Get("interval_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 240 {
			http.Error(w, "invalid interval_minutes", http.StatusBadRequest)
			return
		}
		interval = time.Duration(n) * time.Minute
	}

	resp := slotsResponse{Date: dateStr, Open: h.cal.IsOpen(date), Slots: []slotItem{}}
	if !resp.Open {
		if reason, ok := h.cal.HolidayReason(date); ok {
			resp.Reason = reason
		}
	} else {
		for _, start := range availability.Slots(h.cal, date, interval) {
			resp.Slots = append(resp.Slots, slotItem{
				StartTime: start.Format(time.RFC3339),
				EndTime:   start.Add(interval).Format(time.RFC3339),
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type createAppointmentRequest struct {
	PatientID       string   `json:"patient_id"`
	Date            string   `json:"date"`
	Time            string   `json:"time"`
	DurationMinutes int      `json:"duration_minutes"`
	Treatment       string   `json:"treatment"`
	Source          string   `json:"source"`
	StaffIDs        []string `json:"staff_ids"`
	Notes           string   `json:"notes"`
}

type appointmentItem struct {
	AppointmentID string   `json:"appointment_id"`
	PatientID     string   `json:"patient_id"`
	StartTime     string   `json:"start_time"`
	EndTime       string   `json:"end_time"`
	Treatment     string   `json:"treatment,omitempty"`
	Status        string   `json:"status"`
	Source        string   `json:"source,omitempty"`
	StaffIDs      []string `json:"staff_ids,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	CancelledAt   string   `json:"cancelled_at,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

type reminderItem struct {
	ReminderID    string `json:"reminder_id"`
	AppointmentID string `json:"appointment_id"`
	Kind          string `json:"kind"`
	FireAt        string `json:"fire_at"`
	Status        string `json:"status"`
	Channel       string `json:"channel"`
	Recipient     string `json:"recipient,omitempty"`
}

type createAppointmentResponse struct {
	Appointment appointmentItem `json:"appointment"`
	Reminders   []reminderItem  `json:"reminders"`
}

func (h *FrontDeskHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	if req.PatientID == "" || req.Date == "" || req.Time == "" {
		http.Error(w, "patient_id, date, and time are required", http.StatusBadRequest)
		return
	}

	source := model.ChannelPhone
	if req.Source != "" {
		ch, err := model.ParseChannel(req.Source)
		if err != nil {
			http.Error(w, "invalid source channel", http.StatusBadRequest)
			return
		}
		source = ch
	}

	appt, events, err := h.engine.Book(book.Request{
		PatientID: req.PatientID,
		Date:      req.Date,
		Time:      req.Time,
		Duration:  time.Duration(req.DurationMinutes) * time.Minute,
		Treatment: strings.TrimSpace(req.Treatment),
		Source:    source,
		StaffIDs:  req.StaffIDs,
		Notes:     req.Notes,
	})
	if err != nil {
		writeBookingError(w, err)
		return
	}

	if err := h.persist.SaveBooking(r.Context(), appt, events); err != nil {
		h.engine.Rollback(appt.ID)
		h.logger.Error("booking persist failed, rolled back", "appointment_id", appt.ID, "err", err)
		http.Error(w, "failed to persist booking", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, createAppointmentResponse{
		Appointment: toAppointmentItem(appt),
		Reminders:   toReminderItems(events),
	})
}

func writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, calendar.ErrInvalidDate):
		http.Error(w, "invalid date or time", http.StatusBadRequest)
	case errors.Is(err, book.ErrPatientNotFound):
		http.Error(w, "patient not found", http.StatusNotFound)
	case errors.Is(err, book.ErrOutsideBusinessHours):
		http.Error(w, "requested time is outside business hours", http.StatusUnprocessableEntity)
	case errors.Is(err, book.ErrSlotConflict):
		http.Error(w, "time slot already booked", http.StatusConflict)
	default:
		http.Error(w, "failed to book appointment", http.StatusInternalServerError)
	}
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

func (h *FrontDeskHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	next, ok := model.ParseStatus(strings.TrimSpace(req.Status))
	if req.AppointmentID == "" || !ok {
		http.Error(w, "appointment_id and a valid status are required", http.StatusBadRequest)
		return
	}

	appt, visit, err := h.engine.Transition(req.AppointmentID, next)
	if err != nil {
		switch {
		case errors.Is(err, book.ErrAppointmentNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, book.ErrInvalidTransition):
			http.Error(w, "invalid status transition", http.StatusConflict)
		default:
			http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		}
		return
	}

	if err := h.persist.SaveStatus(r.Context(), appt, visit); err != nil {
		h.logger.Error("status persist failed", "appointment_id", appt.ID, "status", appt.Status, "err", err)
		http.Error(w, "failed to persist status change", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

func (h *FrontDeskHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}
	date, err := calendar.ParseDate(dateStr, h.loc)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	appts := h.engine.ForDate(date)
	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toAppointmentItem(appt))
	}
	writeJSON(w, http.StatusOK, items)
}

type scheduleRemindersRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *FrontDeskHandler) ScheduleReminders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		appointmentID := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
		if appointmentID == "" {
			http.Error(w, "appointment_id is required", http.StatusBadRequest)
			return
		}
		if _, ok := h.mem.AppointmentByID(appointmentID); !ok {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, toReminderItems(h.mem.RemindersFor(appointmentID)))
	case http.MethodPost:
		var req scheduleRemindersRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.AppointmentID = strings.TrimSpace(req.AppointmentID)
		if req.AppointmentID == "" {
			http.Error(w, "appointment_id is required", http.StatusBadRequest)
			return
		}

		events, err := h.engine.ScheduleReminders(req.AppointmentID)
		if err != nil {
			if errors.Is(err, book.ErrAppointmentNotFound) || errors.Is(err, book.ErrPatientNotFound) {
				http.Error(w, "appointment not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to schedule reminders", http.StatusInternalServerError)
			return
		}
		if err := h.persist.SaveReminders(r.Context(), events); err != nil {
			h.engine.DiscardReminders(events)
			h.logger.Error("reminder persist failed, discarded", "appointment_id", req.AppointmentID, "err", err)
			http.Error(w, "failed to persist reminders", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toReminderItems(events))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type identifyRequest struct {
	Channel string `json:"channel"`
	Value   string `json:"value"`
}

type patientItem struct {
	PatientID        string `json:"patient_id"`
	Name             string `json:"name"`
	Phone            string `json:"phone,omitempty"`
	Email            string `json:"email,omitempty"`
	ChatHandle       string `json:"chat_handle,omitempty"`
	SocialHandle     string `json:"social_handle,omitempty"`
	SMSConsent       bool   `json:"sms_consent"`
	PreferredContact string `json:"preferred_contact,omitempty"`
	VisitCount       int    `json:"visit_count"`
	LastVisit        string `json:"last_visit,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

func (h *FrontDeskHandler) Identify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req identifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	channel, err := model.ParseChannel(req.Channel)
	if err != nil {
		http.Error(w, "invalid channel", http.StatusBadRequest)
		return
	}

	patient, found := h.resolver.Identify(model.Contact{Channel: channel, Value: strings.TrimSpace(req.Value)})
	if !found {
		http.Error(w, "no matching patient", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toPatientItem(patient))
}

type createPatientRequest struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	ChatHandle       string `json:"chat_handle"`
	SocialHandle     string `json:"social_handle"`
	SMSConsent       bool   `json:"sms_consent"`
	PreferredContact string `json:"preferred_contact"`
	Notes            string `json:"notes"`
}

func (h *FrontDeskHandler) Patients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		patients := h.mem.Patients()
		items := make([]patientItem, 0, len(patients))
		for _, p := range patients {
			items = append(items, toPatientItem(p))
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var req createPatientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		var preferred model.Channel
		if raw := strings.TrimSpace(req.PreferredContact); raw != "" {
			ch, err := model.ParseChannel(raw)
			if err != nil {
				http.Error(w, "invalid preferred_contact", http.StatusBadRequest)
				return
			}
			preferred = ch
		}

		p := model.Patient{
			ID:               uuid.NewString(),
			Name:             req.Name,
			Phone:            strings.TrimSpace(req.Phone),
			Email:            strings.TrimSpace(req.Email),
			ChatHandle:       strings.TrimSpace(req.ChatHandle),
			SocialHandle:     strings.TrimSpace(req.SocialHandle),
			SMSConsent:       req.SMSConsent,
			PreferredContact: preferred,
			Notes:            req.Notes,
			CreatedAt:        time.Now().UTC(),
		}
		if err := h.persist.InsertPatient(r.Context(), p); err != nil {
			h.logger.Error("patient persist failed", "err", err)
			http.Error(w, "failed to persist patient", http.StatusInternalServerError)
			return
		}
		h.mem.UpsertPatient(p)
		writeJSON(w, http.StatusCreated, toPatientItem(p))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *FrontDeskHandler) VisitHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	patientID := strings.TrimSpace(r.URL.Query().Get("patient_id"))
	if patientID == "" {
		http.Error(w, "patient_id is required", http.StatusBadRequest)
		return
	}
	if _, ok := h.mem.PatientByID(patientID); !ok {
		http.Error(w, "patient not found", http.StatusNotFound)
		return
	}

	type visitItem struct {
		AppointmentID string `json:"appointment_id"`
		VisitedAt     string `json:"visited_at"`
		Treatment     string `json:"treatment,omitempty"`
	}
	history := h.mem.VisitHistory(patientID)
	items := make([]visitItem, 0, len(history))
	for _, v := range history {
		items = append(items, visitItem{
			AppointmentID: v.AppointmentID,
			VisitedAt:     v.VisitedAt.UTC().Format(time.RFC3339),
			Treatment:     v.Treatment,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func toAppointmentItem(appt model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		StartTime:     appt.Start.Format(time.RFC3339),
		EndTime:       appt.End().Format(time.RFC3339),
		Treatment:     appt.Treatment,
		Status:        string(appt.Status),
		Source:        string(appt.Source),
		StaffIDs:      appt.StaffIDs,
		Notes:         appt.Notes,
		CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.CancelledAt != nil {
		item.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

func toReminderItems(events []model.ReminderEvent) []reminderItem {
	items := make([]reminderItem, 0, len(events))
	for _, ev := range events {
		items = append(items, reminderItem{
			ReminderID:    ev.ID,
			AppointmentID: ev.AppointmentID,
			Kind:          ev.Kind,
			FireAt:        ev.FireAt.Format(time.RFC3339),
			Status:        string(ev.Status),
			Channel:       string(ev.Channel),
			Recipient:     ev.Recipient,
		})
	}
	return items
}

func toPatientItem(p model.Patient) patientItem {
	item := patientItem{
		PatientID:        p.ID,
		Name:             p.Name,
		Phone:            p.Phone,
		Email:            p.Email,
		ChatHandle:       p.ChatHandle,
		SocialHandle:     p.SocialHandle,
		SMSConsent:       p.SMSConsent,
		PreferredContact: string(p.PreferredContact),
		VisitCount:       p.VisitCount,
		Notes:            p.Notes,
	}
	if p.LastVisit != nil {
		item.LastVisit = p.LastVisit.UTC().Format(time.RFC3339)
	}
	return item
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
