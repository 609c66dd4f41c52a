package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/dentaldesk/libs/auth"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/storage"
)

type fakeStaff struct {
	users map[string]storage.StaffUser
}

func (f *fakeStaff) StaffByEmail(_ context.Context, email string) (storage.StaffUser, error) {
	u, ok := f.users[email]
	if !ok {
		return storage.StaffUser{}, pgx.ErrNoRows
	}
	return u, nil
}

func newStaffHandler(t *testing.T) *StaffHandler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	staff := &fakeStaff{users: map[string]storage.StaffUser{
		"desk@example.com": {ID: "u-1", Email: "desk@example.com", Name: "Front Desk", Role: "receptionist", PasswordHash: string(hash)},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStaffHandler(staff, logger, "test-secret", "clinic-1", time.Hour)
}

func TestLogin_Success(t *testing.T) {
	h := newStaffHandler(t)

	rec := postJSON(t, h.Login, "/api/v1/staff/login", `{"email":"desk@example.com","password":"hunter2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "access_token") {
		t.Fatalf("expected a token in the response: %s", rec.Body.String())
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newStaffHandler(t)
	rec := postJSON(t, h.Login, "/api/v1/staff/login", `{"email":"desk@example.com","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuth(t *testing.T) {
	secret := "test-secret"
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-User-Id") != "u-1" || r.Header.Get("X-Role") != "receptionist" {
			t.Fatalf("identity headers not stamped: %v", r.Header)
		}
		w.WriteHeader(http.StatusOK)
	})
	protected := RequireAuth(next, secret, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments?date=2026-09-11", nil)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}

	now := time.Now()
	token, err := auth.SignHS256(auth.Claims{
		Sub: "u-1", ClinicID: "clinic-1", Role: "receptionist",
		Iat: now.Unix(), Exp: now.Add(time.Hour).Unix(),
	}, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	// A spoofed identity header must be overwritten by the verified claims.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/appointments?date=2026-09-11", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-User-Id", "u-evil")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with a valid token, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	protected := RequireRole(next, "admin", "dentist")

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("X-Role", "receptionist")
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	req.Header.Set("X-Role", "dentist")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
