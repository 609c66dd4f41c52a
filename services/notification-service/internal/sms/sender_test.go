package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookSender_Send(t *testing.T) {
	var got textMessage
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "gw-token")
	if err := s.Send(context.Background(), "+81-90-1111-2222", "see you tomorrow"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got.Phone != "+81-90-1111-2222" || got.Message != "see you tomorrow" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if gotAuth != "Bearer gw-token" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
}

func TestWebhookSender_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "")
	err := s.Send(context.Background(), "+81-90-1111-2222", "hi")
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected a status error, got %v", err)
	}
}

func TestWebhookSender_Unconfigured(t *testing.T) {
	s := NewWebhookSender("", "")
	if err := s.Send(context.Background(), "+81-90-1111-2222", "hi"); err == nil {
		t.Fatalf("expected an error without a url")
	}
}
