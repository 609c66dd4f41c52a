package identity

import (
	"testing"

	"github.com/example/dentaldesk/services/frontdesk-service/internal/model"
)

type fixedDirectory []model.Patient

func (d fixedDirectory) Patients() []model.Patient { return d }

func testResolver() *Resolver {
	return New(fixedDirectory{
		{ID: "p-1", Name: "Aiko Tanaka", Phone: "+81-90-1111-2222", Email: "aiko@example.com", ChatHandle: "line:aiko"},
		{ID: "p-2", Name: "Ben Ito", Phone: "+81-90-3333-4444"},
		{ID: "p-3", Name: "Shared Phone", Phone: "+81-90-3333-4444", Email: "shared@example.com"},
	})
}

func TestIdentify_PerChannelMatch(t *testing.T) {
	r := testResolver()

	cases := []struct {
		contact model.Contact
		wantID  string
	}{
		{model.Contact{Channel: model.ChannelPhone, Value: "+81-90-1111-2222"}, "p-1"},
		{model.Contact{Channel: model.ChannelEmail, Value: "aiko@example.com"}, "p-1"},
		{model.Contact{Channel: model.ChannelChat, Value: "line:aiko"}, "p-1"},
		{model.Contact{Channel: model.ChannelSMS, Value: "+81-90-1111-2222"}, "p-1"},
	}
	for _, tc := range cases {
		p, ok := r.Identify(tc.contact)
		if !ok {
			t.Fatalf("expected match for %s %q", tc.contact.Channel, tc.contact.Value)
		}
		if p.ID != tc.wantID {
			t.Fatalf("%s %q: expected %s, got %s", tc.contact.Channel, tc.contact.Value, tc.wantID, p.ID)
		}
	}
}

func TestIdentify_NoCrossChannelMatch(t *testing.T) {
	r := testResolver()
	// The value is on file, but as a phone number, not an email address.
	if _, ok := r.Identify(model.Contact{Channel: model.ChannelEmail, Value: "+81-90-1111-2222"}); ok {
		t.Fatal("phone value must not match on the email channel")
	}
}

func TestIdentify_Unknown(t *testing.T) {
	r := testResolver()
	if _, ok := r.Identify(model.Contact{Channel: model.ChannelPhone, Value: "+81-90-9999-0000"}); ok {
		t.Fatal("unknown contact must not match")
	}
}

func TestIdentify_EmptyValueNeverMatches(t *testing.T) {
	// p-2 has no email on file; an empty inbound value must not match it.
	r := testResolver()
	if _, ok := r.Identify(model.Contact{Channel: model.ChannelEmail, Value: ""}); ok {
		t.Fatal("empty contact value must never match")
	}
}

func TestIdentify_FirstRegisteredWins(t *testing.T) {
	r := testResolver()
	p, ok := r.Identify(model.Contact{Channel: model.ChannelPhone, Value: "+81-90-3333-4444"})
	if !ok {
		t.Fatal("expected a match for the shared phone number")
	}
	if p.ID != "p-2" {
		t.Fatalf("expected first registered patient p-2, got %s", p.ID)
	}
}
