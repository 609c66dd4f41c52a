// Package identity matches inbound contacts to patient records.
package identity

import (
	"github.com/example/dentaldesk/services/frontdesk-service/internal/model"
)

// Directory is the read view of the patient directory the resolver scans.
// Iteration order is the directory's registration order.
type Directory interface {
	Patients() []model.Patient
}

type Resolver struct {
	dir Directory
}

func New(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Identify scans the directory for a patient whose field for the contact's
// channel exactly equals the contact value. Matching is per-channel only: a
// phone contact never matches an email field and vice versa. When several
// patients share the same value the first registered match wins.
func (r *Resolver) Identify(contact model.Contact) (model.Patient, bool) {
	if contact.Value == "" {
		return model.Patient{}, false
	}
	for _, p := range r.dir.Patients() {
		if p.ContactFor(contact.Channel) == contact.Value {
			return p, true
		}
	}
	return model.Patient{}, false
}
