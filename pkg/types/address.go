package types

import (
	"strings"

	"github.com/harborline/storefront/pkg/enums"
)

// Address mirrors the backend's address resource. At most one address per
// (user, type) pair carries IsDefault; the backend enforces that invariant and
// the client relies on it when auto-selecting.
type Address struct {
	ID           string            `json:"id,omitempty"`
	Type         enums.AddressType `json:"type"`
	Label        string            `json:"label,omitempty"`
	FirstName    string            `json:"first_name"`
	LastName     string            `json:"last_name"`
	Company      string            `json:"company,omitempty"`
	AddressLine1 string            `json:"address_line_1"`
	AddressLine2 string            `json:"address_line_2,omitempty"`
	City         string            `json:"city"`
	State        string            `json:"state"`
	PostalCode   string            `json:"postal_code"`
	Country      string            `json:"country"`
	Phone        string            `json:"phone,omitempty"`
	IsDefault    bool              `json:"is_default"`
}

// IsEmpty reports whether no meaningful field has been filled in. Used to
// reject a blank manual billing form at submission.
func (a Address) IsEmpty() bool {
	fields := []string{
		a.FirstName,
		a.LastName,
		a.AddressLine1,
		a.AddressLine2,
		a.City,
		a.State,
		a.PostalCode,
		a.Country,
	}
	for _, field := range fields {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// Equal compares the fields that matter for "same as billing" semantics.
func (a Address) Equal(other Address) bool {
	return a.FirstName == other.FirstName &&
		a.LastName == other.LastName &&
		a.AddressLine1 == other.AddressLine1 &&
		a.AddressLine2 == other.AddressLine2 &&
		a.City == other.City &&
		a.State == other.State &&
		a.PostalCode == other.PostalCode &&
		a.Country == other.Country
}
