package types

// Profile is the authenticated customer's account record. Email feeds the
// order confirmation view.
type Profile struct {
	ID        string `json:"id,omitempty"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
}
