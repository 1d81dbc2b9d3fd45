package domain

import "strings"

// Identity is the public view of a user attached to a connection. It is
// what collaborators see as createdBy/movedBy/etc. and never carries
// credentials.
type Identity struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// DisplayName is "First Last", falling back to the id.
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	name := strings.TrimSpace(i.FirstName + " " + i.LastName)
	if name == "" {
		return i.ID
	}
	return name
}
