package backend

import (
	"time"

	"github.com/sonroyaalmerol/ldap-contacts/internal/storage"
)

// Permissions is the per-resource permission bitmask exposed to clients.
type Permissions uint8

const (
	PermRead Permissions = 1 << iota
	PermUpdate
)

func (p Permissions) CanRead() bool   { return p&PermRead != 0 }
func (p Permissions) CanUpdate() bool { return p&PermUpdate != 0 }

// AddressBook is the single virtual book mirroring the host directory.
// Its ID always equals the owning account's id.
type AddressBook struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"displayname"`
	Description string      `json:"description"`
	CTag        int64       `json:"ctag"`
	Permissions Permissions `json:"permissions"`
	Backend     string      `json:"backend"`
	Active      bool        `json:"active"`
}

// Contact is a stored card annotated with the permissions its consumer gets.
// The book itself is read-only; individual mirrored cards stay editable.
type Contact struct {
	ID           string      `json:"id"`
	DisplayName  string      `json:"displayname"`
	Data         string      `json:"carddata"`
	LastModified time.Time   `json:"lastmodified"`
	Permissions  Permissions `json:"permissions"`
}

func annotate(c *storage.Card) *Contact {
	return &Contact{
		ID:           c.ID,
		DisplayName:  c.DisplayName,
		Data:         c.Data,
		LastModified: c.LastModified,
		Permissions:  PermRead | PermUpdate,
	}
}

func annotateAll(cards []*storage.Card) []*Contact {
	out := make([]*Contact, 0, len(cards))
	for _, c := range cards {
		out = append(out, annotate(c))
	}
	return out
}
