package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a card lookup matches no row.
var ErrNotFound = errors.New("not found")

// Card is one mirrored contact. ID is the directory login of the mirrored
// user; Owner is the account whose virtual address book the row belongs to.
type Card struct {
	ID           string
	Owner        string
	DisplayName  string
	Data         string
	LastModified time.Time
}

// Property is one denormalized index row derived from a card body. The set of
// rows for a contact is always a full re-derivation, never patched in place.
type Property struct {
	Owner     string
	ContactID string
	Name      string
	Value     string
	Preferred bool
}

type Store interface {
	Close()

	// Cards
	ListCards(ctx context.Context, owner string) ([]*Card, error)
	GetCard(ctx context.Context, owner, id string) (*Card, error)
	InsertCard(ctx context.Context, c *Card) error
	UpdateCard(ctx context.Context, c *Card) error
	DeleteCard(ctx context.Context, owner, id string) error

	// Property index. Rebuilds are delete-all then insert-each and are not
	// transactional; a failed insert leaves a partial index until the next
	// successful rebuild.
	DeleteProperties(ctx context.Context, contactID string) error
	InsertProperty(ctx context.Context, p *Property) error
	ListProperties(ctx context.Context, contactID string) ([]*Property, error)
	SearchProperties(ctx context.Context, owner, term string, limit int) ([]*Property, error)
}
