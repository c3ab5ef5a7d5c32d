// Package backend synthesizes a read-mostly virtual address book from the
// host directory. Every directory user is mirrored as one contact card; each
// account owns exactly one such book, whose id is the account's own id.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	govcard "github.com/emersion/go-vcard"
	"github.com/rs/zerolog"

	"github.com/sonroyaalmerol/ldap-contacts/internal/directory"
	"github.com/sonroyaalmerol/ldap-contacts/internal/storage"
	"github.com/sonroyaalmerol/ldap-contacts/pkg/vcard"
)

const backendName = "localusers"

// ErrMalformedCard marks update payloads the vCard parser rejected.
var ErrMalformedCard = errors.New("malformed card")

type Backend struct {
	store  storage.Store
	dir    directory.Directory
	logger zerolog.Logger
	prodID string
}

func New(store storage.Store, dir directory.Directory, prodID string, logger zerolog.Logger) *Backend {
	return &Backend{
		store:  store,
		dir:    dir,
		logger: logger,
		prodID: prodID,
	}
}

// ListAddressBooks returns the caller's single virtual book.
func (b *Backend) ListAddressBooks(ctx context.Context, accountID string) []*AddressBook {
	return []*AddressBook{b.GetAddressBook(accountID)}
}

// GetAddressBook returns a descriptor for any id without an existence check.
// The ctag is the current time, so clients never treat the book as unchanged.
func (b *Backend) GetAddressBook(id string) *AddressBook {
	return &AddressBook{
		ID:          id,
		DisplayName: "Local Users",
		Description: "Local Users",
		CTag:        time.Now().Unix(),
		Permissions: PermRead,
		Backend:     backendName,
		Active:      true,
	}
}

// ListContacts reconciles the caller's stored cards against the directory's
// current account set and serves the result. The book id argument is accepted
// for interface compatibility; rows are always scoped to the caller's own
// account. At most one extra listing pass runs after a reconciliation that
// changed anything.
func (b *Backend) ListContacts(ctx context.Context, accountID, addressBookID string) ([]*Contact, error) {
	for pass := 0; ; pass++ {
		cards, err := b.store.ListCards(ctx, accountID)
		if err != nil {
			b.logger.Error().Err(err).Str("owner", accountID).Msg("failed to list cards")
			return nil, fmt.Errorf("list cards: %w", err)
		}

		users, err := b.dir.ListUserIDs(ctx)
		if err != nil {
			b.logger.Error().Err(err).Str("owner", accountID).Msg("failed to enumerate directory users")
			return nil, fmt.Errorf("list directory users: %w", err)
		}

		cardIDs := make([]string, 0, len(cards))
		for _, c := range cards {
			cardIDs = append(cardIDs, c.ID)
		}

		toAdd := diff(users, cardIDs)
		toRemove := diff(cardIDs, users)

		if pass > 0 || (len(toAdd) == 0 && len(toRemove) == 0) {
			return annotateAll(cards), nil
		}

		if len(toAdd) > 0 {
			if err := b.addContacts(ctx, accountID, toAdd); err != nil {
				b.logger.Error().Err(err).Str("owner", accountID).Msg("failed to add mirrored contacts")
			}
		}
		if len(toRemove) > 0 {
			if err := b.removeContacts(ctx, accountID, toRemove); err != nil {
				b.logger.Error().Err(err).Str("owner", accountID).Msg("failed to remove stale contacts")
			}
		}
	}
}

// GetContact looks up a single card by (caller, id). No reconciliation runs.
func (b *Backend) GetContact(ctx context.Context, accountID, contactID string) (*Contact, error) {
	card, err := b.store.GetCard(ctx, accountID, contactID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.logger.Error().Err(err).
				Str("owner", accountID).
				Str("contact", contactID).
				Msg("failed to get card")
		}
		return nil, err
	}
	return annotate(card), nil
}

// UpdateContact persists a new card body for (contactID, caller) and rebuilds
// the contact's index rows. A fresh revision is always stamped, whether or not
// the payload carried one.
func (b *Backend) UpdateContact(ctx context.Context, accountID, contactID string, raw []byte) error {
	card, err := vcard.Parse(raw)
	if err != nil {
		b.logger.Error().Err(err).
			Str("owner", accountID).
			Str("contact", contactID).
			Msg("rejecting malformed card body")
		return fmt.Errorf("%w: %v", ErrMalformedCard, err)
	}
	return b.UpdateContactCard(ctx, accountID, contactID, card)
}

// UpdateContactCard is UpdateContact for a pre-parsed card.
func (b *Backend) UpdateContactCard(ctx context.Context, accountID, contactID string, card govcard.Card) error {
	now := time.Now()
	vcard.StampRevision(card, now)

	data, err := vcard.Serialize(card)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCard, err)
	}

	row := &storage.Card{
		ID:           contactID,
		Owner:        accountID,
		DisplayName:  card.Value(govcard.FieldFormattedName),
		Data:         data,
		LastModified: now,
	}
	if err := b.store.UpdateCard(ctx, row); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.logger.Error().Err(err).
				Str("owner", accountID).
				Str("contact", contactID).
				Msg("failed to update card")
		}
		return err
	}

	if err := b.updateIndex(ctx, accountID, contactID, card); err != nil {
		b.logger.Error().Err(err).
			Str("owner", accountID).
			Str("contact", contactID).
			Msg("index rebuild incomplete after update")
	}
	return nil
}

func (b *Backend) addContacts(ctx context.Context, accountID string, userIDs []string) error {
	for _, uid := range userIDs {
		displayName, err := b.dir.DisplayName(ctx, uid)
		if err != nil {
			b.logger.Warn().Err(err).Str("user", uid).Msg("no display name for directory user")
			displayName = uid
		}

		now := time.Now()
		card := vcard.NewMinimalCard(displayName, b.prodID, now)
		data, err := vcard.Serialize(card)
		if err != nil {
			return fmt.Errorf("serialize card for %s: %w", uid, err)
		}

		row := &storage.Card{
			ID:           uid,
			Owner:        accountID,
			DisplayName:  displayName,
			Data:         data,
			LastModified: now,
		}
		// Two concurrent listings can race to insert the same user; the
		// loser's insert fails here and is logged, not retried.
		if err := b.store.InsertCard(ctx, row); err != nil {
			return fmt.Errorf("insert card for %s: %w", uid, err)
		}

		if err := b.updateIndex(ctx, accountID, uid, card); err != nil {
			b.logger.Error().Err(err).
				Str("owner", accountID).
				Str("contact", uid).
				Msg("index rebuild incomplete after insert")
		}
	}
	return nil
}

func (b *Backend) removeContacts(ctx context.Context, accountID string, contactIDs []string) error {
	for _, id := range contactIDs {
		if err := b.store.DeleteCard(ctx, accountID, id); err != nil {
			return fmt.Errorf("delete card %s: %w", id, err)
		}
		b.purgeIndex(ctx, id)
	}
	return nil
}

// diff returns the elements of a that are not in b.
func diff(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := set[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
