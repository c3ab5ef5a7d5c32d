package backend

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/ldap-contacts/internal/directory"
	"github.com/sonroyaalmerol/ldap-contacts/internal/storage"
	"github.com/sonroyaalmerol/ldap-contacts/pkg/vcard"
)

const testProdID = "-//Test//NONSGML Contacts 1.0.0//EN"

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockDirectory implements directory.Directory.
type mockDirectory struct {
	users   []string
	names   map[string]string
	listErr error
}

func (m *mockDirectory) Close() {}

func (m *mockDirectory) BindUser(_ context.Context, _, _ string) (*directory.User, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDirectory) LookupUserByAttr(_ context.Context, _, _ string) (*directory.User, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDirectory) ListUserIDs(_ context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.users, nil
}

func (m *mockDirectory) DisplayName(_ context.Context, uid string) (string, error) {
	if name, ok := m.names[uid]; ok {
		return name, nil
	}
	return "", errors.New("user not found")
}

func (m *mockDirectory) IntrospectToken(_ context.Context, _, _, _ string) (bool, string, error) {
	return false, "", errors.New("not implemented")
}

// mockStore implements storage.Store in memory.
type mockStore struct {
	cards map[string]*storage.Card // keyed by owner+"/"+id
	props []*storage.Property

	inserts       int
	deletes       int
	listErr       error
	insertErr     error
	propInsertErr error
}

func newMockStore() *mockStore {
	return &mockStore{cards: make(map[string]*storage.Card)}
}

func (m *mockStore) Close() {}

func (m *mockStore) key(owner, id string) string { return owner + "/" + id }

func (m *mockStore) ListCards(_ context.Context, owner string) ([]*storage.Card, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*storage.Card
	for _, c := range m.cards {
		if c.Owner == owner {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) GetCard(_ context.Context, owner, id string) (*storage.Card, error) {
	c, ok := m.cards[m.key(owner, id)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockStore) InsertCard(_ context.Context, c *storage.Card) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	k := m.key(c.Owner, c.ID)
	if _, exists := m.cards[k]; exists {
		return errors.New("duplicate key")
	}
	cp := *c
	m.cards[k] = &cp
	m.inserts++
	return nil
}

func (m *mockStore) UpdateCard(_ context.Context, c *storage.Card) error {
	k := m.key(c.Owner, c.ID)
	if _, ok := m.cards[k]; !ok {
		return storage.ErrNotFound
	}
	cp := *c
	m.cards[k] = &cp
	return nil
}

func (m *mockStore) DeleteCard(_ context.Context, owner, id string) error {
	delete(m.cards, m.key(owner, id))
	m.deletes++
	return nil
}

func (m *mockStore) DeleteProperties(_ context.Context, contactID string) error {
	kept := m.props[:0]
	for _, p := range m.props {
		if p.ContactID != contactID {
			kept = append(kept, p)
		}
	}
	m.props = kept
	return nil
}

func (m *mockStore) InsertProperty(_ context.Context, p *storage.Property) error {
	if m.propInsertErr != nil {
		return m.propInsertErr
	}
	cp := *p
	m.props = append(m.props, &cp)
	return nil
}

func (m *mockStore) ListProperties(_ context.Context, contactID string) ([]*storage.Property, error) {
	var out []*storage.Property
	for _, p := range m.props {
		if p.ContactID == contactID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockStore) SearchProperties(_ context.Context, owner, term string, limit int) ([]*storage.Property, error) {
	var out []*storage.Property
	for _, p := range m.props {
		if p.Owner == owner && strings.Contains(strings.ToLower(p.Value), strings.ToLower(term)) {
			out = append(out, p)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func seedCard(m *mockStore, owner, id string) {
	card := vcard.NewMinimalCard(id, testProdID, time.Now())
	data, _ := vcard.Serialize(card)
	m.cards[m.key(owner, id)] = &storage.Card{
		ID:           id,
		Owner:        owner,
		DisplayName:  id,
		Data:         data,
		LastModified: time.Now(),
	}
}

func newTestBackend(store *mockStore, dir *mockDirectory) *Backend {
	return New(store, dir, testProdID, zerolog.Nop())
}

// ---------------------------------------------------------------------------
// Reconciliation
// ---------------------------------------------------------------------------

func TestListContactsReconciles(t *testing.T) {
	store := newMockStore()
	seedCard(store, "admin", "alice")
	seedCard(store, "admin", "bob")
	seedCard(store, "admin", "dave")

	dir := &mockDirectory{
		users: []string{"alice", "bob", "carol"},
		names: map[string]string{"alice": "Alice", "bob": "Bob", "carol": "Carol"},
	}
	b := newTestBackend(store, dir)

	contacts, err := b.ListContacts(context.Background(), "admin", "admin")
	require.NoError(t, err)
	require.Len(t, contacts, 3)

	ids := make(map[string]bool)
	for _, c := range contacts {
		ids[c.ID] = true
	}
	assert.True(t, ids["alice"])
	assert.True(t, ids["bob"])
	assert.True(t, ids["carol"])
	assert.False(t, ids["dave"])

	// the new card carries the directory display name and the product tag
	carol, err := store.GetCard(context.Background(), "admin", "carol")
	require.NoError(t, err)
	assert.Equal(t, "Carol", carol.DisplayName)
	assert.Contains(t, carol.Data, testProdID)

	// the stale card's index rows are gone
	props, err := store.ListProperties(context.Background(), "dave")
	require.NoError(t, err)
	assert.Empty(t, props)
}

func TestListContactsIdempotent(t *testing.T) {
	store := newMockStore()
	seedCard(store, "admin", "alice")

	dir := &mockDirectory{
		users: []string{"alice", "bob"},
		names: map[string]string{"alice": "Alice", "bob": "Bob"},
	}
	b := newTestBackend(store, dir)

	first, err := b.ListContacts(context.Background(), "admin", "admin")
	require.NoError(t, err)
	insertsAfterFirst := store.inserts

	second, err := b.ListContacts(context.Background(), "admin", "admin")
	require.NoError(t, err)

	assert.Equal(t, insertsAfterFirst, store.inserts, "second listing must not reconcile again")
	assert.Equal(t, len(first), len(second))
}

func TestListContactsStorageError(t *testing.T) {
	store := newMockStore()
	store.listErr = errors.New("connection refused")
	b := newTestBackend(store, &mockDirectory{})

	contacts, err := b.ListContacts(context.Background(), "admin", "admin")
	require.Error(t, err)
	assert.Nil(t, contacts)
}

func TestListContactsInsertFailureStillServes(t *testing.T) {
	store := newMockStore()
	seedCard(store, "admin", "alice")
	store.insertErr = errors.New("duplicate key")

	dir := &mockDirectory{
		users: []string{"alice", "bob"},
		names: map[string]string{"alice": "Alice", "bob": "Bob"},
	}
	b := newTestBackend(store, dir)

	// the failed add is logged, the second pass serves what is there
	contacts, err := b.ListContacts(context.Background(), "admin", "admin")
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
}

func TestPermissionAnnotation(t *testing.T) {
	store := newMockStore()
	seedCard(store, "admin", "alice")

	dir := &mockDirectory{users: []string{"alice"}, names: map[string]string{"alice": "Alice"}}
	b := newTestBackend(store, dir)

	contacts, err := b.ListContacts(context.Background(), "admin", "admin")
	require.NoError(t, err)
	for _, c := range contacts {
		assert.True(t, c.Permissions.CanRead())
		assert.True(t, c.Permissions.CanUpdate())
	}

	got, err := b.GetContact(context.Background(), "admin", "alice")
	require.NoError(t, err)
	assert.True(t, got.Permissions.CanRead())
	assert.True(t, got.Permissions.CanUpdate())

	book := b.GetAddressBook("admin")
	assert.True(t, book.Permissions.CanRead())
	assert.False(t, book.Permissions.CanUpdate())
}

func TestListAddressBooks(t *testing.T) {
	b := newTestBackend(newMockStore(), &mockDirectory{})

	books := b.ListAddressBooks(context.Background(), "admin")
	require.Len(t, books, 1)
	assert.Equal(t, "admin", books[0].ID)
	assert.NotZero(t, books[0].CTag)
}

// ---------------------------------------------------------------------------
// Updates and index maintenance
// ---------------------------------------------------------------------------

const updateBody = "BEGIN:VCARD\nVERSION:3.0\nFN:Alice Adams\nEMAIL:alice@example.com\nEMAIL:aadams@example.org\nTEL;TYPE=PREF:+1 555 0100\nX-FOO:ignored\nEND:VCARD\n"

func TestUpdateContactRebuildsIndex(t *testing.T) {
	store := newMockStore()
	seedCard(store, "admin", "alice")
	b := newTestBackend(store, &mockDirectory{})

	err := b.UpdateContact(context.Background(), "admin", "alice", []byte(updateBody))
	require.NoError(t, err)

	props, err := store.ListProperties(context.Background(), "alice")
	require.NoError(t, err)

	byName := map[string][]*storage.Property{}
	for _, p := range props {
		byName[p.Name] = append(byName[p.Name], p)
	}

	require.Len(t, byName["EMAIL"], 2)
	for _, p := range byName["EMAIL"] {
		assert.False(t, p.Preferred)
	}
	require.Len(t, byName["TEL"], 1)
	assert.True(t, byName["TEL"][0].Preferred)
	assert.Empty(t, byName["X-FOO"])

	card, err := store.GetCard(context.Background(), "admin", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice Adams", card.DisplayName)
	assert.Contains(t, card.Data, "REV")
}

func TestUpdateContactTruncatesIndexedValues(t *testing.T) {
	store := newMockStore()
	seedCard(store, "admin", "alice")
	b := newTestBackend(store, &mockDirectory{})

	long := strings.Repeat("x", 300)
	body := "BEGIN:VCARD\nVERSION:3.0\nFN:Alice\nNOTE:" + long + "\nEND:VCARD\n"
	require.NoError(t, b.UpdateContact(context.Background(), "admin", "alice", []byte(body)))

	props, err := store.ListProperties(context.Background(), "alice")
	require.NoError(t, err)
	for _, p := range props {
		if p.Name == "NOTE" {
			assert.Len(t, p.Value, 254)
			return
		}
	}
	t.Fatal("NOTE property not indexed")
}

func TestUpdateContactMalformed(t *testing.T) {
	store := newMockStore()
	seedCard(store, "admin", "alice")
	before := store.cards["admin/alice"].Data
	b := newTestBackend(store, &mockDirectory{})

	err := b.UpdateContact(context.Background(), "admin", "alice", []byte("this is not a card"))
	require.ErrorIs(t, err, ErrMalformedCard)
	assert.Equal(t, before, store.cards["admin/alice"].Data, "no partial write on parse failure")
}

func TestUpdateContactUnknownID(t *testing.T) {
	store := newMockStore()
	b := newTestBackend(store, &mockDirectory{})

	err := b.UpdateContact(context.Background(), "admin", "ghost", []byte(updateBody))
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateContactPartialIndexOnInsertFailure(t *testing.T) {
	store := newMockStore()
	seedCard(store, "admin", "alice")
	b := newTestBackend(store, &mockDirectory{})

	store.propInsertErr = errors.New("disk full")
	// update itself succeeds; the index rebuild is best-effort
	require.NoError(t, b.UpdateContact(context.Background(), "admin", "alice", []byte(updateBody)))

	props, err := store.ListProperties(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, props)
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

func TestSearchProvider(t *testing.T) {
	store := newMockStore()
	seedCard(store, "admin", "alice")
	seedCard(store, "admin", "bob")
	b := newTestBackend(store, &mockDirectory{})

	require.NoError(t, b.UpdateContact(context.Background(), "admin", "alice", []byte(updateBody)))

	hits, err := b.SearchProvider().Search(context.Background(), "admin", "example.com", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "alice", hits[0].ID)

	// two matching properties on the same card yield one hit
	hits, err = b.SearchProvider().Search(context.Background(), "admin", "example", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = b.SearchProvider().Search(context.Background(), "admin", "no-such-thing", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
