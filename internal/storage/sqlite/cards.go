package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sonroyaalmerol/ldap-contacts/internal/storage"
)

func (s *Store) ListCards(ctx context.Context, owner string) ([]*storage.Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, owner_id, display_name, data, last_modified
		from cards
		where owner_id = ?`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*storage.Card
	for rows.Next() {
		var c storage.Card
		var lastModified int64
		if err := rows.Scan(&c.ID, &c.Owner, &c.DisplayName, &c.Data, &lastModified); err != nil {
			return nil, err
		}
		c.LastModified = time.Unix(lastModified, 0).UTC()
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) GetCard(ctx context.Context, owner, id string) (*storage.Card, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, owner_id, display_name, data, last_modified
		from cards
		where owner_id = ? and id = ?`, owner, id)
	var c storage.Card
	var lastModified int64
	err := row.Scan(&c.ID, &c.Owner, &c.DisplayName, &c.Data, &lastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.LastModified = time.Unix(lastModified, 0).UTC()
	return &c, nil
}

func (s *Store) InsertCard(ctx context.Context, c *storage.Card) error {
	_, err := s.db.ExecContext(ctx, `
		insert into cards (id, owner_id, display_name, data, last_modified)
		values (?, ?, ?, ?, ?)
	`, c.ID, c.Owner, c.DisplayName, c.Data, c.LastModified.Unix())
	return err
}

func (s *Store) UpdateCard(ctx context.Context, c *storage.Card) error {
	res, err := s.db.ExecContext(ctx, `
		update cards
		set display_name = ?, data = ?, last_modified = ?
		where id = ? and owner_id = ?
	`, c.DisplayName, c.Data, c.LastModified.Unix(), c.ID, c.Owner)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCard(ctx context.Context, owner, id string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from cards where owner_id = ? and id = ?
	`, owner, id)
	return err
}

func (s *Store) DeleteProperties(ctx context.Context, contactID string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from card_properties where contact_id = ?
	`, contactID)
	return err
}

func (s *Store) InsertProperty(ctx context.Context, p *storage.Property) error {
	_, err := s.db.ExecContext(ctx, `
		insert into card_properties (owner_id, contact_id, name, value, preferred)
		values (?, ?, ?, ?, ?)
	`, p.Owner, p.ContactID, p.Name, p.Value, p.Preferred)
	return err
}

func (s *Store) ListProperties(ctx context.Context, contactID string) ([]*storage.Property, error) {
	rows, err := s.db.QueryContext(ctx, `
		select owner_id, contact_id, name, value, preferred
		from card_properties
		where contact_id = ?`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProperties(rows)
}

func (s *Store) SearchProperties(ctx context.Context, owner, term string, limit int) ([]*storage.Property, error) {
	// sqlite LIKE is case-insensitive for ASCII already
	q := `
		select owner_id, contact_id, name, value, preferred
		from card_properties
		where owner_id = ? and value like ?`
	args := []any{owner, "%" + term + "%"}
	if limit > 0 {
		q += " limit ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProperties(rows)
}

func collectProperties(rows *sql.Rows) ([]*storage.Property, error) {
	var out []*storage.Property
	for rows.Next() {
		var p storage.Property
		if err := rows.Scan(&p.Owner, &p.ContactID, &p.Name, &p.Value, &p.Preferred); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
