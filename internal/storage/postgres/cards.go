package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sonroyaalmerol/ldap-contacts/internal/storage"
)

func (s *Store) ListCards(ctx context.Context, owner string) ([]*storage.Card, error) {
	rows, err := s.pool.Query(ctx, `
		select id, owner_id, display_name, data, last_modified
		from cards
		where owner_id = $1`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*storage.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCard(ctx context.Context, owner, id string) (*storage.Card, error) {
	row := s.pool.QueryRow(ctx, `
		select id, owner_id, display_name, data, last_modified
		from cards
		where owner_id = $1 and id = $2`, owner, id)
	c, err := scanCard(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) InsertCard(ctx context.Context, c *storage.Card) error {
	_, err := s.pool.Exec(ctx, `
		insert into cards (
			id, owner_id, display_name, data, last_modified
		) values (
			$1, $2, $3, $4, $5
		)
	`, c.ID, c.Owner, c.DisplayName, c.Data, c.LastModified.Unix())
	return err
}

func (s *Store) UpdateCard(ctx context.Context, c *storage.Card) error {
	tag, err := s.pool.Exec(ctx, `
		update cards
		set display_name = $1, data = $2, last_modified = $3
		where id = $4 and owner_id = $5
	`, c.DisplayName, c.Data, c.LastModified.Unix(), c.ID, c.Owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCard(ctx context.Context, owner, id string) error {
	_, err := s.pool.Exec(ctx, `
		delete from cards where owner_id = $1 and id = $2
	`, owner, id)
	return err
}

func (s *Store) DeleteProperties(ctx context.Context, contactID string) error {
	_, err := s.pool.Exec(ctx, `
		delete from card_properties where contact_id = $1
	`, contactID)
	return err
}

func (s *Store) InsertProperty(ctx context.Context, p *storage.Property) error {
	_, err := s.pool.Exec(ctx, `
		insert into card_properties (
			owner_id, contact_id, name, value, preferred
		) values (
			$1, $2, $3, $4, $5
		)
	`, p.Owner, p.ContactID, p.Name, p.Value, p.Preferred)
	return err
}

func (s *Store) ListProperties(ctx context.Context, contactID string) ([]*storage.Property, error) {
	rows, err := s.pool.Query(ctx, `
		select owner_id, contact_id, name, value, preferred
		from card_properties
		where contact_id = $1`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProperties(rows)
}

func (s *Store) SearchProperties(ctx context.Context, owner, term string, limit int) ([]*storage.Property, error) {
	q := `
		select owner_id, contact_id, name, value, preferred
		from card_properties
		where owner_id = $1 and value ilike $2`
	args := []any{owner, "%" + term + "%"}
	if limit > 0 {
		q += " limit $3"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProperties(rows)
}

func scanCard(row pgx.Row) (*storage.Card, error) {
	var c storage.Card
	var lastModified int64
	if err := row.Scan(&c.ID, &c.Owner, &c.DisplayName, &c.Data, &lastModified); err != nil {
		return nil, err
	}
	c.LastModified = time.Unix(lastModified, 0).UTC()
	return &c, nil
}

func collectProperties(rows pgx.Rows) ([]*storage.Property, error) {
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
