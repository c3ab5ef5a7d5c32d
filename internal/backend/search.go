package backend

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sonroyaalmerol/ldap-contacts/internal/storage"
)

const defaultSearchLimit = 100

// SearchProvider answers free-text lookups against the property index.
type SearchProvider struct {
	store  storage.Store
	logger zerolog.Logger
}

func (b *Backend) SearchProvider() *SearchProvider {
	return &SearchProvider{store: b.store, logger: b.logger}
}

// Search matches term as a substring of any indexed property value in the
// caller's book and resolves the hits back to contacts. Each contact appears
// once no matter how many of its properties matched.
func (p *SearchProvider) Search(ctx context.Context, accountID, term string, limit int) ([]*Contact, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	props, err := p.store.SearchProperties(ctx, accountID, term, limit)
	if err != nil {
		p.logger.Error().Err(err).
			Str("owner", accountID).
			Str("term", term).
			Msg("index search failed")
		return nil, err
	}

	seen := make(map[string]struct{}, len(props))
	var out []*Contact
	for _, prop := range props {
		if _, ok := seen[prop.ContactID]; ok {
			continue
		}
		seen[prop.ContactID] = struct{}{}

		card, err := p.store.GetCard(ctx, accountID, prop.ContactID)
		if err != nil {
			// Index row may outlive its card mid-reconciliation; skip it.
			p.logger.Debug().Err(err).
				Str("owner", accountID).
				Str("contact", prop.ContactID).
				Msg("search hit without card")
			continue
		}
		out = append(out, annotate(card))
	}
	return out, nil
}
