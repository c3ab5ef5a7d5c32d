package backend

import (
	"context"
	"strings"

	govcard "github.com/emersion/go-vcard"

	"github.com/sonroyaalmerol/ldap-contacts/internal/storage"
)

// maxIndexedValueLen caps the stored projection of a property value.
const maxIndexedValueLen = 254

// indexedProperties is the fixed allow-list of card properties that get index
// rows. Anything else on a card is ignored.
var indexedProperties = map[string]struct{}{
	"BDAY": {}, "UID": {}, "N": {}, "FN": {}, "TITLE": {}, "ROLE": {},
	"NOTE": {}, "NICKNAME": {}, "ORG": {}, "CATEGORIES": {}, "EMAIL": {},
	"TEL": {}, "IMPP": {}, "ADR": {}, "URL": {}, "GEO": {},
}

// updateIndex replaces every index row for the contact with a full
// re-derivation from the card body. The rebuild is not transactional: a
// failed insert aborts the remaining inserts and leaves a partial index
// until the next successful rebuild.
func (b *Backend) updateIndex(ctx context.Context, accountID, contactID string, card govcard.Card) error {
	b.purgeIndex(ctx, contactID)

	for name, fields := range card {
		if _, ok := indexedProperties[name]; !ok {
			continue
		}
		for _, field := range fields {
			value := field.Value
			if len(value) > maxIndexedValueLen {
				value = value[:maxIndexedValueLen]
			}
			p := &storage.Property{
				Owner:     accountID,
				ContactID: contactID,
				Name:      name,
				Value:     value,
				Preferred: isPreferred(field),
			}
			if err := b.store.InsertProperty(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// purgeIndex drops every index row for the contact, best-effort.
func (b *Backend) purgeIndex(ctx context.Context, contactID string) {
	if err := b.store.DeleteProperties(ctx, contactID); err != nil {
		b.logger.Warn().Err(err).Str("contact", contactID).Msg("failed to purge index rows")
	}
}

func isPreferred(field *govcard.Field) bool {
	for _, t := range field.Params[govcard.ParamType] {
		if strings.EqualFold(t, "PREF") {
			return true
		}
	}
	return false
}
