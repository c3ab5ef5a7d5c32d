package vcard

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	govcard "github.com/emersion/go-vcard"
)

// Parse decodes a single vCard from raw text, tolerating bare-LF line endings.
func Parse(raw []byte) (govcard.Card, error) {
	cards, err := parseAll(raw)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, errors.New("no vcard found")
	}
	return cards[0], nil
}

// Serialize encodes a card back to its wire form.
func Serialize(card govcard.Card) (string, error) {
	if card.Value(govcard.FieldVersion) == "" {
		card.SetValue(govcard.FieldVersion, "3.0")
	}
	var buf bytes.Buffer
	if err := govcard.NewEncoder(&buf).Encode(card); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// NewMinimalCard builds the card synthesized for a mirrored directory user:
// display name, revision timestamp, and the issuing product tag.
func NewMinimalCard(displayName, prodID string, rev time.Time) govcard.Card {
	card := make(govcard.Card)
	card.SetValue(govcard.FieldVersion, "3.0")
	card.SetValue(govcard.FieldFormattedName, displayName)
	card.SetValue(govcard.FieldRevision, rev.UTC().Format(time.RFC3339))
	card.SetValue("PRODID", prodID)
	return card
}

// StampRevision overwrites REV with the given time.
func StampRevision(card govcard.Card, rev time.Time) {
	card.SetValue(govcard.FieldRevision, rev.UTC().Format(time.RFC3339))
}

// Photo returns the raw bytes of the card's PHOTO property. Handles both
// inline base64 (v3 ENCODING=b) and data: URI (v4) encodings.
func Photo(card govcard.Card) ([]byte, error) {
	field := card.Preferred(govcard.FieldPhoto)
	if field == nil {
		return nil, errors.New("card has no photo")
	}
	value := field.Value

	if strings.HasPrefix(value, "data:") {
		idx := strings.Index(value, ",")
		if idx < 0 {
			return nil, errors.New("malformed photo data URI")
		}
		value = value[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode photo data: %w", err)
	}
	return data, nil
}

func parseAll(b []byte) ([]govcard.Card, error) {
	// Normalize line endings to CRLF as required by RFC 6350
	content := strings.ReplaceAll(string(b), "\n", "\r\n")
	content = strings.ReplaceAll(content, "\r\r\n", "\r\n")

	dec := govcard.NewDecoder(strings.NewReader(content))
	var out []govcard.Card
	for {
		c, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode vCard: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}
