package photo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"

	"github.com/sonroyaalmerol/ldap-contacts/internal/storage"
	"github.com/sonroyaalmerol/ldap-contacts/pkg/vcard"
)

// SourceType is the wire tag clients use to pick a photo source.
type SourceType int

const (
	SourceCurrent    SourceType = 0 // photo stored on the contact card
	SourceFilesystem SourceType = 1 // file already on the server filesystem
	SourceUpload     SourceType = 2 // freshly uploaded body
)

// ErrUnknownSource is returned for tags outside the defined set. There is no
// best-effort fallback variant.
var ErrUnknownSource = errors.New("unknown photo source type")

func ParseSourceType(tag int) (SourceType, error) {
	switch t := SourceType(tag); t {
	case SourceCurrent, SourceFilesystem, SourceUpload:
		return t, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownSource, tag)
	}
}

// Source produces a decoded image. Decoding applies EXIF orientation, so a
// fetched image is already upright.
type Source interface {
	Fetch(ctx context.Context) (image.Image, error)
}

// StoredContactSource loads the PHOTO property of a stored card.
type StoredContactSource struct {
	Store     storage.Store
	AccountID string
	ContactID string
}

func (s *StoredContactSource) Fetch(ctx context.Context) (image.Image, error) {
	card, err := s.Store.GetCard(ctx, s.AccountID, s.ContactID)
	if err != nil {
		return nil, fmt.Errorf("load card %s: %w", s.ContactID, err)
	}
	parsed, err := vcard.Parse([]byte(card.Data))
	if err != nil {
		return nil, fmt.Errorf("parse card %s: %w", s.ContactID, err)
	}
	data, err := vcard.Photo(parsed)
	if err != nil {
		return nil, err
	}
	return decode(bytes.NewReader(data))
}

// FilesystemSource loads an image file resident on the server.
type FilesystemSource struct {
	Path string
}

func (s *FilesystemSource) Fetch(ctx context.Context) (image.Image, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(f)
}

// UploadSource decodes a freshly uploaded request body.
type UploadSource struct {
	Reader io.Reader
}

func (s *UploadSource) Fetch(ctx context.Context) (image.Image, error) {
	return decode(s.Reader)
}

func decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
