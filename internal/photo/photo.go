// Package photo loads, normalizes, and temporarily caches contact photos for
// cropping workflows.
package photo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/sonroyaalmerol/ldap-contacts/internal/config"
)

// state orders the session's one-way lifecycle. Every accessor drives the
// session forward through missing states before answering, so each transition
// runs at most once per session.
type state int

const (
	stateUnfetched state = iota
	stateFetched
	stateNormalized
	stateCached
)

// Session is a per-request handle around one photo. It carries
// call-sequence-dependent state and must not be shared across goroutines.
type Session struct {
	source Source
	cache  BlobCache
	cfg    config.PhotoConfig

	img image.Image
	key string
	st  state
}

func NewSession(source Source, cache BlobCache, cfg config.PhotoConfig) *Session {
	return &Session{source: source, cache: cache, cfg: cfg}
}

// Valid reports whether an image has been decoded.
func (s *Session) Valid() bool {
	return s.st >= stateFetched && s.img != nil
}

// Photo returns the normalized image, fetching and normalizing on first use.
func (s *Session) Photo(ctx context.Context) (image.Image, error) {
	if err := s.normalize(ctx); err != nil {
		return nil, err
	}
	return s.img, nil
}

// Key caches the normalized photo bytes under a fresh random key with the
// configured TTL and returns the key. A second call returns the same key
// without touching the cache again, so the cached blob is written exactly
// once and is always the normalized form.
func (s *Session) Key(ctx context.Context) (string, error) {
	if s.st >= stateCached {
		return s.key, nil
	}
	if err := s.normalize(ctx); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, s.img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode photo: %w", err)
	}

	key := s.cfg.KeyPrefix + uuid.NewString()
	if err := s.cache.Set(ctx, key, buf.Bytes(), s.cfg.CacheTTL); err != nil {
		return "", fmt.Errorf("cache photo: %w", err)
	}
	s.key = key
	s.st = stateCached
	return key, nil
}

func (s *Session) fetch(ctx context.Context) error {
	if s.st >= stateFetched {
		return nil
	}
	img, err := s.source.Fetch(ctx)
	if err != nil {
		return err
	}
	if img == nil {
		return errors.New("source produced no image")
	}
	s.img = img
	s.st = stateFetched
	return nil
}

func (s *Session) normalize(ctx context.Context) error {
	if s.st >= stateNormalized {
		return nil
	}
	if err := s.fetch(ctx); err != nil {
		return err
	}

	bounds := s.img.Bounds()
	max := s.cfg.MaxDimension
	if bounds.Dx() > max || bounds.Dy() > max {
		s.img = imaging.Fit(s.img, max, max, imaging.Lanczos)
	}
	s.st = stateNormalized
	return nil
}
