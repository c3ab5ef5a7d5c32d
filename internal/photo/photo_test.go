package photo

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/ldap-contacts/internal/config"
)

type memBlobCache struct {
	blobs    map[string][]byte
	setCalls int
	setErr   error
}

func newMemBlobCache() *memBlobCache {
	return &memBlobCache{blobs: make(map[string][]byte)}
}

func (m *memBlobCache) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.setCalls++
	m.blobs[key] = data
	return nil
}

func (m *memBlobCache) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m.blobs[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return data, nil
}

type imageSource struct {
	img image.Image
	err error
}

func (s *imageSource) Fetch(_ context.Context) (image.Image, error) {
	return s.img, s.err
}

func testCfg() config.PhotoConfig {
	return config.PhotoConfig{
		MaxDimension: 400,
		CacheTTL:     10 * time.Minute,
		KeyPrefix:    "photo-",
	}
}

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPhotoShrinksOversizedImage(t *testing.T) {
	s := NewSession(&imageSource{img: solidImage(800, 300)}, newMemBlobCache(), testCfg())

	img, err := s.Photo(context.Background())
	require.NoError(t, err)

	bounds := img.Bounds()
	assert.Equal(t, 400, bounds.Dx())
	assert.Equal(t, 150, bounds.Dy(), "aspect ratio must be preserved")
}

func TestPhotoLeavesSmallImageAlone(t *testing.T) {
	s := NewSession(&imageSource{img: solidImage(200, 100)}, newMemBlobCache(), testCfg())

	img, err := s.Photo(context.Background())
	require.NoError(t, err)

	bounds := img.Bounds()
	assert.Equal(t, 200, bounds.Dx())
	assert.Equal(t, 100, bounds.Dy())
}

func TestPhotoIdempotent(t *testing.T) {
	s := NewSession(&imageSource{img: solidImage(800, 800)}, newMemBlobCache(), testCfg())

	first, err := s.Photo(context.Background())
	require.NoError(t, err)
	second, err := s.Photo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Bounds(), second.Bounds(), "repeated calls must not shrink again")
	assert.Equal(t, 400, second.Bounds().Dx())
}

func TestKeyWritesCacheOnce(t *testing.T) {
	cache := newMemBlobCache()
	s := NewSession(&imageSource{img: solidImage(500, 500)}, cache, testCfg())

	key1, err := s.Key(context.Background())
	require.NoError(t, err)
	key2, err := s.Key(context.Background())
	require.NoError(t, err)

	assert.Equal(t, key1, key2)
	assert.Equal(t, 1, cache.setCalls)
	assert.True(t, strings.HasPrefix(key1, "photo-"))
}

func TestKeyCachesNormalizedForm(t *testing.T) {
	cache := newMemBlobCache()
	s := NewSession(&imageSource{img: solidImage(900, 600)}, cache, testCfg())

	key, err := s.Key(context.Background())
	require.NoError(t, err)

	blob, err := cache.Get(context.Background(), key)
	require.NoError(t, err)

	img, err := imaging.Decode(bytes.NewReader(blob))
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), 400)
	assert.LessOrEqual(t, img.Bounds().Dy(), 400)
}

func TestKeyCacheFailure(t *testing.T) {
	cache := newMemBlobCache()
	cache.setErr = errors.New("connection refused")
	s := NewSession(&imageSource{img: solidImage(100, 100)}, cache, testCfg())

	_, err := s.Key(context.Background())
	require.Error(t, err)

	// the session stays uncached and retries the write on the next call
	cache.setErr = nil
	key, err := s.Key(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, key)
}

func TestValid(t *testing.T) {
	s := NewSession(&imageSource{img: solidImage(10, 10)}, newMemBlobCache(), testCfg())
	assert.False(t, s.Valid())

	_, err := s.Photo(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Valid())
}

func TestSessionFetchError(t *testing.T) {
	s := NewSession(&imageSource{err: errors.New("no photo on card")}, newMemBlobCache(), testCfg())

	_, err := s.Photo(context.Background())
	require.Error(t, err)
	assert.False(t, s.Valid())

	_, err = s.Key(context.Background())
	require.Error(t, err)
}

func TestUploadSourceDecodes(t *testing.T) {
	raw := pngBytes(t, solidImage(30, 20))
	src := &UploadSource{Reader: bytes.NewReader(raw)}

	img, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())
}

func TestUploadSourceRejectsGarbage(t *testing.T) {
	src := &UploadSource{Reader: strings.NewReader("not an image")}

	_, err := src.Fetch(context.Background())
	require.Error(t, err)
}

func TestParseSourceType(t *testing.T) {
	for tag, want := range map[int]SourceType{
		0: SourceCurrent,
		1: SourceFilesystem,
		2: SourceUpload,
	} {
		got, err := ParseSourceType(tag)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseSourceType(7)
	require.ErrorIs(t, err, ErrUnknownSource)
}
