package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/sonroyaalmerol/ldap-contacts/internal/photo"
)

type photoResponse struct {
	Key    string `json:"key"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// handleCreatePhoto loads a photo from the requested source, normalizes it,
// and parks it in the temporary cache for the cropper. The source tag picks
// the variant: 0 = current contact photo, 1 = server file, 2 = request body.
func (h *Handlers) handleCreatePhoto(w http.ResponseWriter, r *http.Request) {
	pr, ok := h.principal(w, r)
	if !ok {
		return
	}

	tag, err := strconv.Atoi(r.URL.Query().Get("source"))
	if err != nil {
		http.Error(w, "missing or invalid source parameter", http.StatusBadRequest)
		return
	}
	srcType, err := photo.ParseSourceType(tag)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var source photo.Source
	switch srcType {
	case photo.SourceCurrent:
		contactID := r.URL.Query().Get("contact")
		if contactID == "" {
			http.Error(w, "missing contact parameter", http.StatusBadRequest)
			return
		}
		source = &photo.StoredContactSource{
			Store:     h.store,
			AccountID: pr.UserID,
			ContactID: contactID,
		}
	case photo.SourceFilesystem:
		path := r.URL.Query().Get("path")
		if path == "" {
			http.Error(w, "missing path parameter", http.StatusBadRequest)
			return
		}
		source = &photo.FilesystemSource{Path: path}
	case photo.SourceUpload:
		source = &photo.UploadSource{Reader: http.MaxBytesReader(w, r.Body, h.cfg.HTTP.MaxPhotoBytes)}
	}

	session := photo.NewSession(source, h.blobs, h.cfg.Photo)
	key, err := session.Key(r.Context())
	if err != nil {
		h.logger.Error().Err(err).
			Str("user", pr.UserID).
			Int("source", tag).
			Msg("failed to load photo")
		http.Error(w, "failed to load photo", http.StatusUnprocessableEntity)
		return
	}

	img, err := session.Photo(r.Context())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	bounds := img.Bounds()
	h.writeJSON(w, http.StatusOK, photoResponse{
		Key:    key,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	})
}

func (h *Handlers) handleGetPhoto(w http.ResponseWriter, r *http.Request, key string) {
	if _, ok := h.principal(w, r); !ok {
		return
	}

	data, err := h.blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, photo.ErrCacheMiss) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("failed to read photo cache")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}
