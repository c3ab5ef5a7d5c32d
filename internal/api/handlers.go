package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sonroyaalmerol/ldap-contacts/internal/auth"
	"github.com/sonroyaalmerol/ldap-contacts/internal/backend"
	"github.com/sonroyaalmerol/ldap-contacts/internal/config"
	"github.com/sonroyaalmerol/ldap-contacts/internal/photo"
	"github.com/sonroyaalmerol/ldap-contacts/internal/storage"
)

type Handlers struct {
	cfg      *config.Config
	backend  *backend.Backend
	store    storage.Store
	blobs    photo.BlobCache
	logger   zerolog.Logger
	basePath string
}

func NewHandlers(cfg *config.Config, b *backend.Backend, store storage.Store, blobs photo.BlobCache, logger zerolog.Logger) *Handlers {
	return &Handlers{
		cfg:      cfg,
		backend:  b,
		store:    store,
		blobs:    blobs,
		logger:   logger,
		basePath: cfg.HTTP.BasePath,
	}
}

// ServeAPI dispatches an authenticated request under the API base path.
func (h *Handlers) ServeAPI(w http.ResponseWriter, r *http.Request) {
	segments := splitPath(r.URL.Path, h.basePath)
	if len(segments) == 0 {
		http.NotFound(w, r)
		return
	}

	switch segments[0] {
	case "addressbooks":
		h.serveAddressBooks(w, r, segments[1:])
	case "search":
		h.handleSearch(w, r)
	case "photos":
		h.servePhotos(w, r, segments[1:])
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) serveAddressBooks(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0:
		h.requireMethod(w, r, http.MethodGet, h.handleListAddressBooks)
	case len(rest) == 1:
		h.requireMethod(w, r, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			h.handleGetAddressBook(w, r, rest[0])
		})
	case len(rest) == 2 && rest[1] == "contacts":
		h.requireMethod(w, r, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			h.handleListContacts(w, r, rest[0])
		})
	case len(rest) == 3 && rest[1] == "contacts":
		switch r.Method {
		case http.MethodGet:
			h.handleGetContact(w, r, rest[0], rest[2])
		case http.MethodPut:
			h.handleUpdateContact(w, r, rest[0], rest[2])
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) servePhotos(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0:
		h.requireMethod(w, r, http.MethodPost, h.handleCreatePhoto)
	case len(rest) == 1:
		h.requireMethod(w, r, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			h.handleGetPhoto(w, r, rest[0])
		})
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) requireMethod(w http.ResponseWriter, r *http.Request, method string, next http.HandlerFunc) {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	next(w, r)
}

func (h *Handlers) principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok || p == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return p, true
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
	}
}
