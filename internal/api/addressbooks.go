package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/sonroyaalmerol/ldap-contacts/internal/backend"
	"github.com/sonroyaalmerol/ldap-contacts/internal/storage"
)

func (h *Handlers) handleListAddressBooks(w http.ResponseWriter, r *http.Request) {
	pr, ok := h.principal(w, r)
	if !ok {
		return
	}
	books := h.backend.ListAddressBooks(r.Context(), pr.UserID)
	h.writeJSON(w, http.StatusOK, books)
}

func (h *Handlers) handleGetAddressBook(w http.ResponseWriter, r *http.Request, bookID string) {
	if _, ok := h.principal(w, r); !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, h.backend.GetAddressBook(bookID))
}

func (h *Handlers) handleListContacts(w http.ResponseWriter, r *http.Request, bookID string) {
	pr, ok := h.principal(w, r)
	if !ok {
		return
	}
	contacts, err := h.backend.ListContacts(r.Context(), pr.UserID, bookID)
	if err != nil {
		// A failed reconciliation degrades to an empty book rather than an
		// error response; the failure is already logged with context.
		h.writeJSON(w, http.StatusOK, []*backend.Contact{})
		return
	}
	if contacts == nil {
		contacts = []*backend.Contact{}
	}
	h.writeJSON(w, http.StatusOK, contacts)
}

func (h *Handlers) handleGetContact(w http.ResponseWriter, r *http.Request, bookID, contactID string) {
	pr, ok := h.principal(w, r)
	if !ok {
		return
	}
	contact, err := h.backend.GetContact(r.Context(), pr.UserID, contactID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, contact)
}

func (h *Handlers) handleUpdateContact(w http.ResponseWriter, r *http.Request, bookID, contactID string) {
	pr, ok := h.principal(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.HTTP.MaxVCFBytes))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.backend.UpdateContact(r.Context(), pr.UserID, contactID, body); err != nil {
		switch {
		case errors.Is(err, backend.ErrMalformedCard):
			http.Error(w, "malformed card", http.StatusBadRequest)
		case errors.Is(err, storage.ErrNotFound):
			http.NotFound(w, r)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	pr, ok := h.principal(w, r)
	if !ok {
		return
	}
	term := r.URL.Query().Get("q")
	if term == "" {
		http.Error(w, "missing q parameter", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	contacts, err := h.backend.SearchProvider().Search(r.Context(), pr.UserID, term, limit)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if contacts == nil {
		contacts = []*backend.Contact{}
	}
	h.writeJSON(w, http.StatusOK, contacts)
}
