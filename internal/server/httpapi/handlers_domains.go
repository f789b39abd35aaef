package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/go-chi/chi/v5"
)

const targetDomain = "DOMAIN"

func (s *server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	list, err := s.domains.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Domain{}
	}
	writeJSON(w, http.StatusOK, list)
}

type createDomainRequest struct {
	Label   string `json:"label"`
	BaseURL string `json:"baseUrl"`
}

func (s *server) handleCreateDomain(w http.ResponseWriter, r *http.Request) {
	var req createDomainRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	d, err := s.domains.Create(r.Context(), req.Label, req.BaseURL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.record(r, "DOMAIN_CREATED", targetDomain, d.ID, map[string]any{"baseUrl": d.BaseURL})
	writeJSON(w, http.StatusCreated, d)
}

func (s *server) handleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.domains.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.record(r, "DOMAIN_DELETED", targetDomain, id, nil)
	w.WriteHeader(http.StatusNoContent)
}
