package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/go-chi/chi/v5"
)

// handleMySessions returns the caller's sessions. Every user shares the one
// canonical session, so the list always has exactly one element.
func (s *server) handleMySessions(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	view, err := s.shared.GetSharedSession(r.Context(), actor.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, []*models.SessionView{view})
}

func (s *server) handleSharedStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.shared.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleMarkReady(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor, _ := actorFrom(r.Context())

	view, err := s.shared.PromoteToReady(r.Context(), id, actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.record(r, "SHARED_SESSION_MARKED_READY", targetSession, id, map[string]any{"status": string(models.StatusReady)})
	writeJSON(w, http.StatusOK, view)
}
