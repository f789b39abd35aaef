package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/dmitrijs2005/tmssession/internal/server/services"
	"github.com/go-chi/chi/v5"
)

const targetSession = "TMS_SESSION"

func sessionView(s *models.Session) *models.SessionView {
	return models.NewSessionView(s, common.StringValue(s.AssignedUserID))
}

func (s *server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.sessions.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]*models.SessionView, 0, len(list))
	for _, sess := range list {
		out = append(out, sessionView(sess))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

type createSessionRequest struct {
	Name           string `json:"name"`
	ProxyID        string `json:"proxyId"`
	DomainID       string `json:"domainId"`
	AssignedUserID string `json:"assignedUserId"`
	Notes          string `json:"notes"`
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	sess, err := s.sessions.Create(r.Context(), services.CreateSessionInput{
		Name:           req.Name,
		DomainID:       req.DomainID,
		ProxyID:        req.ProxyID,
		AssignedUserID: req.AssignedUserID,
		Notes:          req.Notes,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.record(r, "SESSION_CREATED", targetSession, sess.ID, map[string]any{"name": sess.Name})
	writeJSON(w, http.StatusCreated, sessionView(sess))
}

// nullableString tells an absent field apart from an explicit null.
type nullableString struct {
	set   bool
	value *string
}

func (n *nullableString) UnmarshalJSON(b []byte) error {
	n.set = true
	return json.Unmarshal(b, &n.value)
}

// patch returns nil when the field was absent and "" for an explicit null,
// which the store turns into NULL.
func (n nullableString) patch() *string {
	if !n.set {
		return nil
	}
	v := ""
	if n.value != nil {
		v = *n.value
	}
	return &v
}

type updateSessionRequest struct {
	Name           *string        `json:"name"`
	Status         *string        `json:"status"`
	ProxyID        nullableString `json:"proxyId"`
	DomainID       nullableString `json:"domainId"`
	AssignedUserID nullableString `json:"assignedUserId"`
	Notes          nullableString `json:"notes"`
}

func (s *server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	upd := models.SessionUpdate{
		Name:           req.Name,
		ProxyID:        req.ProxyID.patch(),
		DomainID:       req.DomainID.patch(),
		AssignedUserID: req.AssignedUserID.patch(),
		Notes:          req.Notes.patch(),
	}
	if req.Status != nil {
		st, err := models.ParseSessionStatus(*req.Status)
		if err != nil {
			s.badRequest(w, err)
			return
		}
		upd.Status = &st
	}

	sess, err := s.sessions.Update(r.Context(), id, upd)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.record(r, "SESSION_UPDATED", targetSession, id, map[string]any{"status": string(sess.Status)})
	writeJSON(w, http.StatusOK, sessionView(sess))
}

func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.record(r, "SESSION_DELETED", targetSession, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSessionLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "validation_error", "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	logs, err := s.sessions.Logs(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []*models.SessionLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
