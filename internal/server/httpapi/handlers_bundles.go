package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/dmitrijs2005/tmssession/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type signedURLRequest struct {
	ExpiresInSeconds *int   `json:"expiresInSeconds"`
	ContentType      string `json:"contentType"`
}

func (s *server) handleRequestUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req signedURLRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	signed, err := s.bundles.RequestUpload(r.Context(), id, services.UploadRequest{
		ContentType: req.ContentType,
		TTLSeconds:  req.ExpiresInSeconds,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.record(r, "SESSION_BUNDLE_UPLOAD_REQUESTED", targetSession, id, map[string]any{
		"expiresInSeconds": signed.TTLSeconds,
		"bundleKey":        signed.BundleKey,
	})
	writeJSON(w, http.StatusOK, signed)
}

func (s *server) handleRequestDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req signedURLRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	signed, err := s.bundles.RequestDownload(r.Context(), id, req.ExpiresInSeconds)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.record(r, "SESSION_BUNDLE_DOWNLOAD_REQUESTED", targetSession, id, map[string]any{
		"expiresInSeconds": signed.TTLSeconds,
		"bundleKey":        signed.BundleKey,
	})
	writeJSON(w, http.StatusOK, signed)
}

type completeUploadRequest struct {
	Checksum      *string `json:"checksum"`
	FileSizeBytes *int64  `json:"fileSizeBytes"`
	Encryption    *string `json:"encryption"`
}

func (s *server) handleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req completeUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	sess, err := s.bundles.CompleteUpload(r.Context(), id, services.CompleteUploadRequest{
		Checksum:   req.Checksum,
		SizeBytes:  req.FileSizeBytes,
		Encryption: req.Encryption,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.record(r, "SESSION_BUNDLE_UPLOAD_COMPLETED", targetSession, id, map[string]any{
		"bundleVersion": sess.BundleVersion,
	})
	w.WriteHeader(http.StatusNoContent)
}

type sessionEventRequest struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Context map[string]any `json:"context"`
}

func (s *server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req sessionEventRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if req.Level == "" {
		req.Level = string(models.LogInfo)
	}
	if err := s.bundles.RecordEvent(r.Context(), id, req.Level, req.Message, req.Context); err != nil {
		s.fail(w, r, err)
		return
	}
	s.record(r, "SESSION_EVENT_RECORDED", targetSession, id, map[string]any{
		"level":   req.Level,
		"message": req.Message,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

type failureRequest struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func (s *server) handleRecordFailure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req failureRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	kind, err := models.ParseSessionStatus(req.Kind)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	sess, err := s.bundles.SetFailureStatus(r.Context(), id, kind, req.Detail)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.record(r, "SESSION_FAILURE_RECORDED", targetSession, id, map[string]any{"status": string(kind)})
	writeJSON(w, http.StatusOK, sessionView(sess))
}
