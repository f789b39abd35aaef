package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/logging"
	"github.com/dmitrijs2005/tmssession/internal/server/artifacts"
	"github.com/dmitrijs2005/tmssession/internal/server/metrics"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/repomanager"
)

// BundleService drives a session through the bundle upload/download protocol.
//
//	requestUpload   any non-DISABLED  -> UPLOADING (fresh bundle key)
//	completeUpload  bundle key set    -> READY     (version + 1)
//	requestDownload bundle key set    -> unchanged
//	recordEvent     session exists    -> unchanged
//	setFailureStatus non-DISABLED     -> AUTH_ERROR | PROXY_ERROR
type BundleService struct {
	base
	store      artifacts.Store
	defaultTTL time.Duration
}

func NewBundleService(db *sql.DB, rm repomanager.RepositoryManager, store artifacts.Store,
	defaultTTL time.Duration, log logging.Logger, m *metrics.Metrics) *BundleService {
	if defaultTTL == 0 {
		defaultTTL = artifacts.DefaultTTL
	}
	return &BundleService{
		base:       newBase(db, rm, log, m, "bundles"),
		store:      store,
		defaultTTL: defaultTTL,
	}
}

type UploadRequest struct {
	ContentType string
	TTLSeconds  *int
}

type CompleteUploadRequest struct {
	Checksum   *string
	SizeBytes  *int64
	Encryption *string
}

// RequestUpload mints a new bundle key, signs a PUT for it and records the
// key on the session. The URL is signed before the record is touched, so a
// misconfigured store leaves the session unchanged.
func (s *BundleService) RequestUpload(ctx context.Context, sessionID string, req UploadRequest) (_ *models.SignedURL, err error) {
	ctx, span := startSpan(ctx, "BundleService.RequestUpload", sessionID)
	defer func() { endSpan(span, err) }()

	ttl, err := artifacts.ResolveTTL(req.TTLSeconds, s.defaultTTL)
	if err != nil {
		return nil, err
	}
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = common.ContentTypeZip
	}

	repo := s.repomanager.Sessions(s.db)
	sess, err := repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.StatusDisabled {
		return nil, common.ErrSessionDisabled
	}

	now := s.now()
	key := artifacts.NewBundleKey(sess.ID, contentType, now)

	url, err := s.store.PresignUpload(ctx, key, contentType, ttl)
	if err != nil {
		return nil, err
	}

	if _, err := repo.BeginUpload(ctx, sess.ID, key, now); err != nil {
		if errors.Is(err, common.ErrNoRowsUpdated) {
			return nil, explainGuardMiss(ctx, repo, sess.ID, false, false)
		}
		return nil, err
	}

	ttlSeconds := int(ttl.Seconds())
	s.metrics.IncSignedURL("upload")
	s.metrics.IncStatusTransition(string(models.StatusUploading))
	s.log.Info(ctx, "generated bundle upload url", "session_id", sess.ID, "bundle_key", key, "ttl_seconds", ttlSeconds)
	s.appendLog(ctx, sess.ID, models.LogInfo, "Generated bundle upload URL", map[string]any{
		"expiresInSeconds": ttlSeconds,
		"bundleKey":        key,
		"contentType":      contentType,
	})

	return &models.SignedURL{URL: url, BundleKey: key, TTLSeconds: ttlSeconds}, nil
}

// CompleteUpload marks the pending bundle as the session's current one. It is
// not idempotent: every call bumps the bundle version.
func (s *BundleService) CompleteUpload(ctx context.Context, sessionID string, req CompleteUploadRequest) (_ *models.Session, err error) {
	ctx, span := startSpan(ctx, "BundleService.CompleteUpload", sessionID)
	defer func() { endSpan(span, err) }()

	checksum := trimmedOrNil(req.Checksum)
	encryption := trimmedOrNil(req.Encryption)
	if req.SizeBytes != nil && *req.SizeBytes < 0 {
		return nil, fmt.Errorf("%w: sizeBytes cannot be negative", common.ErrValidation)
	}

	repo := s.repomanager.Sessions(s.db)
	sess, err := repo.CompleteUpload(ctx, sessionID, checksum, encryption, s.now())
	if err != nil {
		if errors.Is(err, common.ErrNoRowsUpdated) {
			return nil, explainGuardMiss(ctx, repo, sessionID, true, checksum == nil)
		}
		return nil, err
	}

	var size int64
	if req.SizeBytes != nil {
		size = *req.SizeBytes
	}
	s.metrics.ObserveUploadCompleted(size)
	s.metrics.IncStatusTransition(string(models.StatusReady))
	s.log.Info(ctx, "session bundle upload completed",
		"session_id", sessionID, "bundle_version", sess.BundleVersion, "size_bytes", size)

	fields := map[string]any{
		"checksum":      common.StringValue(sess.BundleChecksum),
		"bundleVersion": sess.BundleVersion,
	}
	if req.SizeBytes != nil {
		fields["fileSizeBytes"] = *req.SizeBytes
	}
	if encryption != nil {
		fields["encryption"] = *encryption
	}
	s.appendLog(ctx, sessionID, models.LogInfo, "Session bundle upload completed", fields)

	return sess, nil
}

// RequestDownload signs a GET for the session's current bundle.
func (s *BundleService) RequestDownload(ctx context.Context, sessionID string, ttlSeconds *int) (_ *models.SignedURL, err error) {
	ctx, span := startSpan(ctx, "BundleService.RequestDownload", sessionID)
	defer func() { endSpan(span, err) }()

	ttl, err := artifacts.ResolveTTL(ttlSeconds, s.defaultTTL)
	if err != nil {
		return nil, err
	}

	sess, err := s.repomanager.Sessions(s.db).GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.HasBundle() {
		return nil, common.ErrBundleNotSetUp
	}
	if sess.Status == models.StatusDisabled {
		return nil, common.ErrSessionDisabled
	}

	key := *sess.BundleKey
	url, err := s.store.PresignDownload(ctx, key, ttl)
	if err != nil {
		return nil, err
	}

	secs := int(ttl.Seconds())
	s.metrics.IncSignedURL("download")
	s.log.Info(ctx, "generated bundle download url", "session_id", sessionID, "bundle_key", key, "ttl_seconds", secs)
	s.appendLog(ctx, sessionID, models.LogInfo, "Generated bundle download URL", map[string]any{
		"expiresInSeconds": secs,
		"bundleKey":        key,
	})

	return &models.SignedURL{URL: url, BundleKey: key, TTLSeconds: secs}, nil
}

// RecordEvent appends a worker-supplied log row. Unlike the transition logs,
// the append is the whole operation, so its failure is returned.
func (s *BundleService) RecordEvent(ctx context.Context, sessionID, level, message string, fields map[string]any) (err error) {
	ctx, span := startSpan(ctx, "BundleService.RecordEvent", sessionID)
	defer func() { endSpan(span, err) }()

	lvl, err := models.ParseLogLevel(level)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Errorf("%w: event message is required", common.ErrValidation)
	}

	if _, err := s.repomanager.Sessions(s.db).GetByID(ctx, sessionID); err != nil {
		return err
	}
	if err := s.writeLog(ctx, sessionID, lvl, message, fields); err != nil {
		return err
	}

	s.metrics.IncSessionEvent(string(lvl))
	return nil
}

// SetFailureStatus is the explicit entry point for the externally driven
// failure edges. kind must be AUTH_ERROR or PROXY_ERROR.
func (s *BundleService) SetFailureStatus(ctx context.Context, sessionID string, kind models.SessionStatus, detail string) (_ *models.Session, err error) {
	ctx, span := startSpan(ctx, "BundleService.SetFailureStatus", sessionID)
	defer func() { endSpan(span, err) }()

	if !kind.IsFailure() {
		return nil, fmt.Errorf("%w: failure kind must be AUTH_ERROR or PROXY_ERROR, got %q", common.ErrValidation, kind)
	}

	repo := s.repomanager.Sessions(s.db)
	sess, err := repo.SetStatus(ctx, sessionID, kind, s.now())
	if err != nil {
		if errors.Is(err, common.ErrNoRowsUpdated) {
			return nil, explainGuardMiss(ctx, repo, sessionID, false, false)
		}
		return nil, err
	}

	s.metrics.IncStatusTransition(string(kind))
	s.log.Warn(ctx, "session marked failed", "session_id", sessionID, "status", string(kind), "detail", detail)
	s.appendLog(ctx, sessionID, models.LogError, "Session marked "+string(kind), map[string]any{"detail": detail})

	return sess, nil
}

func trimmedOrNil(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
