package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/dbx"
	"github.com/dmitrijs2005/tmssession/internal/logging"
	"github.com/dmitrijs2005/tmssession/internal/server/metrics"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	sharedDescription = "Master Sacred Cube TMS session shared among all users"
	noProxyLabel      = "No proxy"

	DefaultSharedDomainLabel   = "Sacred Cube TMS"
	DefaultSharedDomainBaseURL = "https://tms.sacredcube.co/loadboard/turbo"
)

type SharedConfig struct {
	DomainLabel   string
	DomainBaseURL string
	// MaxAttempts bounds find-or-create rounds lost to concurrent creators.
	MaxAttempts int
}

// SharedSessionService keeps exactly one canonical shared session, identified
// by its reserved name, and hands it to every consumer.
type SharedSessionService struct {
	base
	cfg SharedConfig
}

func NewSharedSessionService(db *sql.DB, rm repomanager.RepositoryManager, cfg SharedConfig,
	log logging.Logger, m *metrics.Metrics) *SharedSessionService {
	if cfg.DomainLabel == "" {
		cfg.DomainLabel = DefaultSharedDomainLabel
	}
	if cfg.DomainBaseURL == "" {
		cfg.DomainBaseURL = DefaultSharedDomainBaseURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &SharedSessionService{base: newBase(db, rm, log, m, "shared"), cfg: cfg}
}

// GetSharedSession returns the canonical session annotated with userID. The
// annotation lives only on the returned view.
func (s *SharedSessionService) GetSharedSession(ctx context.Context, userID string) (_ *models.SessionView, err error) {
	ctx, span := startSpan(ctx, "SharedSessionService.GetSharedSession", "")
	defer func() { endSpan(span, err) }()

	sess, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Debug(ctx, "user accessing shared session", "user_id", userID, "session_id", sess.ID)
	return models.NewSessionView(sess, userID), nil
}

// ensure finds the canonical record or creates it. Losing a creation race,
// either on the unique name or as a serialization failure, turns into another
// lookup instead of an error.
func (s *SharedSessionService) ensure(ctx context.Context) (*models.Session, error) {
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		sess, err := s.repomanager.Sessions(s.db).GetByName(ctx, common.SharedSessionName)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}

		created, err := s.create(ctx)
		if err == nil {
			return created, nil
		}
		if errors.Is(err, common.ErrConflict) || dbx.IsSerializationFailure(err) {
			s.metrics.IncSharedCreateRetry()
			s.log.Debug(ctx, "shared session created concurrently, retrying lookup", "attempt", attempt)
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: shared session not resolved after %d attempts", common.ErrorInternal, s.cfg.MaxAttempts)
}

func (s *SharedSessionService) create(ctx context.Context) (*models.Session, error) {
	var (
		sess    *models.Session
		created bool
	)

	err := dbx.WithTx(ctx, s.db, dbx.Serializable, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Sessions(tx)

		existing, err := repo.GetByName(ctx, common.SharedSessionName)
		if err == nil {
			sess = existing
			return nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		now := s.now()
		domain, err := s.repomanager.Domains(tx).EnsureByBaseURL(ctx, &models.Domain{
			ID:        uuid.NewString(),
			Label:     s.cfg.DomainLabel,
			BaseURL:   s.cfg.DomainBaseURL,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		var proxyID *string
		proxy, err := s.repomanager.Proxies(tx).FirstActive(ctx)
		switch {
		case err == nil:
			proxyID = &proxy.ID
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}

		notes := sharedDescription + " - Needs super admin setup"
		sess = &models.Session{
			ID:        uuid.NewString(),
			Name:      common.SharedSessionName,
			Status:    models.StatusPending,
			DomainID:  &domain.ID,
			ProxyID:   proxyID,
			Notes:     &notes,
			CreatedAt: now,
		}
		if err := repo.Create(ctx, sess); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.log.Info(ctx, "created shared session", "session_id", sess.ID, "status", string(sess.Status))
		s.appendLog(ctx, sess.ID, models.LogInfo, "Shared session created", map[string]any{"needsSetup": true})
	}
	return sess, nil
}

// PromoteToReady lets a super admin declare the canonical session usable. Any
// other target is rejected, as is a session without a complete bundle.
func (s *SharedSessionService) PromoteToReady(ctx context.Context, sessionID string, actor models.Actor) (_ *models.SessionView, err error) {
	ctx, span := startSpan(ctx, "SharedSessionService.PromoteToReady", sessionID)
	defer func() { endSpan(span, err) }()

	if actor.Role != models.RoleSuperAdmin {
		return nil, fmt.Errorf("%w: only a super admin can mark the shared session ready", common.ErrForbidden)
	}

	repo := s.repomanager.Sessions(s.db)
	sess, err := repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Name != common.SharedSessionName {
		return nil, common.ErrNotSharedSession
	}

	notes := sharedDescription + " - Set up by super admin"
	promoted, err := repo.Promote(ctx, sessionID, &notes, s.now())
	if err != nil {
		if errors.Is(err, common.ErrNoRowsUpdated) {
			return nil, explainGuardMiss(ctx, repo, sessionID, true, true)
		}
		return nil, err
	}

	s.metrics.IncStatusTransition(string(models.StatusReady))
	s.log.Info(ctx, "shared session marked ready", "session_id", sessionID, "actor_id", actor.ID)
	s.appendLog(ctx, sessionID, models.LogInfo, "Shared session marked READY", map[string]any{"actorId": actor.ID})

	return models.NewSessionView(promoted, actor.ID), nil
}

// Stats reports the canonical session's state, creating it if needed.
func (s *SharedSessionService) Stats(ctx context.Context) (_ *models.SharedSessionStats, err error) {
	ctx, span := startSpan(ctx, "SharedSessionService.Stats", "")
	defer func() { endSpan(span, err) }()

	sess, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}

	total, err := s.repomanager.Users(s.db).CountActive(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.SharedSessionStats{
		SessionID:        sess.ID,
		SessionName:      sess.Name,
		Status:           sess.Status,
		NeedsSetup:       sess.Status == models.StatusPending,
		TotalActiveUsers: total,
		SessionDomain:    s.cfg.DomainBaseURL,
		SessionProxy:     noProxyLabel,
		LastLoginAt:      sess.LastLoginAt,
	}

	if sess.DomainID != nil {
		d, err := s.repomanager.Domains(s.db).GetByID(ctx, *sess.DomainID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		if d != nil {
			stats.SessionDomain = d.BaseURL
		}
	}
	if sess.ProxyID != nil {
		p, err := s.repomanager.Proxies(s.db).GetByID(ctx, *sess.ProxyID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		if p != nil {
			stats.SessionProxy = p.Name
		}
	}

	return stats, nil
}
