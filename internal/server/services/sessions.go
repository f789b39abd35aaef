package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/logging"
	"github.com/dmitrijs2005/tmssession/internal/server/metrics"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// SessionService is the administrative CRUD surface over session records.
type SessionService struct {
	base
}

func NewSessionService(db *sql.DB, rm repomanager.RepositoryManager, log logging.Logger, m *metrics.Metrics) *SessionService {
	return &SessionService{base: newBase(db, rm, log, m, "sessions")}
}

type CreateSessionInput struct {
	Name           string
	DomainID       string
	ProxyID        string
	AssignedUserID string
	Notes          string
}

func (s *SessionService) List(ctx context.Context) ([]*models.Session, error) {
	return s.repomanager.Sessions(s.db).List(ctx)
}

func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.repomanager.Sessions(s.db).GetByID(ctx, id)
}

func isReservedName(name string) bool {
	return strings.EqualFold(name, common.SharedSessionName)
}

// Create inserts a PENDING session. Names are unique; referenced domain, proxy
// and user must exist, and an assigned user must be active. The shared session
// name is reserved for the coordinator.
func (s *SessionService) Create(ctx context.Context, in CreateSessionInput) (*models.Session, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: session name is required", common.ErrValidation)
	}
	if isReservedName(name) {
		return nil, common.ErrReservedName
	}

	if in.AssignedUserID != "" {
		u, err := s.repomanager.Users(s.db).GetByID(ctx, in.AssignedUserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, fmt.Errorf("%w: assigned user %s", common.ErrorNotFound, in.AssignedUserID)
			}
			return nil, err
		}
		if !u.Active {
			return nil, fmt.Errorf("%w: assigned user %s is inactive", common.ErrValidation, u.ID)
		}
	}

	sess := &models.Session{
		ID:             uuid.NewString(),
		Name:           name,
		Status:         models.StatusPending,
		DomainID:       common.StringPtr(in.DomainID),
		ProxyID:        common.StringPtr(in.ProxyID),
		AssignedUserID: common.StringPtr(in.AssignedUserID),
		Notes:          common.StringPtr(in.Notes),
		CreatedAt:      s.now(),
	}
	if err := s.repomanager.Sessions(s.db).Create(ctx, sess); err != nil {
		return nil, err
	}

	s.appendLog(ctx, sess.ID, models.LogInfo, "Session created", map[string]any{"name": name})
	return sess, nil
}

// Update applies an administrative change. Status changes obey the same
// guards as the bundle transitions: READY needs a complete bundle pointer and
// DISABLED records accept no further change. No session can be renamed to or
// away from the shared session name.
func (s *SessionService) Update(ctx context.Context, id string, upd models.SessionUpdate) (*models.Session, error) {
	repo := s.repomanager.Sessions(s.db)

	if upd.Name != nil {
		n := strings.TrimSpace(*upd.Name)
		if n == "" {
			return nil, fmt.Errorf("%w: session name cannot be empty", common.ErrValidation)
		}
		current, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		switch {
		case n == current.Name:
			upd.Name = nil
		case isReservedName(n), current.Name == common.SharedSessionName:
			return nil, common.ErrReservedName
		default:
			upd.Name = &n
		}
	}

	updated, err := repo.Update(ctx, id, upd, s.now())
	if err != nil {
		if errors.Is(err, common.ErrNoRowsUpdated) {
			toReady := upd.Status != nil && *upd.Status == models.StatusReady
			return nil, explainGuardMiss(ctx, repo, id, toReady, toReady)
		}
		return nil, err
	}

	if upd.Status != nil {
		s.metrics.IncStatusTransition(string(updated.Status))
		s.appendLog(ctx, id, models.LogInfo, "Session status updated", map[string]any{"status": string(updated.Status)})
	}
	return updated, nil
}

func (s *SessionService) Delete(ctx context.Context, id string) error {
	return s.repomanager.Sessions(s.db).Delete(ctx, id)
}

// Logs returns the newest log rows of a session.
func (s *SessionService) Logs(ctx context.Context, id string, limit int) ([]*models.SessionLog, error) {
	if _, err := s.repomanager.Sessions(s.db).GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repomanager.SessionLogs(s.db).ListBySession(ctx, id, limit)
}
