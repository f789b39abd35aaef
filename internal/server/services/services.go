// Package services contains the server-side business logic: the session
// bundle state machine, the shared session coordinator and the CRUD services
// behind the admin API.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/logging"
	"github.com/dmitrijs2005/tmssession/internal/server/metrics"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/sessions"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/dmitrijs2005/tmssession/internal/server/services")

// base holds what every service needs. now is swapped in tests.
type base struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func newBase(db *sql.DB, rm repomanager.RepositoryManager, log logging.Logger, m *metrics.Metrics, module string) base {
	if log == nil {
		log = logging.Nop()
	}
	return base{
		db:          db,
		repomanager: rm,
		log:         log.With("module", module),
		metrics:     m,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// appendLog writes a session log row. A failed append never fails the
// operation that triggered it; it is reported as a warning and counted.
func (b *base) appendLog(ctx context.Context, sessionID string, level models.LogLevel, msg string, fields map[string]any) {
	if err := b.writeLog(ctx, sessionID, level, msg, fields); err != nil {
		b.metrics.IncLogAppendFailure()
		b.log.Warn(ctx, "session log append failed",
			"session_id", sessionID, "log_message", msg, "error", err)
	}
}

func (b *base) writeLog(ctx context.Context, sessionID string, level models.LogLevel, msg string, fields map[string]any) error {
	now := b.now()
	entry := &models.SessionLog{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		SessionID: sessionID,
		Level:     level,
		Message:   msg,
		Context:   fields,
		CreatedAt: now,
	}
	return b.repomanager.SessionLogs(b.db).Append(ctx, entry)
}

// explainGuardMiss reloads a session after a guarded UPDATE matched no row and
// maps what it finds to the error the caller should see.
func explainGuardMiss(ctx context.Context, repo sessions.Repository, id string, needBundle, needChecksum bool) error {
	s, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case s.Status == models.StatusDisabled:
		return common.ErrSessionDisabled
	case needBundle && !s.HasBundle():
		return common.ErrBundleNotSetUp
	case needChecksum && (s.BundleChecksum == nil || *s.BundleChecksum == ""):
		return common.ErrChecksumRequired
	}
	return fmt.Errorf("%w: session %s changed concurrently, retry", common.ErrConflict, id)
}

func startSpan(ctx context.Context, name, sessionID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	if sessionID != "" {
		span.SetAttributes(attribute.String("tms.session_id", sessionID))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
