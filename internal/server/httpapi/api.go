// Package httpapi exposes the session services over HTTP. Handlers decode the
// request, call one service method and map the error taxonomy onto status
// codes; they hold no state of their own.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tmssession/internal/logging"
	"github.com/dmitrijs2005/tmssession/internal/server/metrics"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/dmitrijs2005/tmssession/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type SessionAPI interface {
	List(ctx context.Context) ([]*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Create(ctx context.Context, in services.CreateSessionInput) (*models.Session, error)
	Update(ctx context.Context, id string, upd models.SessionUpdate) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	Logs(ctx context.Context, id string, limit int) ([]*models.SessionLog, error)
}

type BundleAPI interface {
	RequestUpload(ctx context.Context, sessionID string, req services.UploadRequest) (*models.SignedURL, error)
	CompleteUpload(ctx context.Context, sessionID string, req services.CompleteUploadRequest) (*models.Session, error)
	RequestDownload(ctx context.Context, sessionID string, ttlSeconds *int) (*models.SignedURL, error)
	RecordEvent(ctx context.Context, sessionID, level, message string, fields map[string]any) error
	SetFailureStatus(ctx context.Context, sessionID string, kind models.SessionStatus, detail string) (*models.Session, error)
}

type SharedAPI interface {
	GetSharedSession(ctx context.Context, userID string) (*models.SessionView, error)
	PromoteToReady(ctx context.Context, sessionID string, actor models.Actor) (*models.SessionView, error)
	Stats(ctx context.Context) (*models.SharedSessionStats, error)
}

type DomainAPI interface {
	List(ctx context.Context) ([]*models.Domain, error)
	Create(ctx context.Context, label, baseURL string) (*models.Domain, error)
	Delete(ctx context.Context, id string) error
}

// Auditor receives administrative actions. Implementations must not block.
type Auditor interface {
	Record(ctx context.Context, e models.AuditEntry)
}

type Dependencies struct {
	Sessions SessionAPI
	Bundles  BundleAPI
	Shared   SharedAPI
	Domains  DomainAPI
	Audit    Auditor

	JWTSecret []byte
	// Ready reports whether the backing store is reachable.
	Ready func(ctx context.Context) error

	Log     logging.Logger
	Metrics *metrics.Metrics
}

type server struct {
	sessions SessionAPI
	bundles  BundleAPI
	shared   SharedAPI
	domains  DomainAPI
	audit    Auditor
	secret   []byte
	ready    func(ctx context.Context) error
	log      logging.Logger
	metrics  *metrics.Metrics
}

func New(dep Dependencies) http.Handler {
	log := dep.Log
	if log == nil {
		log = logging.Nop()
	}
	api := &server{
		sessions: dep.Sessions,
		bundles:  dep.Bundles,
		shared:   dep.Shared,
		domains:  dep.Domains,
		audit:    dep.Audit,
		secret:   dep.JWTSecret,
		ready:    dep.Ready,
		log:      log.With("module", "httpapi"),
		metrics:  dep.Metrics,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(api.instrument)

	apiRouter := chi.NewRouter()
	apiRouter.Use(api.authenticate)

	apiRouter.Route("/sessions", func(r chi.Router) {
		r.Get("/my-sessions", api.handleMySessions)
		r.Get("/shared-stats", api.handleSharedStats)
		r.With(requireRole(models.RoleSuperAdmin)).Post("/{id}/mark-ready", api.handleMarkReady)

		r.Post("/{id}/request-download", api.handleRequestDownload)
		r.Post("/{id}/request-upload", api.handleRequestUpload)
		r.Post("/{id}/complete-upload", api.handleCompleteUpload)
		r.Post("/{id}/events", api.handleRecordEvent)
		r.Post("/{id}/failure", api.handleRecordFailure)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(models.RoleSupport))
			r.Get("/", api.handleListSessions)
			r.Post("/", api.handleCreateSession)
			r.Get("/{id}", api.handleGetSession)
			r.Patch("/{id}", api.handleUpdateSession)
			r.Delete("/{id}", api.handleDeleteSession)
			r.Get("/{id}/logs", api.handleSessionLogs)
		})
	})

	apiRouter.Route("/domains", func(r chi.Router) {
		r.Use(requireRole(models.RoleSupport))
		r.Get("/", api.handleListDomains)
		r.Post("/", api.handleCreateDomain)
		r.Delete("/{id}", api.handleDeleteDomain)
	})

	r.Mount("/api/v1", apiRouter)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/readyz", api.handleReadyz)
	r.Handle("/metrics", dep.Metrics.Handler())

	return r
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.log.Warn(r.Context(), "readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db_unavailable\n"))
			return
		}
	}
	_, _ = w.Write([]byte("ok\n"))
}

func (s *server) record(r *http.Request, action, targetType, targetID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor, _ := actorFrom(r.Context())
	s.audit.Record(r.Context(), models.AuditEntry{
		ActorID:    actor.ID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   meta,
	})
}
