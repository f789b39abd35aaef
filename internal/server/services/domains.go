package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/dbx"
	"github.com/dmitrijs2005/tmssession/internal/logging"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

type DomainService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewDomainService(db *sql.DB, rm repomanager.RepositoryManager, log logging.Logger) *DomainService {
	if log == nil {
		log = logging.Nop()
	}
	return &DomainService{db: db, repomanager: rm, log: log.With("module", "domains")}
}

func (s *DomainService) List(ctx context.Context) ([]*models.Domain, error) {
	return s.repomanager.Domains(s.db).List(ctx)
}

func (s *DomainService) Create(ctx context.Context, label, baseURL string) (*models.Domain, error) {
	label = strings.TrimSpace(label)
	baseURL = strings.TrimSpace(baseURL)
	if label == "" {
		return nil, fmt.Errorf("%w: domain label is required", common.ErrValidation)
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: domain base url must be an absolute http(s) url", common.ErrValidation)
	}

	d := &models.Domain{ID: uuid.NewString(), Label: label, BaseURL: baseURL, CreatedAt: time.Now().UTC()}
	if err := s.repomanager.Domains(s.db).Create(ctx, d); err != nil {
		return nil, err
	}
	s.log.Info(ctx, "domain created", "domain_id", d.ID, "base_url", baseURL)
	return d, nil
}

// Delete refuses to remove a domain any session still points at. The check
// and the delete share a transaction; the foreign key is the backstop.
func (s *DomainService) Delete(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		n, err := s.repomanager.Sessions(tx).CountByDomain(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w (%d sessions)", common.ErrDomainInUse, n)
		}
		return s.repomanager.Domains(tx).Delete(ctx, id)
	})
}
