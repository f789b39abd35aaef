package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/tmssession/internal/dbx"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/domains"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/proxies"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/sessionlogs"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either the pool or a
// transaction, so services can compose several stores inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Sessions(db dbx.DBTX) sessions.Repository
	SessionLogs(db dbx.DBTX) sessionlogs.Repository
	Domains(db dbx.DBTX) domains.Repository
	Proxies(db dbx.DBTX) proxies.Repository
	Users(db dbx.DBTX) users.Repository
}
