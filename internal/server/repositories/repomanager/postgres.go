// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/tmssession/internal/dbx"
	"github.com/dmitrijs2005/tmssession/internal/server/migrations"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/domains"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/proxies"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/sessionlogs"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager builds PostgreSQL-backed repositories.
type PostgresRepositoryManager struct{}

// Sessions returns a sessions.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Sessions(db dbx.DBTX) sessions.Repository {
	return sessions.NewPostgresRepository(db)
}

// SessionLogs returns a sessionlogs.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) SessionLogs(db dbx.DBTX) sessionlogs.Repository {
	return sessionlogs.NewPostgresRepository(db)
}

// Domains returns a domains.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Domains(db dbx.DBTX) domains.Repository {
	return domains.NewPostgresRepository(db)
}

// Proxies returns a proxies.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Proxies(db dbx.DBTX) proxies.Repository {
	return proxies.NewPostgresRepository(db)
}

// Users returns a users.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// NewPostgresRepositoryManager creates a new PostgresRepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
