package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/dbx"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
)

const columns = `id, name, status, bundle_key, bundle_checksum, bundle_encryption, bundle_version,
	domain_id, proxy_id, assigned_user_id, notes, created_at, updated_at, last_synced_at, last_login_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var (
		s                                    models.Session
		status                               string
		key, checksum, enc                   sql.NullString
		domainID, proxyID, assignedID, notes sql.NullString
		lastSynced, lastLogin                sql.NullTime
	)
	err := row.Scan(&s.ID, &s.Name, &status, &key, &checksum, &enc, &s.BundleVersion,
		&domainID, &proxyID, &assignedID, &notes, &s.CreatedAt, &s.UpdatedAt, &lastSynced, &lastLogin)
	if err != nil {
		return nil, err
	}

	s.Status = models.SessionStatus(status)
	s.BundleKey = nullString(key)
	s.BundleChecksum = nullString(checksum)
	s.BundleEncryption = nullString(enc)
	s.DomainID = nullString(domainID)
	s.ProxyID = nullString(proxyID)
	s.AssignedUserID = nullString(assignedID)
	s.Notes = nullString(notes)
	s.LastSyncedAt = nullTime(lastSynced)
	s.LastLoginAt = nullTime(lastLogin)
	return &s, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}

// Create inserts s. A taken name yields common.ErrDuplicateName; a dangling
// domain/proxy/user reference yields common.ErrorNotFound.
func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query := `INSERT INTO tms_sessions (id, name, status, domain_id, proxy_id, assigned_user_id, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Name, string(s.Status), s.DomainID, s.ProxyID, s.AssignedUserID, s.Notes, s.CreatedAt)
	switch {
	case err == nil:
		s.UpdatedAt = s.CreatedAt
		return nil
	case dbx.IsUniqueViolation(err):
		return common.ErrDuplicateName
	case dbx.IsForeignKeyViolation(err), dbx.IsInvalidText(err):
		return fmt.Errorf("%w: referenced domain, proxy or user does not exist", common.ErrorNotFound)
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidText(err) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	return r.getOne(ctx, `SELECT `+columns+` FROM tms_sessions WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.Session, error) {
	return r.getOne(ctx, `SELECT `+columns+` FROM tms_sessions WHERE name = $1`, name)
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM tms_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Update applies the non-nil fields of upd. A status change to READY is only
// applied when the bundle pointer is complete, and DISABLED rows are frozen.
func (r *PostgresRepository) Update(ctx context.Context, id string, upd models.SessionUpdate, now time.Time) (*models.Session, error) {
	sets := []string{"updated_at = $2"}
	args := []any{id, now}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}

	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.DomainID != nil {
		add("domain_id", common.StringPtr(*upd.DomainID))
	}
	if upd.ProxyID != nil {
		add("proxy_id", common.StringPtr(*upd.ProxyID))
	}
	if upd.AssignedUserID != nil {
		add("assigned_user_id", common.StringPtr(*upd.AssignedUserID))
	}
	if upd.Notes != nil {
		add("notes", common.StringPtr(*upd.Notes))
	}

	query := `UPDATE tms_sessions SET ` + strings.Join(sets, ", ") + `
		WHERE id = $1 AND status <> 'DISABLED'`
	if upd.Status != nil && *upd.Status == models.StatusReady {
		query += ` AND bundle_key IS NOT NULL AND bundle_checksum IS NOT NULL`
	}
	query += ` RETURNING ` + columns

	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, common.ErrNoRowsUpdated
	case dbx.IsUniqueViolation(err):
		return nil, common.ErrDuplicateName
	case dbx.IsForeignKeyViolation(err), dbx.IsInvalidText(err):
		return nil, fmt.Errorf("%w: referenced domain, proxy or user does not exist", common.ErrorNotFound)
	default:
		return nil, fmt.Errorf("db error: %w", err)
	}
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tms_sessions WHERE id = $1`, id)
	if dbx.IsInvalidText(err) {
		return common.ErrorNotFound
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) CountByDomain(ctx context.Context, domainID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tms_sessions WHERE domain_id = $1`, domainID).Scan(&n)
	if dbx.IsInvalidText(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) guarded(ctx context.Context, query string, args ...any) (*models.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNoRowsUpdated
	}
	if dbx.IsInvalidText(err) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// BeginUpload stores a freshly minted bundle key and moves the session to
// UPLOADING.
func (r *PostgresRepository) BeginUpload(ctx context.Context, id, bundleKey string, now time.Time) (*models.Session, error) {
	query := `UPDATE tms_sessions
		SET bundle_key = $2, status = 'UPLOADING', updated_at = $3
		WHERE id = $1 AND status <> 'DISABLED'
		RETURNING ` + columns
	return r.guarded(ctx, query, id, bundleKey, now)
}

// CompleteUpload bumps bundle_version and marks the session READY. A nil
// checksum or encryption keeps the stored value. The guard requires a bundle
// key and a resulting non-null checksum.
func (r *PostgresRepository) CompleteUpload(ctx context.Context, id string, checksum, encryption *string, now time.Time) (*models.Session, error) {
	query := `UPDATE tms_sessions
		SET status = 'READY',
			bundle_checksum = COALESCE($2, bundle_checksum),
			bundle_encryption = COALESCE($3, bundle_encryption),
			bundle_version = bundle_version + 1,
			last_synced_at = $4,
			updated_at = $4
		WHERE id = $1
			AND status <> 'DISABLED'
			AND bundle_key IS NOT NULL
			AND COALESCE($2, bundle_checksum) IS NOT NULL
		RETURNING ` + columns
	return r.guarded(ctx, query, id, checksum, encryption, now)
}

// Promote marks a session with a complete bundle READY and stamps
// last_login_at. A nil notes keeps the stored value.
func (r *PostgresRepository) Promote(ctx context.Context, id string, notes *string, now time.Time) (*models.Session, error) {
	query := `UPDATE tms_sessions
		SET status = 'READY',
			notes = COALESCE($2, notes),
			last_login_at = $3,
			updated_at = $3
		WHERE id = $1
			AND status <> 'DISABLED'
			AND bundle_key IS NOT NULL
			AND bundle_checksum IS NOT NULL
		RETURNING ` + columns
	return r.guarded(ctx, query, id, notes, now)
}

// SetStatus is the externally driven edge used for failure states and
// administrative disabling.
func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status models.SessionStatus, now time.Time) (*models.Session, error) {
	query := `UPDATE tms_sessions
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status <> 'DISABLED'`
	if status == models.StatusReady {
		query += ` AND bundle_key IS NOT NULL AND bundle_checksum IS NOT NULL`
	}
	query += ` RETURNING ` + columns
	return r.guarded(ctx, query, id, string(status), now)
}
