package sessions

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cols = []string{"id", "name", "status", "bundle_key", "bundle_checksum", "bundle_encryption", "bundle_version",
	"domain_id", "proxy_id", "assigned_user_id", "notes", "created_at", "updated_at", "last_synced_at", "last_login_at"}

var (
	t0      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	errBoom = errors.New("boom")
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresRepository(db), mock
}

func sessionRow(status string, key, checksum any, version int64) *sqlmock.Rows {
	return sqlmock.NewRows(cols).AddRow("s-1", "Shared TMS Session", status, key, checksum, nil, version,
		"d-1", nil, nil, nil, t0, t0, nil, nil)
}

func TestCreate(t *testing.T) {
	q := `(?s)^INSERT INTO tms_sessions \(id, name, status, domain_id, proxy_id, assigned_user_id, notes, created_at, updated_at\)`
	domain := "d-1"
	s := &models.Session{ID: "s-1", Name: "A", Status: models.StatusPending, DomainID: &domain, CreatedAt: t0}

	t.Run("ok", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WithArgs("s-1", "A", "PENDING", "d-1", nil, nil, nil, t0).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.Create(context.Background(), s))
		assert.Equal(t, t0, s.UpdatedAt)
	})

	t.Run("duplicate name", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WillReturnError(&pgconn.PgError{Code: "23505"})
		err := repo.Create(context.Background(), s)
		require.ErrorIs(t, err, common.ErrDuplicateName)
		require.ErrorIs(t, err, common.ErrConflict)
	})

	t.Run("dangling reference", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WillReturnError(&pgconn.PgError{Code: "23503"})
		require.ErrorIs(t, repo.Create(context.Background(), s), common.ErrorNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WillReturnError(errBoom)
		err := repo.Create(context.Background(), s)
		require.Error(t, err)
		assert.Regexp(t, regexp.MustCompile(`db error: .*boom`), err.Error())
	})
}

func TestGetByName(t *testing.T) {
	q := `(?s)^SELECT id, name, status, .* FROM tms_sessions WHERE name = \$1$`

	t.Run("found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("Shared TMS Session").
			WillReturnRows(sessionRow("PENDING", nil, nil, 0))

		s, err := repo.GetByName(context.Background(), "Shared TMS Session")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, s.Status)
		assert.Nil(t, s.BundleKey)
		require.NotNil(t, s.DomainID)
		assert.Equal(t, "d-1", *s.DomainID)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WillReturnError(sql.ErrNoRows)
		_, err := repo.GetByName(context.Background(), "x")
		require.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestMalformedIDIsNotFound(t *testing.T) {
	badUUID := &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}

	t.Run("get", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`FROM tms_sessions WHERE id = \$1`).WithArgs("not-a-uuid").WillReturnError(badUUID)
		_, err := repo.GetByID(context.Background(), "not-a-uuid")
		require.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`^DELETE FROM tms_sessions`).WithArgs("not-a-uuid").WillReturnError(badUUID)
		require.ErrorIs(t, repo.Delete(context.Background(), "not-a-uuid"), common.ErrorNotFound)
	})

	t.Run("create with malformed domain", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		domain := "nope"
		mock.ExpectExec(`^INSERT INTO tms_sessions`).WillReturnError(badUUID)
		err := repo.Create(context.Background(), &models.Session{ID: "s-1", Name: "A", Status: models.StatusPending, DomainID: &domain, CreatedAt: t0})
		require.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("count by domain", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tms_sessions`).WithArgs("nope").WillReturnError(badUUID)
		n, err := repo.CountByDomain(context.Background(), "nope")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestGetByID_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM tms_sessions WHERE id = \$1`).WillReturnError(errBoom)
	_, err := repo.GetByID(context.Background(), "s-1")
	require.ErrorIs(t, err, errBoom)
	require.NotErrorIs(t, err, common.ErrorNotFound)
}

func TestList(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	rows := sqlmock.NewRows(cols).
		AddRow("s-1", "A", "READY", "k1", "c1", "AES-256-GCM", 3, nil, nil, nil, nil, t0, t0, t0, nil).
		AddRow("s-2", "B", "PENDING", nil, nil, nil, 0, nil, nil, nil, "n", t0, t0, nil, nil)
	mock.ExpectQuery(`(?s)FROM tms_sessions ORDER BY created_at DESC`).WillReturnRows(rows)

	got, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].BundleVersion)
	assert.Equal(t, "AES-256-GCM", *got[0].BundleEncryption)
	require.NotNil(t, got[0].LastSyncedAt)
	assert.Equal(t, "n", *got[1].Notes)
	for _, s := range got {
		assert.True(t, s.ReadyInvariantHolds())
	}
}

func TestBeginUpload(t *testing.T) {
	q := `(?s)^UPDATE tms_sessions\s+SET bundle_key = \$2, status = 'UPLOADING', updated_at = \$3\s+WHERE id = \$1 AND status <> 'DISABLED'\s+RETURNING`

	t.Run("ok", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("s-1", "sessions/s-1/1-x.zip", t0).
			WillReturnRows(sessionRow("UPLOADING", "sessions/s-1/1-x.zip", nil, 0))

		s, err := repo.BeginUpload(context.Background(), "s-1", "sessions/s-1/1-x.zip", t0)
		require.NoError(t, err)
		assert.Equal(t, models.StatusUploading, s.Status)
		assert.Equal(t, "sessions/s-1/1-x.zip", *s.BundleKey)
	})

	t.Run("guard miss", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WillReturnRows(sqlmock.NewRows(cols))
		_, err := repo.BeginUpload(context.Background(), "s-1", "k", t0)
		require.ErrorIs(t, err, common.ErrNoRowsUpdated)
	})
}

func TestCompleteUpload(t *testing.T) {
	q := `(?s)^UPDATE tms_sessions\s+SET status = 'READY',\s+bundle_checksum = COALESCE\(\$2, bundle_checksum\),.*bundle_version = bundle_version \+ 1,.*AND bundle_key IS NOT NULL\s+AND COALESCE\(\$2, bundle_checksum\) IS NOT NULL`
	checksum := "abc123"

	t.Run("ok", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("s-1", "abc123", nil, t0).
			WillReturnRows(sessionRow("READY", "k", "abc123", 1))

		s, err := repo.CompleteUpload(context.Background(), "s-1", &checksum, nil, t0)
		require.NoError(t, err)
		assert.Equal(t, models.StatusReady, s.Status)
		assert.Equal(t, int64(1), s.BundleVersion)
		assert.True(t, s.ReadyInvariantHolds())
	})

	t.Run("guard miss", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WillReturnRows(sqlmock.NewRows(cols))
		_, err := repo.CompleteUpload(context.Background(), "s-1", &checksum, nil, t0)
		require.ErrorIs(t, err, common.ErrNoRowsUpdated)
	})
}

func TestPromote(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	notes := "set up"
	mock.ExpectQuery(`(?s)^UPDATE tms_sessions\s+SET status = 'READY',\s+notes = COALESCE\(\$2, notes\),\s+last_login_at = \$3`).
		WithArgs("s-1", "set up", t0).
		WillReturnRows(sessionRow("READY", "k", "c", 1))

	s, err := repo.Promote(context.Background(), "s-1", &notes, t0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, s.Status)
}

func TestSetStatus_ReadyAddsBundleGuard(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`(?s)SET status = \$2, updated_at = \$3\s+WHERE id = \$1 AND status <> 'DISABLED' AND bundle_key IS NOT NULL AND bundle_checksum IS NOT NULL RETURNING`).
		WithArgs("s-1", "READY", t0).
		WillReturnRows(sqlmock.NewRows(cols))

	_, err := repo.SetStatus(context.Background(), "s-1", models.StatusReady, t0)
	require.ErrorIs(t, err, common.ErrNoRowsUpdated)
}

func TestSetStatus_Failure(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`(?s)SET status = \$2, updated_at = \$3\s+WHERE id = \$1 AND status <> 'DISABLED' RETURNING`).
		WithArgs("s-1", "AUTH_ERROR", t0).
		WillReturnRows(sessionRow("AUTH_ERROR", "k", "c", 1))

	s, err := repo.SetStatus(context.Background(), "s-1", models.StatusAuthError, t0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAuthError, s.Status)
}

func TestUpdate(t *testing.T) {
	name := "Renamed"
	notes := ""
	status := models.StatusReady

	t.Run("builds set list", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`(?s)^UPDATE tms_sessions SET updated_at = \$2, name = \$3, status = \$4, notes = \$5\s+WHERE id = \$1 AND status <> 'DISABLED' AND bundle_key IS NOT NULL AND bundle_checksum IS NOT NULL RETURNING`).
			WithArgs("s-1", t0, "Renamed", "READY", nil).
			WillReturnRows(sessionRow("READY", "k", "c", 2))

		s, err := repo.Update(context.Background(), "s-1", models.SessionUpdate{Name: &name, Status: &status, Notes: &notes}, t0)
		require.NoError(t, err)
		assert.Equal(t, models.StatusReady, s.Status)
	})

	t.Run("duplicate name", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`UPDATE tms_sessions SET`).WillReturnError(&pgconn.PgError{Code: "23505"})
		_, err := repo.Update(context.Background(), "s-1", models.SessionUpdate{Name: &name}, t0)
		require.ErrorIs(t, err, common.ErrDuplicateName)
	})

	t.Run("guard miss", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`UPDATE tms_sessions SET`).WillReturnRows(sqlmock.NewRows(cols))
		_, err := repo.Update(context.Background(), "s-1", models.SessionUpdate{Name: &name}, t0)
		require.ErrorIs(t, err, common.ErrNoRowsUpdated)
	})
}

func TestDelete(t *testing.T) {
	q := `^DELETE FROM tms_sessions WHERE id = \$1$`

	t.Run("ok", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WithArgs("s-1").WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.Delete(context.Background(), "s-1"))
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WithArgs("s-1").WillReturnResult(sqlmock.NewResult(0, 0))
		require.ErrorIs(t, repo.Delete(context.Background(), "s-1"), common.ErrorNotFound)
	})

	t.Run("rows affected error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WithArgs("s-1").WillReturnResult(sqlmock.NewErrorResult(errBoom))
		err := repo.Delete(context.Background(), "s-1")
		require.ErrorIs(t, err, errBoom)
	})
}

func TestCountByDomain(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM tms_sessions WHERE domain_id = \$1$`).WithArgs("d-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	n, err := repo.CountByDomain(context.Background(), "d-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
