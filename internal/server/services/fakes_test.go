package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/dbx"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/domains"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/proxies"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/sessionlogs"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

var (
	errBoom = errors.New("boom")
	t0      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

// memStore is an in-memory stand-in for the database that applies the same
// guards as the SQL repositories.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	logs     []*models.SessionLog
	domains  map[string]*models.Domain
	proxies  []*models.Proxy
	users    map[string]*models.User
	active   int64

	appendErr error
	getErr    error
	createErr error

	getByNameCalls  int
	beforeGetByName func(call int)
}

func newMemStore() *memStore {
	return &memStore{
		sessions: map[string]*models.Session{},
		domains:  map[string]*models.Domain{},
		users:    map[string]*models.User{},
	}
}

func clone(s *models.Session) *models.Session {
	c := *s
	return &c
}

func (m *memStore) put(s *models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = clone(s)
}

func (m *memStore) get(id string) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return clone(s)
	}
	return nil
}

func (m *memStore) countByName(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.Name == name {
			n++
		}
	}
	return n
}

func (m *memStore) logMessages(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, l := range m.logs {
		if l.SessionID == sessionID {
			out = append(out, l.Message)
		}
	}
	return out
}

type memSessions struct{ m *memStore }

func (r memSessions) Create(ctx context.Context, s *models.Session) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.createErr != nil {
		return r.m.createErr
	}
	for _, e := range r.m.sessions {
		if e.Name == s.Name {
			return common.ErrDuplicateName
		}
	}
	if s.DomainID != nil {
		if _, ok := r.m.domains[*s.DomainID]; !ok {
			return common.ErrorNotFound
		}
	}
	s.UpdatedAt = s.CreatedAt
	r.m.sessions[s.ID] = clone(s)
	return nil
}

func (r memSessions) GetByID(ctx context.Context, id string) (*models.Session, error) {
	if r.m.getErr != nil {
		return nil, r.m.getErr
	}
	if s := r.m.get(id); s != nil {
		return s, nil
	}
	return nil, common.ErrorNotFound
}

func (r memSessions) GetByName(ctx context.Context, name string) (*models.Session, error) {
	r.m.mu.Lock()
	r.m.getByNameCalls++
	call := r.m.getByNameCalls
	hook := r.m.beforeGetByName
	r.m.mu.Unlock()
	if hook != nil {
		hook(call)
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, s := range r.m.sessions {
		if s.Name == name {
			return clone(s), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memSessions) List(ctx context.Context) ([]*models.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Session
	for _, s := range r.m.sessions {
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// guarded applies fn to the stored row when ok(row) holds.
func (r memSessions) guarded(id string, ok func(*models.Session) bool, fn func(*models.Session)) (*models.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, found := r.m.sessions[id]
	if !found || s.Status == models.StatusDisabled || !ok(s) {
		return nil, common.ErrNoRowsUpdated
	}
	fn(s)
	return clone(s), nil
}

func always(*models.Session) bool { return true }

func complete(s *models.Session) bool { return s.BundleKey != nil && s.BundleChecksum != nil }

func (r memSessions) Update(ctx context.Context, id string, upd models.SessionUpdate, now time.Time) (*models.Session, error) {
	guard := always
	if upd.Status != nil && *upd.Status == models.StatusReady {
		guard = complete
	}
	if upd.Name != nil {
		r.m.mu.Lock()
		for _, e := range r.m.sessions {
			if e.Name == *upd.Name && e.ID != id {
				r.m.mu.Unlock()
				return nil, common.ErrDuplicateName
			}
		}
		r.m.mu.Unlock()
	}
	return r.guarded(id, guard, func(s *models.Session) {
		if upd.Name != nil {
			s.Name = *upd.Name
		}
		if upd.Status != nil {
			s.Status = *upd.Status
		}
		if upd.Notes != nil {
			s.Notes = common.StringPtr(*upd.Notes)
		}
		s.UpdatedAt = now
	})
}

func (r memSessions) Delete(ctx context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.sessions[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.m.sessions, id)
	return nil
}

func (r memSessions) CountByDomain(ctx context.Context, domainID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for _, s := range r.m.sessions {
		if s.DomainID != nil && *s.DomainID == domainID {
			n++
		}
	}
	return n, nil
}

func (r memSessions) BeginUpload(ctx context.Context, id, key string, now time.Time) (*models.Session, error) {
	return r.guarded(id, always, func(s *models.Session) {
		s.BundleKey = &key
		s.Status = models.StatusUploading
		s.UpdatedAt = now
	})
}

func (r memSessions) CompleteUpload(ctx context.Context, id string, checksum, encryption *string, now time.Time) (*models.Session, error) {
	ok := func(s *models.Session) bool {
		return s.BundleKey != nil && (checksum != nil || s.BundleChecksum != nil)
	}
	return r.guarded(id, ok, func(s *models.Session) {
		if checksum != nil {
			s.BundleChecksum = checksum
		}
		if encryption != nil {
			s.BundleEncryption = encryption
		}
		s.BundleVersion++
		s.Status = models.StatusReady
		s.LastSyncedAt = &now
		s.UpdatedAt = now
	})
}

func (r memSessions) Promote(ctx context.Context, id string, notes *string, now time.Time) (*models.Session, error) {
	return r.guarded(id, complete, func(s *models.Session) {
		s.Status = models.StatusReady
		if notes != nil {
			s.Notes = notes
		}
		s.LastLoginAt = &now
		s.UpdatedAt = now
	})
}

func (r memSessions) SetStatus(ctx context.Context, id string, status models.SessionStatus, now time.Time) (*models.Session, error) {
	guard := always
	if status == models.StatusReady {
		guard = complete
	}
	return r.guarded(id, guard, func(s *models.Session) {
		s.Status = status
		s.UpdatedAt = now
	})
}

type memLogs struct{ m *memStore }

func (r memLogs) Append(ctx context.Context, l *models.SessionLog) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.appendErr != nil {
		return r.m.appendErr
	}
	r.m.logs = append(r.m.logs, l)
	return nil
}

func (r memLogs) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.SessionLog, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.SessionLog
	for i := len(r.m.logs) - 1; i >= 0; i-- {
		if r.m.logs[i].SessionID == sessionID {
			out = append(out, r.m.logs[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memDomains struct{ m *memStore }

func (r memDomains) Create(ctx context.Context, d *models.Domain) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, e := range r.m.domains {
		if e.BaseURL == d.BaseURL {
			return common.ErrConflict
		}
	}
	r.m.domains[d.ID] = d
	return nil
}

func (r memDomains) GetByID(ctx context.Context, id string) (*models.Domain, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if d, ok := r.m.domains[id]; ok {
		return d, nil
	}
	return nil, common.ErrorNotFound
}

func (r memDomains) EnsureByBaseURL(ctx context.Context, d *models.Domain) (*models.Domain, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, e := range r.m.domains {
		if e.BaseURL == d.BaseURL {
			return e, nil
		}
	}
	r.m.domains[d.ID] = d
	return d, nil
}

func (r memDomains) List(ctx context.Context) ([]*models.Domain, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Domain
	for _, d := range r.m.domains {
		out = append(out, d)
	}
	return out, nil
}

func (r memDomains) Delete(ctx context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.domains[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.m.domains, id)
	return nil
}

type memProxies struct{ m *memStore }

func (r memProxies) Create(ctx context.Context, p *models.Proxy) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.proxies = append(r.m.proxies, p)
	return nil
}

func (r memProxies) GetByID(ctx context.Context, id string) (*models.Proxy, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, p := range r.m.proxies {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memProxies) FirstActive(ctx context.Context) (*models.Proxy, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, p := range r.m.proxies {
		if p.Active {
			return p, nil
		}
	}
	return nil, common.ErrorNotFound
}

type memUsers struct {
	users.Repository
	m *memStore
}

func (r memUsers) CountActive(ctx context.Context) (int64, error) { return r.m.active, nil }

func (r memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

// fakeRepoManager hands out the same in-memory repositories for the pool and
// for transactions.
type fakeRepoManager struct {
	repomanager.RepositoryManager
	m *memStore
}

func (f *fakeRepoManager) Sessions(dbx.DBTX) sessions.Repository       { return memSessions{f.m} }
func (f *fakeRepoManager) SessionLogs(dbx.DBTX) sessionlogs.Repository { return memLogs{f.m} }
func (f *fakeRepoManager) Domains(dbx.DBTX) domains.Repository         { return memDomains{f.m} }
func (f *fakeRepoManager) Proxies(dbx.DBTX) proxies.Repository         { return memProxies{f.m} }
func (f *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return memUsers{m: f.m} }

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func fixedClock() func() time.Time {
	var mu sync.Mutex
	now := t0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

// fakeStore is an artifacts.Store that records what it signed.
type fakeStore struct {
	mu        sync.Mutex
	baseURL   string
	err       error
	uploads   []string
	downloads []string
	lastTTL   time.Duration
	lastCT    string
}

func (f *fakeStore) PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.uploads = append(f.uploads, key)
	f.lastTTL, f.lastCT = ttl, contentType
	return f.baseURL + "/" + key + "?X-Amz-Signature=put", nil
}

func (f *fakeStore) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.downloads = append(f.downloads, key)
	f.lastTTL = ttl
	return f.baseURL + "/" + key + "?X-Amz-Signature=get", nil
}
