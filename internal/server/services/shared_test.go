package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSharedService(t *testing.T, m *memStore) (*SharedSessionService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	svc := NewSharedSessionService(db, &fakeRepoManager{m: m}, SharedConfig{}, nil, nil)
	svc.now = fixedClock()
	return svc, mock
}

func superAdmin() models.Actor { return models.Actor{ID: "u-root", Role: models.RoleSuperAdmin} }

func TestSharedSessionService_GetSharedSession_CreatesOnce(t *testing.T) {
	m := newMemStore()
	svc, mock := newSharedService(t, m)
	mock.ExpectBegin()
	mock.ExpectCommit()

	ctx := context.Background()
	first, err := svc.GetSharedSession(ctx, "u-1")
	require.NoError(t, err)

	assert.Equal(t, common.SharedSessionName, first.Name)
	assert.Equal(t, models.StatusPending, first.Status)
	assert.Equal(t, "u-1", first.AssignedUserID)
	assert.Nil(t, first.ProxyID)
	require.NotNil(t, first.Notes)
	assert.True(t, strings.HasSuffix(*first.Notes, "Needs super admin setup"))
	require.NotNil(t, first.DomainID)

	d, err := memDomains{m}.GetByID(ctx, *first.DomainID)
	require.NoError(t, err)
	assert.Equal(t, DefaultSharedDomainBaseURL, d.BaseURL)
	assert.Equal(t, DefaultSharedDomainLabel, d.Label)

	second, err := svc.GetSharedSession(ctx, "u-2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "u-2", second.AssignedUserID)

	stored := m.get(first.ID)
	assert.Nil(t, stored.AssignedUserID, "requester annotation is never persisted")
	assert.Equal(t, 1, m.countByName(common.SharedSessionName))
	assert.Equal(t, []string{"Shared session created"}, m.logMessages(first.ID))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSharedSessionService_GetSharedSession_UsesActiveProxyAndExistingDomain(t *testing.T) {
	m := newMemStore()
	existing := &models.Domain{ID: "d-1", Label: "Legacy", BaseURL: DefaultSharedDomainBaseURL}
	m.domains[existing.ID] = existing
	m.proxies = []*models.Proxy{
		{ID: "p-0", Name: "off", Active: false},
		{ID: "p-1", Name: "edge-1", Active: true},
	}
	svc, mock := newSharedService(t, m)
	mock.ExpectBegin()
	mock.ExpectCommit()

	view, err := svc.GetSharedSession(context.Background(), "u-1")
	require.NoError(t, err)
	require.NotNil(t, view.ProxyID)
	assert.Equal(t, "p-1", *view.ProxyID)
	assert.Equal(t, "d-1", *view.DomainID)
	assert.Len(t, m.domains, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSharedSessionService_GetSharedSession_Concurrent(t *testing.T) {
	m := newMemStore()
	svc, mock := newSharedService(t, m)
	mock.MatchExpectationsInOrder(false)
	mock.ExpectBegin()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectRollback()

	// Hold both callers at the outer lookup and again at the lookup inside
	// the transaction, so both miss and both attempt the insert.
	var outer, inner sync.WaitGroup
	outer.Add(2)
	inner.Add(2)
	m.beforeGetByName = func(call int) {
		switch call {
		case 1, 2:
			outer.Done()
			outer.Wait()
		case 3, 4:
			inner.Done()
			inner.Wait()
		}
	}

	var wg sync.WaitGroup
	views := make([]*models.SessionView, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			views[i], errs[i] = svc.GetSharedSession(context.Background(), "u")
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, views[0].ID, views[1].ID)
	assert.Equal(t, 1, m.countByName(common.SharedSessionName))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSharedSessionService_GetSharedSession_GivesUp(t *testing.T) {
	m := newMemStore()
	m.createErr = common.ErrDuplicateName
	svc, mock := newSharedService(t, m)
	for range 3 {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	_, err := svc.GetSharedSession(context.Background(), "u")
	require.ErrorIs(t, err, common.ErrorInternal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSharedSessionService_GetSharedSession_CreateError(t *testing.T) {
	m := newMemStore()
	m.createErr = errBoom
	svc, mock := newSharedService(t, m)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.GetSharedSession(context.Background(), "u")
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, m.countByName(common.SharedSessionName))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSharedSessionService_PromoteToReady(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	svc, mock := newSharedService(t, m)
	mock.ExpectBegin()
	mock.ExpectCommit()

	shared, err := svc.GetSharedSession(ctx, "u")
	require.NoError(t, err)

	_, err = svc.PromoteToReady(ctx, shared.ID, models.Actor{ID: "u-a", Role: models.RoleAdmin})
	require.ErrorIs(t, err, common.ErrForbidden)

	_, err = svc.PromoteToReady(ctx, shared.ID, superAdmin())
	require.ErrorIs(t, err, common.ErrBundleNotSetUp)
	assert.Equal(t, models.StatusPending, m.get(shared.ID).Status)

	other := pendingSession("other")
	other.Name = "Some Other Session"
	other.BundleKey = common.StringPtr("k")
	other.BundleChecksum = common.StringPtr("c")
	m.put(other)
	_, err = svc.PromoteToReady(ctx, "other", superAdmin())
	require.ErrorIs(t, err, common.ErrNotSharedSession)
	assert.Equal(t, models.StatusPending, m.get("other").Status)

	_, err = svc.PromoteToReady(ctx, "missing", superAdmin())
	require.ErrorIs(t, err, common.ErrorNotFound)

	s := m.get(shared.ID)
	s.BundleKey = common.StringPtr("sessions/x/1-y.zip")
	s.BundleChecksum = common.StringPtr("abc123")
	m.put(s)

	view, err := svc.PromoteToReady(ctx, shared.ID, superAdmin())
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, view.Status)
	assert.Equal(t, "u-root", view.AssignedUserID)
	require.NotNil(t, view.LastLoginAt)
	assert.True(t, strings.HasSuffix(*view.Notes, "Set up by super admin"))
	assert.Contains(t, m.logMessages(shared.ID), "Shared session marked READY")
}

func TestSharedSessionService_Stats(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	m.active = 7
	svc, mock := newSharedService(t, m)
	mock.ExpectBegin()
	mock.ExpectCommit()

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, common.SharedSessionName, stats.SessionName)
	assert.True(t, stats.NeedsSetup)
	assert.EqualValues(t, 7, stats.TotalActiveUsers)
	assert.Equal(t, DefaultSharedDomainBaseURL, stats.SessionDomain)
	assert.Equal(t, "No proxy", stats.SessionProxy)
	assert.Nil(t, stats.LastLoginAt)

	s := m.get(stats.SessionID)
	s.ProxyID = common.StringPtr("p-1")
	s.Status = models.StatusReady
	m.put(s)
	m.proxies = []*models.Proxy{{ID: "p-1", Name: "edge-1", Active: true}}

	stats, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, stats.NeedsSetup)
	assert.Equal(t, "edge-1", stats.SessionProxy)
	require.NoError(t, mock.ExpectationsWereMet())
}
