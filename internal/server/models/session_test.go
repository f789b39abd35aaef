package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestParseSessionStatus(t *testing.T) {
	st, err := ParseSessionStatus("ready")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, st)

	_, err = ParseSessionStatus("ALIVE")
	require.Error(t, err)

	assert.True(t, StatusAuthError.IsFailure())
	assert.True(t, StatusProxyError.IsFailure())
	assert.False(t, StatusDisabled.IsFailure())
}

func TestSession_ReadyInvariant(t *testing.T) {
	tests := []struct {
		name string
		s    Session
		want bool
	}{
		{"pending without bundle", Session{Status: StatusPending}, true},
		{"ready without key", Session{Status: StatusReady, BundleChecksum: strp("abc")}, false},
		{"ready without checksum", Session{Status: StatusReady, BundleKey: strp("k")}, false},
		{"ready with empty key", Session{Status: StatusReady, BundleKey: strp(""), BundleChecksum: strp("abc")}, false},
		{"ready complete", Session{Status: StatusReady, BundleKey: strp("k"), BundleChecksum: strp("abc")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.ReadyInvariantHolds())
		})
	}
}

func TestNewSessionView_AnnotatesRequester(t *testing.T) {
	now := time.Now()
	s := &Session{ID: "s1", Name: "Shared TMS Session", Status: StatusPending, CreatedAt: now, UpdatedAt: now}

	a := NewSessionView(s, "user-a")
	b := NewSessionView(s, "user-b")

	assert.Equal(t, "user-a", a.AssignedUserID)
	assert.Equal(t, "user-b", b.AssignedUserID)
	assert.Nil(t, s.AssignedUserID, "the persisted record is never annotated")
	assert.Equal(t, s.ID, a.ID)
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, RoleSuperAdmin.AtLeast(RoleAdmin))
	assert.True(t, RoleAdmin.AtLeast(RoleAdmin))
	assert.False(t, RoleSupport.AtLeast(RoleAdmin))
	assert.False(t, Role("ROOT").AtLeast(RoleUser))
}

func TestParseLogLevel(t *testing.T) {
	l, err := ParseLogLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, LogWarn, l)
	_, err = ParseLogLevel("TRACE")
	require.Error(t, err)
}
