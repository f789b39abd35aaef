// Package models defines server-side data models persisted in the database.
package models

import (
	"fmt"
	"strings"
	"time"
)

type SessionStatus string

const (
	StatusPending     SessionStatus = "PENDING"
	StatusDownloading SessionStatus = "DOWNLOADING"
	StatusUploading   SessionStatus = "UPLOADING"
	StatusReady       SessionStatus = "READY"
	StatusAuthError   SessionStatus = "AUTH_ERROR"
	StatusProxyError  SessionStatus = "PROXY_ERROR"
	StatusDisabled    SessionStatus = "DISABLED"
)

var allStatuses = []SessionStatus{
	StatusPending, StatusDownloading, StatusUploading, StatusReady,
	StatusAuthError, StatusProxyError, StatusDisabled,
}

func ParseSessionStatus(s string) (SessionStatus, error) {
	for _, st := range allStatuses {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown session status %q", s)
}

// IsFailure reports whether st is one of the externally driven failure states.
func (st SessionStatus) IsFailure() bool {
	return st == StatusAuthError || st == StatusProxyError
}

// Session is the persisted record of one captured browser session.
type Session struct {
	ID   string
	Name string

	Status SessionStatus

	// Bundle pointer. BundleKey is nil until the first upload is requested.
	BundleKey        *string
	BundleChecksum   *string
	BundleEncryption *string
	BundleVersion    int64

	DomainID       *string
	ProxyID        *string
	AssignedUserID *string
	Notes          *string

	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSyncedAt *time.Time
	LastLoginAt  *time.Time
}

// HasBundle reports whether an upload cycle was ever initiated.
func (s *Session) HasBundle() bool {
	return s.BundleKey != nil && *s.BundleKey != ""
}

// ReadyInvariantHolds is true unless the record claims READY without a
// complete bundle pointer.
func (s *Session) ReadyInvariantHolds() bool {
	if s.Status != StatusReady {
		return true
	}
	return s.HasBundle() && s.BundleChecksum != nil && *s.BundleChecksum != ""
}

// SessionUpdate carries optional field changes for an administrative update.
// Nil fields are left untouched.
type SessionUpdate struct {
	Name           *string
	Status         *SessionStatus
	DomainID       *string
	ProxyID        *string
	AssignedUserID *string
	Notes          *string
}
