package models

import "time"

// SessionView is the read model handed to session consumers. It carries the
// requester id for the response only; it is never written back.
type SessionView struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Status           SessionStatus `json:"status"`
	BundleKey        *string       `json:"bundleKey,omitempty"`
	BundleChecksum   *string       `json:"bundleChecksum,omitempty"`
	BundleEncryption *string       `json:"bundleEncryption,omitempty"`
	BundleVersion    int64         `json:"bundleVersion"`
	DomainID         *string       `json:"domainId,omitempty"`
	ProxyID          *string       `json:"proxyId,omitempty"`
	Notes            *string       `json:"notes,omitempty"`
	AssignedUserID   string        `json:"assignedUserId,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
	LastSyncedAt     *time.Time    `json:"lastSyncedAt,omitempty"`
	LastLoginAt      *time.Time    `json:"lastLoginAt,omitempty"`
}

// NewSessionView copies s and annotates it with requesterID.
func NewSessionView(s *Session, requesterID string) *SessionView {
	return &SessionView{
		ID:               s.ID,
		Name:             s.Name,
		Status:           s.Status,
		BundleKey:        s.BundleKey,
		BundleChecksum:   s.BundleChecksum,
		BundleEncryption: s.BundleEncryption,
		BundleVersion:    s.BundleVersion,
		DomainID:         s.DomainID,
		ProxyID:          s.ProxyID,
		Notes:            s.Notes,
		AssignedUserID:   requesterID,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
		LastSyncedAt:     s.LastSyncedAt,
		LastLoginAt:      s.LastLoginAt,
	}
}

// SharedSessionStats summarizes the canonical shared session.
type SharedSessionStats struct {
	SessionID        string        `json:"sessionId"`
	SessionName      string        `json:"sessionName"`
	Status           SessionStatus `json:"status"`
	NeedsSetup       bool          `json:"needsSetup"`
	TotalActiveUsers int64         `json:"totalActiveUsers"`
	SessionDomain    string        `json:"sessionDomain,omitempty"`
	SessionProxy     string        `json:"sessionProxy"`
	LastLoginAt      *time.Time    `json:"lastLoginAt,omitempty"`
}

// SignedURL is the answer to an upload or download request.
type SignedURL struct {
	URL        string `json:"url"`
	BundleKey  string `json:"bundleKey"`
	TTLSeconds int    `json:"expiresInSeconds"`
}
