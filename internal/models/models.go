package models

import (
	"time"
)

// Deactivation reasons recorded when is_active flips to false.
const (
	ReasonLogout        = "logout"
	ReasonForcedLogout  = "forced_logout"
	ReasonEvicted       = "evicted"
	ReasonExpiredOnRead = "expired_on_read"
)

type Account struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"                          json:"id"`
	SubjectType  string `gorm:"index:idx_accounts_type_username,unique;not null"  json:"subject_type"`
	Username     string `gorm:"index:idx_accounts_type_username,unique;not null"  json:"username"`
	PasswordHash string `gorm:"not null"                                          json:"-"`
	IsActive     bool   `gorm:"not null;default:true"                             json:"is_active"`
}

// RefreshToken is the durable, revocable side of a session. is_active is
// monotonic: it only ever goes true -> false, a new session means a new row.
// Expiry is computed from created_at plus the configured refresh TTL and is
// never stored.
type RefreshToken struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"       json:"id"`
	SubjectType       string    `gorm:"index:idx_refresh_subject;not null" json:"subject_type"`
	SubjectID         uint      `gorm:"index:idx_refresh_subject;not null" json:"subject_id"`
	Token             string    `gorm:"uniqueIndex;not null"           json:"-"`
	IsActive          bool      `gorm:"not null;default:true"          json:"is_active"`
	DeactivatedReason *string   `gorm:"size:32"                        json:"deactivated_reason,omitempty"`
	CreatedAt         time.Time `gorm:"not null"                       json:"created_at"`
}

func (rt *RefreshToken) ExpiresAt(refreshTTL time.Duration) time.Time {
	return rt.CreatedAt.Add(refreshTTL)
}

func (rt *RefreshToken) Expired(now time.Time, refreshTTL time.Duration) bool {
	return now.After(rt.ExpiresAt(refreshTTL))
}
