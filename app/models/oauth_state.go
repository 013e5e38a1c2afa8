package models

import "time"

// OAuthStateTTL bounds how long an authorization redirect may stay pending.
const OAuthStateTTL = 15 * time.Minute

// OAuthState is a short-lived, single-use record correlating an authorization
// redirect with the initiating company and actor. States are consumed by
// flagging, never deleted before consumption.
type OAuthState struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	State      string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"state"`
	CompanyID  string     `gorm:"type:varchar(36);not null;index" json:"company_id"`
	UserID     string     `gorm:"type:varchar(36);not null" json:"user_id"`
	ExpiresAt  time.Time  `gorm:"not null" json:"expires_at"`
	ConsumedAt *time.Time `gorm:"type:timestamp;default:null" json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// Usable reports whether the state can still be redeemed at callback time.
func (s *OAuthState) Usable(now time.Time) bool {
	return s.ConsumedAt == nil && now.Before(s.ExpiresAt)
}
