package models

import "time"

// Token storage modes for the connected Mollie account. Tokens written with an
// AES-GCM key carry "aesgcm"; without a configured key they are base64-opaqued.
const (
	TokenModeAESGCM = "aesgcm"
	TokenModeBase64 = "base64"
)

const (
	OnboardingNeedsData  = "needs-data"
	OnboardingInReview   = "in-review"
	OnboardingCompleted  = "completed"
	OnboardingNotLinked  = "not-linked"
)

// MollieAccount is the per-company OAuth linkage to the payment provider.
// Raw tokens are never stored; only encoded values plus the mode tag.
type MollieAccount struct {
	AccessTokenEnc  string `gorm:"type:text" json:"-"`
	RefreshTokenEnc string `gorm:"type:text" json:"-"`
	// Plaintext columns from before encoded storage existed. Never written
	// anymore and actively cleared on every token write.
	LegacyAccessToken  string     `gorm:"type:text" json:"-"`
	LegacyRefreshToken string     `gorm:"type:text" json:"-"`
	TokenMode          string     `gorm:"type:varchar(16);default:''" json:"-"`
	TokenExpiresAt     *time.Time `gorm:"type:timestamp;default:null" json:"token_expires_at,omitempty"`
	OrganizationID     string     `gorm:"type:varchar(64);default:''" json:"organization_id,omitempty"`
	ProfileID          string     `gorm:"type:varchar(64);default:''" json:"profile_id,omitempty"`
	OnboardingStatus   string     `gorm:"type:varchar(32);default:'not-linked'" json:"onboarding_status"`
	CanReceivePayments bool       `gorm:"default:false" json:"can_receive_payments"`
	LinkedAt           *time.Time `gorm:"type:timestamp;default:null" json:"linked_at,omitempty"`
}

// Linked reports whether the company has an OAuth refresh token on file.
func (m *MollieAccount) Linked() bool {
	return m.RefreshTokenEnc != ""
}

type Company struct {
	ID        string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID   string        `gorm:"type:varchar(36);not null;index" json:"owner_id"`
	Name      string        `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	City      string        `gorm:"type:varchar(100);default:''" json:"city"`
	Mollie    MollieAccount `gorm:"embedded;embeddedPrefix:mollie_" json:"mollie"`
	CreatedAt time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// OpeningHour is one weekday's operating window in minutes since midnight.
// A weekday without a row means the company is closed that day.
type OpeningHour struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	CompanyID   string `gorm:"type:varchar(36);not null;index:ux_opening_hours_company_weekday,unique,priority:1" json:"company_id"`
	Weekday     int    `gorm:"not null;index:ux_opening_hours_company_weekday,unique,priority:2" json:"weekday" validate:"min=0,max=6"`
	OpensAtMin  int    `gorm:"not null" json:"opens_at_min" validate:"min=0,max=1440"`
	ClosesAtMin int    `gorm:"not null" json:"closes_at_min" validate:"min=0,max=1440"`
}
