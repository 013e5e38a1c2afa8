package models

import "time"

// Booking status values. Bookings are never hard-deleted; cancellation and
// failure are status transitions only.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCompleted = "completed"
	BookingStatusFailed    = "failed"
	BookingStatusCancelled = "cancelled"
	BookingStatusRefunded  = "refunded"
)

// Payment status values for the booking's payment state machine:
// unset -> pending_payment -> {paid | failed | canceled}; paid -> refunded.
const (
	PaymentStatusUnset    = ""
	PaymentStatusPending  = "pending_payment"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusCanceled = "canceled"
	PaymentStatusRefunded = "refunded"
)

// Cancellation types accepted by the refund policy engine.
const (
	CancelTypeNormal = "normal"
	CancelTypeLate   = "late"
)

// PaymentMeta is the provider-side payment sub-record of a booking. At most
// one non-terminal provider payment may exist per booking.
type PaymentMeta struct {
	PaymentID      string     `gorm:"type:varchar(64);default:'';index" json:"payment_id,omitempty"`
	CheckoutURL    string     `gorm:"type:text" json:"checkout_url,omitempty"`
	ProviderStatus string     `gorm:"type:varchar(32);default:''" json:"provider_status,omitempty"`
	RefundID       string     `gorm:"type:varchar(64);default:''" json:"refund_id,omitempty"`
	RefundStatus   string     `gorm:"type:varchar(32);default:''" json:"refund_status,omitempty"`
	WebhookCount   int        `gorm:"not null;default:0" json:"webhook_count"`
	CreatedAt      *time.Time `gorm:"type:timestamp;default:null" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `gorm:"type:timestamp;default:null" json:"updated_at,omitempty"`
}

// Settlement is the monetary breakdown written on cancellation. All values
// are integer eurocents and satisfy refunded + hold == total and
// hold == platformKept + companyKept exactly.
type Settlement struct {
	TotalCents        int64      `gorm:"not null;default:0" json:"total_cents"`
	HoldCents         int64      `gorm:"not null;default:0" json:"hold_cents"`
	PlatformKeptCents int64      `gorm:"not null;default:0" json:"platform_kept_cents"`
	CompanyKeptCents  int64      `gorm:"not null;default:0" json:"company_kept_cents"`
	RefundedCents     int64      `gorm:"not null;default:0" json:"refunded_cents"`
	CancelType        string     `gorm:"type:varchar(16);default:''" json:"cancel_type,omitempty"`
	CancelReason      string     `gorm:"type:varchar(255);default:''" json:"cancel_reason,omitempty"`
	CancelledBy       string     `gorm:"type:varchar(36);default:''" json:"cancelled_by,omitempty"`
	CancelledAt       *time.Time `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
}

type Booking struct {
	ID              string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	CompanyID       string      `gorm:"type:varchar(36);not null;index:idx_bookings_company_date,priority:1" json:"company_id"`
	ServiceID       string      `gorm:"type:varchar(36);not null;index" json:"service_id"`
	CustomerID      string      `gorm:"type:varchar(36);not null;index" json:"customer_id"`
	StartsAt        time.Time   `gorm:"not null;index:idx_bookings_company_date,priority:2" json:"starts_at"`
	DurationMin     int         `gorm:"not null" json:"duration_min"`
	BufferBeforeMin int         `gorm:"not null;default:0" json:"buffer_before_min"`
	BufferAfterMin  int         `gorm:"not null;default:0" json:"buffer_after_min"`
	Capacity        int         `gorm:"not null;default:1" json:"capacity"`
	Status          string      `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	PaymentStatus   string      `gorm:"type:varchar(32);not null;default:'';index" json:"payment_status"`
	AmountCents     int64       `gorm:"not null;default:0" json:"amount_cents"`
	// MolliePaymentID is the legacy top-level storage location for the
	// provider payment id; new writes go to Payment.PaymentID but lookups
	// must check both.
	MolliePaymentID  string      `gorm:"type:varchar(64);default:'';index" json:"mollie_payment_id,omitempty"`
	Payment          PaymentMeta `gorm:"embedded;embeddedPrefix:payment_" json:"payment"`
	Settlement       Settlement  `gorm:"embedded;embeddedPrefix:settle_" json:"settlement"`
	CheckinCode      string      `gorm:"type:varchar(12);default:''" json:"checkin_code,omitempty"`
	CheckinExpiresAt *time.Time  `gorm:"type:timestamp;default:null" json:"checkin_expires_at,omitempty"`
	CreatedAt        time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProviderPaymentID returns the active provider payment id, preferring the
// nested field and falling back to the legacy top-level one.
func (b *Booking) ProviderPaymentID() string {
	if b.Payment.PaymentID != "" {
		return b.Payment.PaymentID
	}
	return b.MolliePaymentID
}

// PaymentTerminal reports whether the payment state machine has reached a
// terminal state. Terminal states may only be re-applied idempotently.
func (b *Booking) PaymentTerminal() bool {
	switch b.PaymentStatus {
	case PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCanceled, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// HasActivePayment reports whether a non-terminal provider payment exists.
// A new provider payment may only be created when this is false.
func (b *Booking) HasActivePayment() bool {
	return b.ProviderPaymentID() != "" && b.PaymentStatus == PaymentStatusPending
}

// OccupiedInterval returns the half-open buffered interval [from, to)
// consumed by this booking.
func (b *Booking) OccupiedInterval() (time.Time, time.Time) {
	from := b.StartsAt.Add(-time.Duration(b.BufferBeforeMin) * time.Minute)
	to := b.StartsAt.Add(time.Duration(b.DurationMin+b.BufferAfterMin) * time.Minute)
	return from, to
}

// CountsAgainstCapacity reports whether the booking still consumes slot
// capacity. Cancelled and refunded bookings release their units.
func (b *Booking) CountsAgainstCapacity() bool {
	switch b.Status {
	case BookingStatusCancelled, BookingStatusRefunded, BookingStatusFailed:
		return false
	default:
		return true
	}
}
