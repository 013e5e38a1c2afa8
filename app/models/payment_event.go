package models

import "time"

// PaymentEvent stores every received provider webhook delivery for auditing
// and manual repair. Idempotency of the status update itself lives in the
// transactional compare-before-write, not here: the same payment id may
// legitimately be delivered many times.
type PaymentEvent struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Provider          string     `gorm:"type:varchar(32);not null;index" json:"provider"`
	ProviderPaymentID string     `gorm:"type:varchar(64);not null;index" json:"provider_payment_id"`
	BookingID         string     `gorm:"type:varchar(36);default:'';index" json:"booking_id"`
	PayloadJSON       string     `gorm:"type:mediumtext" json:"payload_json"`
	Changed           bool       `gorm:"default:false" json:"changed"`
	ProcessedAt       *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError   string     `gorm:"type:text" json:"processing_error"`
	CreatedAt         time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}
