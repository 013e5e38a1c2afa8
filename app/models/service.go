package models

import "time"

// Service is a bookable offering owned by a company. Durations and buffers are
// minutes; the price is an integer number of eurocents.
type Service struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CompanyID       string    `gorm:"type:varchar(36);not null;index" json:"company_id"`
	Name            string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	DurationMin     int       `gorm:"not null" json:"duration_min" validate:"required,min=5,max=480"`
	BufferBeforeMin int       `gorm:"not null;default:0" json:"buffer_before_min" validate:"min=0,max=120"`
	BufferAfterMin  int       `gorm:"not null;default:0" json:"buffer_after_min" validate:"min=0,max=120"`
	Capacity        int       `gorm:"not null;default:1" json:"capacity" validate:"min=1,max=50"`
	PriceCents      int64     `gorm:"not null;default:0" json:"price_cents" validate:"min=0"`
	Active          bool      `gorm:"default:true;index" json:"active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
