package payments

import (
	"errors"
	"fmt"
	"time"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the DB operations used by the payment service. All
// status-changing booking writes go through UpdateBookingTx so concurrent
// webhook deliveries and user actions serialize on the booking row.
type Repository interface {
	GetBooking(id string) (*models.Booking, error)
	// GetBookingByPaymentID resolves a provider payment id against both
	// storage locations: the nested payment sub-record first, then the
	// legacy top-level column.
	GetBookingByPaymentID(paymentID string) (*models.Booking, error)
	// UpdateBookingTx re-reads the booking under a row lock, applies fn and
	// persists only when fn reports a change. fn returning (false, nil) is
	// the idempotent no-op path.
	UpdateBookingTx(id string, fn func(b *models.Booking) (bool, error)) (*models.Booking, bool, error)

	GetCompany(id string) (*models.Company, error)
	SaveCompanyMollie(companyID string, acc models.MollieAccount) error
	GetService(id string) (*models.Service, error)

	CreatePaymentEvent(ev *models.PaymentEvent) error
	MarkPaymentEventProcessed(id uint, changed bool, processingErr error) error

	// ListStalePendingPayments returns bookings stuck in pending_payment with
	// a known provider payment id, for the reconciliation sweep.
	ListStalePendingPayments(olderThan time.Time, limit int) ([]models.Booking, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetBooking(id string) (*models.Booking, error) {
	var b models.Booking
	if err := r.db.First(&b, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: booking %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &b, nil
}

func (r *gormRepository) GetBookingByPaymentID(paymentID string) (*models.Booking, error) {
	var b models.Booking
	err := r.db.Where("payment_payment_id = ?", paymentID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = r.db.Where("mollie_payment_id = ?", paymentID).First(&b).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no booking for payment %s", ErrNotFound, paymentID)
		}
		return nil, err
	}
	return &b, nil
}

func (r *gormRepository) UpdateBookingTx(id string, fn func(b *models.Booking) (bool, error)) (*models.Booking, bool, error) {
	var out models.Booking
	changed := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var b models.Booking
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&b, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: booking %s", ErrNotFound, id)
			}
			return err
		}

		apply, err := fn(&b)
		if err != nil {
			return err
		}
		if apply {
			if err := tx.Save(&b).Error; err != nil {
				return err
			}
			changed = true
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, changed, nil
}

func (r *gormRepository) GetCompany(id string) (*models.Company, error) {
	var c models.Company
	if err := r.db.First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: company %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) SaveCompanyMollie(companyID string, acc models.MollieAccount) error {
	// Single update that writes the encoded tokens and clears the legacy
	// plaintext columns in the same statement.
	updates := map[string]interface{}{
		"mollie_access_token_enc":     acc.AccessTokenEnc,
		"mollie_refresh_token_enc":    acc.RefreshTokenEnc,
		"mollie_token_mode":           acc.TokenMode,
		"mollie_token_expires_at":     acc.TokenExpiresAt,
		"mollie_organization_id":      acc.OrganizationID,
		"mollie_profile_id":           acc.ProfileID,
		"mollie_onboarding_status":    acc.OnboardingStatus,
		"mollie_can_receive_payments": acc.CanReceivePayments,
		"mollie_linked_at":            acc.LinkedAt,
		"mollie_legacy_access_token":  "",
		"mollie_legacy_refresh_token": "",
	}
	res := r.db.Model(&models.Company{}).Where("id = ?", companyID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: company %s", ErrNotFound, companyID)
	}
	return nil
}

func (r *gormRepository) GetService(id string) (*models.Service, error) {
	var s models.Service
	if err := r.db.First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: service %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) CreatePaymentEvent(ev *models.PaymentEvent) error {
	return r.db.Create(ev).Error
}

func (r *gormRepository) MarkPaymentEventProcessed(id uint, changed bool, processingErr error) error {
	now := time.Now()
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return r.db.Model(&models.PaymentEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed_at":     &now,
		"changed":          changed,
		"processing_error": errMsg,
	}).Error
}

func (r *gormRepository) ListStalePendingPayments(olderThan time.Time, limit int) ([]models.Booking, error) {
	var out []models.Booking
	err := r.db.
		Where("payment_status = ?", models.PaymentStatusPending).
		Where("payment_created_at IS NOT NULL AND payment_created_at < ?", olderThan).
		Where("payment_payment_id <> '' OR mollie_payment_id <> ''").
		Order("payment_created_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
