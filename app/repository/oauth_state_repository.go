package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
)

// oauthStateRepository implements the OAuthStateRepository interface
type oauthStateRepository struct {
	db *gorm.DB
}

// NewOAuthStateRepository creates a new OAuth state repository instance
func NewOAuthStateRepository(db *gorm.DB) OAuthStateRepository {
	return &oauthStateRepository{db: db}
}

// Create stores a fresh state nonce for a pending authorization redirect
func (r *oauthStateRepository) Create(state *models.OAuthState) error {
	return r.db.Create(state).Error
}

// Consume atomically marks the state used. Single-use: a second call for the
// same state returns gorm.ErrRecordNotFound, as do expired entries.
func (r *oauthStateRepository) Consume(state string, now time.Time) (*models.OAuthState, error) {
	var rec models.OAuthState
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("state = ?", state).First(&rec).Error; err != nil {
			return err
		}
		if !rec.Usable(now) {
			return gorm.ErrRecordNotFound
		}
		res := tx.Model(&rec).Where("consumed_at IS NULL").Update("consumed_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	rec.ConsumedAt = &now
	return &rec, nil
}

// DeleteExpired drops states past their expiry
func (r *oauthStateRepository) DeleteExpired(now time.Time) (int64, error) {
	res := r.db.Where("expires_at < ?", now).Delete(&models.OAuthState{})
	return res.RowsAffected, res.Error
}
