package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
)

// companyRepository implements the CompanyRepository interface
type companyRepository struct {
	db *gorm.DB
}

// NewCompanyRepository creates a new company repository instance
func NewCompanyRepository(db *gorm.DB) CompanyRepository {
	return &companyRepository{db: db}
}

// Create creates a new company in the database
func (r *companyRepository) Create(company *models.Company) error {
	return r.db.Create(company).Error
}

// GetByID retrieves a company by its ID
func (r *companyRepository) GetByID(id string) (*models.Company, error) {
	var company models.Company
	err := r.db.Where("id = ?", id).First(&company).Error
	if err != nil {
		return nil, err
	}
	return &company, nil
}

// GetByOwnerID retrieves the company owned by the given user
func (r *companyRepository) GetByOwnerID(ownerID string) (*models.Company, error) {
	var company models.Company
	err := r.db.Where("owner_id = ?", ownerID).First(&company).Error
	if err != nil {
		return nil, err
	}
	return &company, nil
}

// Update updates an existing company in the database
func (r *companyRepository) Update(company *models.Company) error {
	return r.db.Save(company).Error
}

// GetOpeningHour returns the company's window for one weekday, or
// gorm.ErrRecordNotFound when the company is closed that day.
func (r *companyRepository) GetOpeningHour(companyID string, weekday int) (*models.OpeningHour, error) {
	var hour models.OpeningHour
	err := r.db.Where("company_id = ? AND weekday = ?", companyID, weekday).First(&hour).Error
	if err != nil {
		return nil, err
	}
	return &hour, nil
}

// SaveOpeningHours upserts the given weekday windows for the company.
func (r *companyRepository) SaveOpeningHours(companyID string, hours []models.OpeningHour) error {
	if len(hours) == 0 {
		return nil
	}
	for i := range hours {
		hours[i].CompanyID = companyID
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}, {Name: "weekday"}},
		DoUpdates: clause.AssignmentColumns([]string{"opens_at_min", "closes_at_min"}),
	}).Create(&hours).Error
}
