package repository

import (
	"gorm.io/gorm"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
)

// serviceRepository implements the ServiceRepository interface
type serviceRepository struct {
	db *gorm.DB
}

// NewServiceRepository creates a new service repository instance
func NewServiceRepository(db *gorm.DB) ServiceRepository {
	return &serviceRepository{db: db}
}

// Create creates a new service in the database
func (r *serviceRepository) Create(service *models.Service) error {
	return r.db.Create(service).Error
}

// GetByID retrieves a service by its ID
func (r *serviceRepository) GetByID(id string) (*models.Service, error) {
	var service models.Service
	err := r.db.Where("id = ?", id).First(&service).Error
	if err != nil {
		return nil, err
	}
	return &service, nil
}

// GetActiveByCompanyID lists the company's bookable services
func (r *serviceRepository) GetActiveByCompanyID(companyID string) ([]models.Service, error) {
	var services []models.Service
	err := r.db.Where("company_id = ? AND active = ?", companyID, true).
		Order("name ASC").Find(&services).Error
	return services, err
}

// Update updates an existing service in the database
func (r *serviceRepository) Update(service *models.Service) error {
	return r.db.Save(service).Error
}
