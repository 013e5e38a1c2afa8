package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id string) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	TouchLastLogin(id string) error
}

// CompanyRepository defines the interface for company-related database operations
type CompanyRepository interface {
	Create(company *models.Company) error
	GetByID(id string) (*models.Company, error)
	GetByOwnerID(ownerID string) (*models.Company, error)
	Update(company *models.Company) error
	GetOpeningHour(companyID string, weekday int) (*models.OpeningHour, error)
	SaveOpeningHours(companyID string, hours []models.OpeningHour) error
}

// ServiceRepository defines the interface for service-related database operations
type ServiceRepository interface {
	Create(service *models.Service) error
	GetByID(id string) (*models.Service, error)
	GetActiveByCompanyID(companyID string) ([]models.Service, error)
	Update(service *models.Service) error
}

// BookingRepository defines the interface for booking-related database operations
type BookingRepository interface {
	Create(booking *models.Booking) error
	GetByID(id string) (*models.Booking, error)
	GetByCustomerID(customerID string, offset, limit int) ([]models.Booking, error)
	GetByCompanyID(companyID string, offset, limit int) ([]models.Booking, error)
	// ListOverlapping returns bookings of the company whose buffered
	// occupancy interval intersects [from, to).
	ListOverlapping(companyID string, from, to time.Time) ([]models.Booking, error)
	// CreateIfCapacityLeft inserts the booking inside one transaction after
	// re-counting capacity-consuming overlaps against the service capacity.
	CreateIfCapacityLeft(booking *models.Booking, capacity int) error
	Update(booking *models.Booking) error
}

// OAuthStateRepository defines the interface for the OAuth CSRF state store
type OAuthStateRepository interface {
	Create(state *models.OAuthState) error
	// Consume marks the state used and returns it; a missing, expired or
	// already consumed state yields gorm.ErrRecordNotFound.
	Consume(state string, now time.Time) (*models.OAuthState, error)
	DeleteExpired(now time.Time) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User       UserRepository
	Company    CompanyRepository
	Service    ServiceRepository
	Booking    BookingRepository
	OAuthState OAuthStateRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:       NewUserRepository(db),
		Company:    NewCompanyRepository(db),
		Service:    NewServiceRepository(db),
		Booking:    NewBookingRepository(db),
		OAuthState: NewOAuthStateRepository(db),
	}
}
