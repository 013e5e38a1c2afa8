package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
)

// ErrSlotFull is returned when a booking insert would exceed the service
// capacity for the requested interval.
var ErrSlotFull = errors.New("slot capacity exhausted")

// bufferSlack widens interval queries so bookings whose stored buffers reach
// into the window are not missed by the starts_at range filter. Buffers
// beyond this are rejected at service validation.
const bufferSlack = 6 * time.Hour

// bookingRepository implements the BookingRepository interface
type bookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository creates a new booking repository instance
func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

// Create creates a new booking in the database
func (r *bookingRepository) Create(booking *models.Booking) error {
	return r.db.Create(booking).Error
}

// GetByID retrieves a booking by its ID
func (r *bookingRepository) GetByID(id string) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.Where("id = ?", id).First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetByCustomerID lists a customer's bookings, newest first
func (r *bookingRepository) GetByCustomerID(customerID string, offset, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.Where("customer_id = ?", customerID).
		Order("starts_at DESC").Offset(offset).Limit(limit).Find(&bookings).Error
	return bookings, err
}

// GetByCompanyID lists a company's bookings, newest first
func (r *bookingRepository) GetByCompanyID(companyID string, offset, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.Where("company_id = ?", companyID).
		Order("starts_at DESC").Offset(offset).Limit(limit).Find(&bookings).Error
	return bookings, err
}

// ListOverlapping returns the company's bookings whose buffered occupancy
// interval intersects [from, to). The SQL range is widened by bufferSlack and
// the exact half-open overlap check happens on the buffered interval in Go.
func (r *bookingRepository) ListOverlapping(companyID string, from, to time.Time) ([]models.Booking, error) {
	return listOverlapping(r.db, companyID, from, to)
}

func listOverlapping(db *gorm.DB, companyID string, from, to time.Time) ([]models.Booking, error) {
	var candidates []models.Booking
	err := db.Where("company_id = ? AND starts_at >= ? AND starts_at < ?",
		companyID, from.Add(-bufferSlack), to.Add(bufferSlack)).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	var out []models.Booking
	for _, b := range candidates {
		bFrom, bTo := b.OccupiedInterval()
		if bFrom.Before(to) && from.Before(bTo) {
			out = append(out, b)
		}
	}
	return out, nil
}

// CreateIfCapacityLeft inserts the booking only if the capacity-consuming
// overlaps, re-counted under a row lock inside the transaction, leave room.
func (r *bookingRepository) CreateIfCapacityLeft(booking *models.Booking, capacity int) error {
	from, to := booking.OccupiedInterval()
	return r.db.Transaction(func(tx *gorm.DB) error {
		overlaps, err := listOverlapping(
			tx.Clauses(clause.Locking{Strength: "UPDATE"}), booking.CompanyID, from, to)
		if err != nil {
			return err
		}

		if capacityUsed(overlaps) >= capacity {
			return ErrSlotFull
		}
		return tx.Create(booking).Error
	})
}

// capacityUsed sums the capacity units of bookings still holding their slot.
// Bookings carry their own unit count; zero is treated as one for rows that
// predate the column.
func capacityUsed(bookings []models.Booking) int {
	used := 0
	for _, b := range bookings {
		if !b.CountsAgainstCapacity() {
			continue
		}
		units := b.Capacity
		if units <= 0 {
			units = 1
		}
		used += units
	}
	return used
}

// Update updates an existing booking in the database
func (r *bookingRepository) Update(booking *models.Booking) error {
	return r.db.Save(booking).Error
}
