package controllers

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
	"github.com/opslagbijjou-creator/bookbeauty-api/app/repository"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/cache"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/slots"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/usercontext"
)

// slotLockTTL bounds how long a booking attempt may hold the per-slot lock.
const slotLockTTL = 10 * time.Second

// HandleGetCompanySlots returns the free slot list for one company, service
// and date. Slots are derived on the fly and never persisted.
func HandleGetCompanySlots(c *fiber.Ctx) error {
	companyID := c.Params("id")
	serviceID := c.Query("service_id")
	dateStr := c.Query("date")
	if serviceID == "" || dateStr == "" {
		return badRequest(c, "service_id and date query parameters are required")
	}
	date, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		return badRequest(c, "date must be formatted as YYYY-MM-DD")
	}

	factory := repository.GetGlobalFactory()
	if _, err := factory.GetCompanyRepository().GetByID(companyID); err != nil {
		return apiError(c, err)
	}
	service, err := factory.GetServiceRepository().GetByID(serviceID)
	if err != nil {
		return apiError(c, err)
	}
	if service.CompanyID != companyID || !service.Active {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Service not found for this company"})
	}

	hour, err := factory.GetCompanyRepository().GetOpeningHour(companyID, int(date.Weekday()))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Closed that day: an empty list, not an error.
			return c.JSON(fiber.Map{"date": dateStr, "slots": []slots.Slot{}})
		}
		return apiError(c, err)
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	existing, err := factory.GetBookingRepository().ListOverlapping(companyID, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return apiError(c, err)
	}

	daySlots := slots.ComputeDaySlots(slots.Request{
		Date:            date,
		OpensAtMin:      hour.OpensAtMin,
		ClosesAtMin:     hour.ClosesAtMin,
		DurationMin:     service.DurationMin,
		BufferBeforeMin: service.BufferBeforeMin,
		BufferAfterMin:  service.BufferAfterMin,
		Capacity:        service.Capacity,
		Now:             time.Now(),
	}, existing)
	if daySlots == nil {
		daySlots = []slots.Slot{}
	}

	return c.JSON(fiber.Map{"date": dateStr, "slots": daySlots})
}

type createBookingRequest struct {
	CompanyID string `json:"company_id"`
	ServiceID string `json:"service_id"`
	StartsAt  string `json:"starts_at"` // RFC 3339
}

// HandleCreateBooking books a slot for the authenticated customer. A short
// per-slot cache lock serializes concurrent attempts on the same slot; the
// transactional capacity re-count in the repository stays authoritative.
func HandleCreateBooking(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req createBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		return badRequest(c, "starts_at must be RFC 3339")
	}
	if startsAt.Before(time.Now()) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_input", "message": "starts_at is in the past"})
	}

	factory := repository.GetGlobalFactory()
	service, err := factory.GetServiceRepository().GetByID(req.ServiceID)
	if err != nil {
		return apiError(c, err)
	}
	if service.CompanyID != req.CompanyID || !service.Active {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Service not found for this company"})
	}

	local := startsAt.In(time.Local)
	hour, err := factory.GetCompanyRepository().GetOpeningHour(req.CompanyID, int(local.Weekday()))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_input", "message": "Company is closed on that day"})
		}
		return apiError(c, err)
	}
	startMin := local.Hour()*60 + local.Minute()
	if startMin < hour.OpensAtMin || startMin+service.DurationMin > hour.ClosesAtMin {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_input", "message": "Start time is outside opening hours"})
	}

	booking := &models.Booking{
		ID:              uuid.New().String(),
		CompanyID:       req.CompanyID,
		ServiceID:       service.ID,
		CustomerID:      userCtx.UserID,
		StartsAt:        startsAt,
		DurationMin:     service.DurationMin,
		BufferBeforeMin: service.BufferBeforeMin,
		BufferAfterMin:  service.BufferAfterMin,
		Capacity:        1,
		Status:          models.BookingStatusPending,
		AmountCents:     service.PriceCents,
	}

	lockKey := cache.SlotLockKey(req.CompanyID, slots.SlotKey(local))
	if !cache.AcquireLock(lockKey, slotLockTTL) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Slot is being booked by someone else, try again"})
	}
	defer cache.ReleaseLock(lockKey)

	if err := factory.GetBookingRepository().CreateIfCapacityLeft(booking, service.Capacity); err != nil {
		if errors.Is(err, repository.ErrSlotFull) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Slot is fully booked"})
		}
		log.Printf("booking: creating booking failed: %v", err)
		return apiError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(booking)
}

// HandleListMyBookings lists the caller's bookings: own bookings for
// customers, the company's bookings for owners.
func HandleListMyBookings(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	repo := repository.GetGlobalFactory().GetBookingRepository()
	var (
		bookings []models.Booking
		err      error
	)
	if userCtx.CompanyID != "" {
		bookings, err = repo.GetByCompanyID(userCtx.CompanyID, offset, limit)
	} else {
		bookings, err = repo.GetByCustomerID(userCtx.UserID, offset, limit)
	}
	if err != nil {
		return apiError(c, err)
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	return c.JSON(fiber.Map{"bookings": bookings, "offset": offset, "limit": limit})
}

// HandleGetBooking returns one booking for its customer, company or an admin.
func HandleGetBooking(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	booking, err := repository.GetGlobalFactory().GetBookingRepository().GetByID(c.Params("id"))
	if err != nil {
		return apiError(c, err)
	}
	if !userCtx.IsAdmin && booking.CustomerID != userCtx.UserID && booking.CompanyID != userCtx.CompanyID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Not your booking"})
	}
	return c.JSON(booking)
}
