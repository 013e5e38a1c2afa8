package controllers

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
	"github.com/opslagbijjou-creator/bookbeauty-api/app/repository"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/usercontext"
)

type createCompanyRequest struct {
	Name string `json:"name"`
	City string `json:"city"`
}

// HandleCreateCompany registers the caller's salon. One company per owner.
func HandleCreateCompany(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req createCompanyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}

	repo := repository.GetGlobalFactory().GetCompanyRepository()
	if existing, err := repo.GetByOwnerID(userCtx.UserID); err == nil && existing != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "You already have a company"})
	}

	company := &models.Company{
		ID:      uuid.New().String(),
		OwnerID: userCtx.UserID,
		Name:    strings.TrimSpace(req.Name),
		City:    strings.TrimSpace(req.City),
	}
	if len(company.Name) < 2 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_input", "message": "Company name is too short"})
	}
	if err := repo.Create(company); err != nil {
		log.Printf("company: creating company failed: %v", err)
		return apiError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(company)
}

// HandleGetCompany returns the public company profile.
func HandleGetCompany(c *fiber.Ctx) error {
	company, err := repository.GetGlobalFactory().GetCompanyRepository().GetByID(c.Params("id"))
	if err != nil {
		return apiError(c, err)
	}
	return c.JSON(company)
}

type createServiceRequest struct {
	Name            string `json:"name"`
	DurationMin     int    `json:"duration_min"`
	BufferBeforeMin int    `json:"buffer_before_min"`
	BufferAfterMin  int    `json:"buffer_after_min"`
	Capacity        int    `json:"capacity"`
	PriceCents      int64  `json:"price_cents"`
}

// HandleCreateService adds a bookable service to the owner's company.
func HandleCreateService(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	companyID := c.Params("id")
	if companyID != userCtx.CompanyID && !userCtx.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Not your company"})
	}

	var req createServiceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}
	if req.DurationMin <= 0 || req.DurationMin > 480 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_input", "message": "duration_min must be between 1 and 480"})
	}
	if req.BufferBeforeMin < 0 || req.BufferAfterMin < 0 || req.BufferBeforeMin > 120 || req.BufferAfterMin > 120 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_input", "message": "buffers must be between 0 and 120 minutes"})
	}
	if req.PriceCents < 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_input", "message": "price_cents must not be negative"})
	}
	capacity := req.Capacity
	if capacity <= 0 {
		capacity = 1
	}

	service := &models.Service{
		ID:              uuid.New().String(),
		CompanyID:       companyID,
		Name:            strings.TrimSpace(req.Name),
		DurationMin:     req.DurationMin,
		BufferBeforeMin: req.BufferBeforeMin,
		BufferAfterMin:  req.BufferAfterMin,
		Capacity:        capacity,
		PriceCents:      req.PriceCents,
		Active:          true,
	}
	if err := repository.GetGlobalFactory().GetServiceRepository().Create(service); err != nil {
		log.Printf("company: creating service failed: %v", err)
		return apiError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(service)
}

// HandleListCompanyServices lists the company's bookable services.
func HandleListCompanyServices(c *fiber.Ctx) error {
	services, err := repository.GetGlobalFactory().GetServiceRepository().GetActiveByCompanyID(c.Params("id"))
	if err != nil {
		return apiError(c, err)
	}
	if services == nil {
		services = []models.Service{}
	}
	return c.JSON(fiber.Map{"services": services})
}

type openingHourRequest struct {
	Weekday     int `json:"weekday"`
	OpensAtMin  int `json:"opens_at_min"`
	ClosesAtMin int `json:"closes_at_min"`
}

// HandleSaveOpeningHours replaces the company's weekly opening windows.
// Weekdays omitted from the payload keep their current value; a window with
// opens >= closes marks the day closed for slot computation.
func HandleSaveOpeningHours(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	companyID := c.Params("id")
	if companyID != userCtx.CompanyID && !userCtx.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Not your company"})
	}

	var req struct {
		Hours []openingHourRequest `json:"hours"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}

	hours := make([]models.OpeningHour, 0, len(req.Hours))
	for _, h := range req.Hours {
		if h.Weekday < 0 || h.Weekday > 6 || h.OpensAtMin < 0 || h.ClosesAtMin > 1440 {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_input", "message": "Invalid opening hour entry"})
		}
		hours = append(hours, models.OpeningHour{
			Weekday:     h.Weekday,
			OpensAtMin:  h.OpensAtMin,
			ClosesAtMin: h.ClosesAtMin,
		})
	}

	if err := repository.GetGlobalFactory().GetCompanyRepository().SaveOpeningHours(companyID, hours); err != nil {
		log.Printf("company: saving opening hours failed: %v", err)
		return apiError(c, err)
	}
	return c.JSON(fiber.Map{"saved": len(hours)})
}

// HandleGetMollieStatus reports the company's payment link state to its owner.
func HandleGetMollieStatus(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	companyID := c.Params("id")
	if companyID != userCtx.CompanyID && !userCtx.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Not your company"})
	}

	company, err := repository.GetGlobalFactory().GetCompanyRepository().GetByID(companyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Company not found"})
		}
		return apiError(c, err)
	}
	return c.JSON(fiber.Map{
		"linked":               company.Mollie.Linked(),
		"onboarding_status":    company.Mollie.OnboardingStatus,
		"can_receive_payments": company.Mollie.CanReceivePayments,
		"organization_id":      company.Mollie.OrganizationID,
		"linked_at":            formatTimePtr(company.Mollie.LinkedAt),
	})
}
