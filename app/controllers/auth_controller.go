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
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/middleware"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleApiRegister creates a user account and returns a signed token.
func HandleApiRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}

	role := req.Role
	if role == "" {
		role = models.ROLE_CUSTOMER
	}
	if role != models.ROLE_CUSTOMER && role != models.ROLE_COMPANY {
		return badRequest(c, "Role must be customer or company")
	}

	hash, err := models.HashPassword(req.Password)
	if err != nil {
		return apiError(c, err)
	}

	user := &models.User{
		ID:       uuid.New().String(),
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Password: hash,
		Role:     role,
		Status:   models.STATUS_ACTIVE,
		Phone:    req.Phone,
	}
	// Validate against the raw password length, not the hash.
	probe := *user
	probe.Password = req.Password
	if err := probe.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_input", "message": "Validation failed: " + err.Error()})
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	if existing, err := userRepo.GetByEmail(user.Email); err == nil && existing != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Email is already registered"})
	}
	if err := userRepo.Create(user); err != nil {
		log.Printf("register: creating user failed: %v", err)
		return apiError(c, err)
	}

	token, err := middleware.GenerateToken(user, "")
	if err != nil {
		log.Printf("register: signing token failed: %v", err)
		return apiError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
			"role":  user.Role,
		},
	})
}

// HandleApiLogin verifies credentials and returns a signed token. Company
// owners get their company id embedded in the claims.
func HandleApiLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}

	factory := repository.GetGlobalFactory()
	user, err := factory.GetUserRepository().GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid credentials"})
		}
		return apiError(c, err)
	}
	if !models.CheckPasswordHash(req.Password, user.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid credentials"})
	}
	if !user.IsActive() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Account is not active"})
	}

	companyID := ""
	if user.Role == models.ROLE_COMPANY {
		if company, cerr := factory.GetCompanyRepository().GetByOwnerID(user.ID); cerr == nil {
			companyID = company.ID
		}
	}

	token, err := middleware.GenerateToken(user, companyID)
	if err != nil {
		log.Printf("login: signing token failed: %v", err)
		return apiError(c, err)
	}

	if err := factory.GetUserRepository().TouchLastLogin(user.ID); err != nil {
		log.Printf("login: updating last login for %s failed: %v", user.ID, err)
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"id":            user.ID,
			"name":          user.Name,
			"email":         user.Email,
			"role":          user.Role,
			"company_id":    companyID,
			"last_login_at": formatTimePtr(user.LastLoginAt),
		},
	})
}
