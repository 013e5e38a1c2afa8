package usercontext

import "github.com/gofiber/fiber/v2"

// Shared Locals keys used across controllers and middlewares
const (
	ContextKey   = "USER_CONTEXT"
	KeyUserID    = "user_id"
	KeyCompanyID = "company_id"
	KeyIsAdmin   = "isAdmin"
)

// UserContext represents the authenticated identity for a request
type UserContext struct {
	UserID     string `json:"user_id"`
	CompanyID  string `json:"company_id,omitempty"`
	Role       string `json:"role"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals(ContextKey); ctx != nil {
		return ctx.(UserContext)
	}
	return UserContext{IsLoggedIn: false, IsAdmin: false}
}

// SetUserContext stores the user context on the fiber context
func SetUserContext(c *fiber.Ctx, ctx UserContext) {
	c.Locals(ContextKey, ctx)
	c.Locals(KeyUserID, ctx.UserID)
	c.Locals(KeyCompanyID, ctx.CompanyID)
	c.Locals(KeyIsAdmin, ctx.IsAdmin)
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsAdmin checks if the current user is an admin
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// GetUserID returns the current user's ID, or empty string if not logged in
func GetUserID(c *fiber.Ctx) string {
	return GetUserContext(c).UserID
}

// GetCompanyID returns the company the current user owns, or empty string
func GetCompanyID(c *fiber.Ctx) string {
	return GetUserContext(c).CompanyID
}
