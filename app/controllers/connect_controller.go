package controllers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
	"github.com/opslagbijjou-creator/bookbeauty-api/app/repository"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/env"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/payments"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/usercontext"
)

var (
	mollieClient *payments.MollieClient
	tokenManager *payments.TokenManager
)

// SetMollieWiring hands the controllers the shared OAuth app client and the
// token manager. Must be called once during startup.
func SetMollieWiring(client *payments.MollieClient, tokens *payments.TokenManager) {
	mollieClient = client
	tokenManager = tokens
}

func connectResultURL(linked bool) string {
	base := env.GetEnv("PUBLIC_DOMAIN", "")
	flag := "0"
	if linked {
		flag = "1"
	}
	return base + "/settings/payments?linked=" + flag
}

// HandleMollieConnect starts the merchant authorization flow for the owner's
// company and returns the provider redirect URL.
func HandleMollieConnect(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	companyID := c.Params("id")
	if companyID != userCtx.CompanyID && !userCtx.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Not your company"})
	}

	state := &models.OAuthState{
		State:     uuid.New().String(),
		CompanyID: companyID,
		UserID:    userCtx.UserID,
		ExpiresAt: time.Now().Add(models.OAuthStateTTL),
	}
	if err := repository.GetGlobalFactory().GetOAuthStateRepository().Create(state); err != nil {
		log.Printf("mollie connect: storing state failed: %v", err)
		return apiError(c, err)
	}

	authorizeURL, err := mollieClient.AuthorizeURLWithState(state.State)
	if err != nil {
		log.Printf("mollie connect: %v", err)
		return apiError(c, err)
	}
	return c.JSON(fiber.Map{"authorize_url": authorizeURL})
}

// HandleMollieCallback completes the authorization flow. It arrives via
// browser redirect, so failures end in a redirect with linked=0 rather than
// a JSON error.
func HandleMollieCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	stateParam := c.Query("state")
	if code == "" || stateParam == "" {
		return c.Redirect(connectResultURL(false), fiber.StatusFound)
	}

	state, err := repository.GetGlobalFactory().GetOAuthStateRepository().Consume(stateParam, time.Now())
	if err != nil {
		log.Printf("mollie callback: state %s rejected: %v", stateParam, err)
		return c.Redirect(connectResultURL(false), fiber.StatusFound)
	}

	resp, err := mollieClient.ExchangeCode(c.Context(), code)
	if err != nil {
		log.Printf("mollie callback: code exchange for company %s failed: %v", state.CompanyID, err)
		return c.Redirect(connectResultURL(false), fiber.StatusFound)
	}

	company, err := repository.GetGlobalFactory().GetCompanyRepository().GetByID(state.CompanyID)
	if err != nil {
		log.Printf("mollie callback: loading company %s failed: %v", state.CompanyID, err)
		return c.Redirect(connectResultURL(false), fiber.StatusFound)
	}
	acc := company.Mollie

	// Resolve merchant identity and onboarding capability with the fresh
	// token before persisting, so the link lands complete in one write.
	client := mollieClient.WithToken(resp.AccessToken)
	if org, oerr := client.GetOrganization(c.Context()); oerr == nil {
		acc.OrganizationID = org.ID
	} else {
		log.Printf("mollie callback: organization lookup for company %s failed: %v", state.CompanyID, oerr)
	}
	acc.OnboardingStatus = models.OnboardingNeedsData
	if ob, oerr := client.GetOnboardingStatus(c.Context()); oerr == nil {
		acc.OnboardingStatus = ob.Status
		acc.CanReceivePayments = ob.CanReceivePayments
	} else {
		log.Printf("mollie callback: onboarding lookup for company %s failed: %v", state.CompanyID, oerr)
	}
	now := time.Now()
	acc.LinkedAt = &now

	if err := tokenManager.StoreTokens(state.CompanyID, &acc, resp); err != nil {
		log.Printf("mollie callback: storing tokens for company %s failed: %v", state.CompanyID, err)
		return c.Redirect(connectResultURL(false), fiber.StatusFound)
	}

	return c.Redirect(connectResultURL(true), fiber.StatusFound)
}

// HandleMollieDisconnect revokes the merchant link. Token revocation at the
// provider is best-effort; the local linkage is always cleared.
func HandleMollieDisconnect(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	companyID := c.Params("id")
	if companyID != userCtx.CompanyID && !userCtx.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Not your company"})
	}

	company, err := repository.GetGlobalFactory().GetCompanyRepository().GetByID(companyID)
	if err != nil {
		return apiError(c, err)
	}

	if refresh := tokenManager.DecodedRefreshToken(&company.Mollie); refresh != "" {
		if rerr := mollieClient.RevokeToken(c.Context(), refresh); rerr != nil {
			log.Printf("mollie disconnect: revoking token for company %s failed: %v", companyID, rerr)
		}
	}

	if err := tokenManager.ClearTokens(companyID); err != nil {
		return apiError(c, err)
	}
	return c.JSON(fiber.Map{"disconnected": true})
}
