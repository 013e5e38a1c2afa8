package controllers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
	"github.com/opslagbijjou-creator/bookbeauty-api/app/repository"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/payments"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/usercontext"
)

func actorFrom(c *fiber.Ctx) payments.Actor {
	userCtx := usercontext.GetUserContext(c)
	return payments.Actor{
		UserID:    userCtx.UserID,
		CompanyID: userCtx.CompanyID,
		IsAdmin:   userCtx.IsAdmin,
	}
}

type createPaymentRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

// HandleCreateBookingPayment opens (or returns the outstanding) provider
// payment for a booking and hands back the checkout URL.
func HandleCreateBookingPayment(c *fiber.Ctx) error {
	var req createPaymentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid JSON body")
		}
	}
	if req.AmountCents < 0 {
		return badRequest(c, "amount_cents must not be negative")
	}

	result, err := paymentService.CreatePayment(c.Context(), c.Params("id"), req.AmountCents, actorFrom(c))
	if err != nil {
		return apiError(c, err)
	}
	status := fiber.StatusCreated
	if result.Reused {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(result)
}

type cancelBookingRequest struct {
	CancelType string `json:"cancel_type"`
	Reason     string `json:"reason"`
}

// HandleCancelBooking cancels a booking and settles the refund per policy.
func HandleCancelBooking(c *fiber.Ctx) error {
	var req cancelBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}
	cancelType := req.CancelType
	if cancelType == "" {
		cancelType = models.CancelTypeNormal
	}
	if cancelType != models.CancelTypeNormal && cancelType != models.CancelTypeLate {
		return badRequest(c, "cancel_type must be normal or late")
	}

	result, err := paymentService.CancelAndRefund(c.Context(), c.Params("id"), cancelType, req.Reason, actorFrom(c))
	if err != nil {
		return apiError(c, err)
	}
	return c.JSON(result)
}

type syncPaymentRequest struct {
	PaymentID string `json:"payment_id"`
	BookingID string `json:"booking_id"`
}

// HandleSyncPayment re-fetches the provider state of one payment and applies
// it. The repair path when a webhook was missed; callers returning from
// checkout usually only know their booking id, so that is accepted too and
// resolved to the outstanding provider payment. Parameters come from the
// JSON body (POST) or the query string (GET).
func HandleSyncPayment(c *fiber.Ctx) error {
	req := syncPaymentRequest{
		PaymentID: c.Query("payment_id"),
		BookingID: c.Query("booking_id"),
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid JSON body")
		}
	}

	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" && strings.TrimSpace(req.BookingID) != "" {
		booking, err := repository.GetGlobalFactory().GetBookingRepository().GetByID(strings.TrimSpace(req.BookingID))
		if err != nil {
			return apiError(c, err)
		}
		paymentID = booking.ProviderPaymentID()
		if paymentID == "" {
			return badRequest(c, "Booking has no provider payment to sync")
		}
	}
	if paymentID == "" {
		return badRequest(c, "payment_id or booking_id is required")
	}

	result, err := paymentService.SyncPayment(c.Context(), paymentID, false)
	if err != nil {
		return apiError(c, err)
	}
	return c.JSON(result)
}

// HandleMollieWebhook ingests provider status notifications. The payment id
// arrives form-encoded ("id=tr_...") or as JSON; the response is 200 even on
// processing failure so the provider does not retry storms against us.
func HandleMollieWebhook(c *fiber.Ctx) error {
	paymentID := c.FormValue("id")
	if paymentID == "" {
		var body struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(c.Body(), &body); err == nil {
			paymentID = body.ID
		}
	}

	result := paymentService.ProcessWebhook(c.Context(), paymentID, string(c.Body()))
	return c.JSON(result)
}

// HandleMollieWebhookGet handles GET-delivered notifications carrying the
// payment id in the query string, and answers plain reachability checks
// without one.
func HandleMollieWebhookGet(c *fiber.Ctx) error {
	paymentID := c.Query("id")
	if paymentID == "" {
		return c.SendString("OK")
	}
	result := paymentService.ProcessWebhook(c.Context(), paymentID, c.Context().QueryArgs().String())
	return c.JSON(result)
}
