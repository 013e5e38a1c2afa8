package payments

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/env"
)

// Actor is the authenticated identity performing a payment operation.
type Actor struct {
	UserID    string
	CompanyID string
	IsAdmin   bool
}

// Notifier delivers best-effort booking notifications. Delivery failure must
// never fail the payment transaction it is attached to; callers log and move
// on.
type Notifier interface {
	BookingConfirmed(b *models.Booking) error
}

// Service drives the provider payment lifecycle: creation, webhook/manual
// synchronization and cancellation with refund settlement.
type Service struct {
	repo     Repository
	tokens   *TokenManager
	notifier Notifier

	holdPercent        int64
	platformFeePercent int64
	publicBaseURL      string
	webhookBaseURL     string
}

// NewService builds the orchestrator. Percentages and base URLs come from
// the environment with the documented defaults.
func NewService(repo Repository, tokens *TokenManager) *Service {
	return &Service{
		repo:               repo,
		tokens:             tokens,
		holdPercent:        envInt("CANCEL_HOLD_PERCENT", DefaultHoldPercent),
		platformFeePercent: envInt("PLATFORM_FEE_PERCENT", DefaultPlatformFeePercent),
		publicBaseURL:      strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/"),
		webhookBaseURL:     strings.TrimRight(env.GetEnv("WEBHOOK_BASE_URL", ""), "/"),
	}
}

// SetNotifier attaches an optional confirmation notifier.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

func envInt(key string, def int64) int64 {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 || v > 100 {
		log.Printf("payments: invalid %s=%q, using default %d", key, raw, def)
		return def
	}
	return v
}

// CreatePaymentResult is the outcome of CreatePayment. Reused marks the
// idempotent path where an active payment already existed.
type CreatePaymentResult struct {
	PaymentID   string `json:"payment_id"`
	CheckoutURL string `json:"checkout_url"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
	Reused      bool   `json:"reused"`
}

// CreatePayment opens a provider payment for the booking, or returns the
// existing one unchanged when a non-terminal payment with a checkout URL is
// already outstanding. The resolved amount is written once, in integer
// cents, and never recomputed afterwards.
func (s *Service) CreatePayment(ctx context.Context, bookingID string, amountCentsOverride int64, actor Actor) (*CreatePaymentResult, error) {
	b, err := s.repo.GetBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(b, actor); err != nil {
		return nil, err
	}

	if b.PaymentStatus == models.PaymentStatusPaid {
		return nil, fmt.Errorf("%w: booking %s is already paid", ErrConflict, bookingID)
	}
	if b.HasActivePayment() && b.Payment.CheckoutURL != "" {
		return &CreatePaymentResult{
			PaymentID:   b.ProviderPaymentID(),
			CheckoutURL: b.Payment.CheckoutURL,
			Status:      b.PaymentStatus,
			AmountCents: b.AmountCents,
			Reused:      true,
		}, nil
	}

	amount, err := s.resolveAmount(b, amountCentsOverride)
	if err != nil {
		return nil, err
	}
	fee := PlatformFeeCents(amount, s.platformFeePercent)

	company, err := s.repo.GetCompany(b.CompanyID)
	if err != nil {
		return nil, err
	}

	var payment *Payment
	err = s.tokens.WithAutoRefresh(ctx, b.CompanyID, func(client *MollieClient) error {
		p, perr := client.CreatePayment(ctx, CreatePaymentRequest{
			AmountCents:      amount,
			Description:      fmt.Sprintf("Booking %s", b.ID),
			RedirectURL:      s.publicBaseURL + "/bookings/" + b.ID + "/return",
			WebhookURL:       s.webhookBaseURL + "/api/v1/payments/webhook",
			BookingID:        b.ID,
			PlatformFeeCents: fee,
			ProfileID:        company.Mollie.ProfileID,
		})
		if perr != nil {
			return perr
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &CreatePaymentResult{
		PaymentID:   payment.ID,
		CheckoutURL: payment.CheckoutURL(),
		Status:      models.PaymentStatusPending,
		AmountCents: amount,
	}

	_, _, err = s.repo.UpdateBookingTx(b.ID, func(cur *models.Booking) (bool, error) {
		if cur.PaymentStatus == models.PaymentStatusPaid {
			return false, fmt.Errorf("%w: booking %s is already paid", ErrConflict, bookingID)
		}
		// A concurrent request won the race; keep its payment and report
		// ours so the sweep can reconcile the orphaned provider payment.
		if cur.HasActivePayment() && cur.Payment.PaymentID != payment.ID {
			log.Printf("payments: booking %s already has active payment %s, orphaning %s",
				cur.ID, cur.Payment.PaymentID, payment.ID)
			result.PaymentID = cur.ProviderPaymentID()
			result.CheckoutURL = cur.Payment.CheckoutURL
			result.AmountCents = cur.AmountCents
			result.Reused = true
			return false, nil
		}

		now := time.Now()
		cur.AmountCents = amount
		cur.PaymentStatus = models.PaymentStatusPending
		cur.Payment.PaymentID = payment.ID
		cur.Payment.CheckoutURL = payment.CheckoutURL()
		cur.Payment.ProviderStatus = payment.Status
		cur.Payment.CreatedAt = &now
		cur.Payment.UpdatedAt = &now
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveAmount picks the authoritative amount once: an explicit positive
// override, else the amount already on the booking, else the service price.
func (s *Service) resolveAmount(b *models.Booking, override int64) (int64, error) {
	if override > 0 {
		return override, nil
	}
	if b.AmountCents > 0 {
		return b.AmountCents, nil
	}
	svc, err := s.repo.GetService(b.ServiceID)
	if err != nil {
		return 0, err
	}
	if svc.PriceCents <= 0 {
		return 0, fmt.Errorf("%w: no positive amount available for booking %s", ErrInvalidInput, b.ID)
	}
	return svc.PriceCents, nil
}

// SyncResult reports the outcome of one provider-state reconciliation.
type SyncResult struct {
	BookingID     string `json:"booking_id"`
	PaymentStatus string `json:"payment_status"`
	MollieStatus  string `json:"mollie_status"`
	Changed       bool   `json:"changed"`
}

// SyncPayment fetches the provider's current view of the payment and applies
// the mapped status inside a transaction, as a no-op when the stored
// (provider status, mapped status) pair is unchanged or already terminal.
// Safe to invoke any number of times for the same event.
func (s *Service) SyncPayment(ctx context.Context, paymentID string, fromWebhook bool) (*SyncResult, error) {
	b, err := s.repo.GetBookingByPaymentID(paymentID)
	if err != nil {
		return nil, err
	}

	var provider *Payment
	err = s.tokens.WithAutoRefresh(ctx, b.CompanyID, func(client *MollieClient) error {
		p, perr := client.GetPayment(ctx, paymentID)
		if perr != nil {
			return perr
		}
		provider = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Cross-check: a provider payment naming a different booking is a
	// collision (test vs. live mode, reused ids) and must not be applied.
	if metaID := provider.Metadata["booking_id"]; metaID != "" && metaID != b.ID {
		log.Printf("payments: payment %s metadata names booking %s, matched %s; skipping", paymentID, metaID, b.ID)
		return &SyncResult{
			BookingID:     b.ID,
			PaymentStatus: b.PaymentStatus,
			MollieStatus:  provider.Status,
			Changed:       false,
		}, nil
	}

	mapped := MollieStatusToPaymentStatus(provider.Status)

	statusChanged := false
	updated, _, err := s.repo.UpdateBookingTx(b.ID, func(cur *models.Booking) (bool, error) {
		if fromWebhook {
			cur.Payment.WebhookCount++
		}
		if cur.Payment.ProviderStatus == provider.Status && cur.PaymentStatus == mapped {
			return fromWebhook, nil // counter-only write on duplicate delivery
		}
		// Terminal states accept only idempotent re-application.
		if cur.PaymentTerminal() && cur.PaymentStatus != mapped {
			return fromWebhook, nil
		}

		now := time.Now()
		cur.Payment.ProviderStatus = provider.Status
		cur.Payment.UpdatedAt = &now
		cur.PaymentStatus = mapped
		cur.Status = PaymentStatusToBookingStatus(mapped)
		if mapped == models.PaymentStatusPaid && cur.CheckinCode == "" {
			cur.CheckinCode = generateCheckinCode()
			exp := cur.StartsAt.Add(time.Duration(cur.DurationMin) * time.Minute)
			cur.CheckinExpiresAt = &exp
		}
		statusChanged = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if statusChanged && mapped == models.PaymentStatusPaid && s.notifier != nil {
		// Best-effort: a failed mail never fails the status update.
		if nerr := s.notifier.BookingConfirmed(updated); nerr != nil {
			log.Printf("payments: confirmation notification for booking %s failed: %v", updated.ID, nerr)
		}
	}

	return &SyncResult{
		BookingID:     updated.ID,
		PaymentStatus: updated.PaymentStatus,
		MollieStatus:  provider.Status,
		Changed:       statusChanged,
	}, nil
}

// WebhookResult is always 200-class at the transport layer; Error carries
// any internal failure for the response body.
type WebhookResult struct {
	Changed bool   `json:"changed"`
	Error   string `json:"error,omitempty"`
}

// ProcessWebhook records the delivery and reconciles the named payment.
// It never returns an error: webhook providers expect a fast 2xx regardless
// of business outcome, and manual sync can repair anything missed.
func (s *Service) ProcessWebhook(ctx context.Context, paymentID, payloadJSON string) *WebhookResult {
	if strings.TrimSpace(paymentID) == "" {
		return &WebhookResult{Error: "missing payment id"}
	}

	ev := &models.PaymentEvent{
		Provider:          MollieProvider,
		ProviderPaymentID: paymentID,
		PayloadJSON:       payloadJSON,
	}
	if err := s.repo.CreatePaymentEvent(ev); err != nil {
		log.Printf("payments: recording webhook event for %s failed: %v", paymentID, err)
	}

	res, err := s.SyncPayment(ctx, paymentID, true)
	if err != nil {
		log.Printf("payments: webhook sync for %s failed: %v", paymentID, err)
		if ev.ID != 0 {
			_ = s.repo.MarkPaymentEventProcessed(ev.ID, false, err)
		}
		return &WebhookResult{Error: truncate(err.Error())}
	}
	if ev.ID != 0 {
		ev.BookingID = res.BookingID
		_ = s.repo.MarkPaymentEventProcessed(ev.ID, res.Changed, nil)
	}
	return &WebhookResult{Changed: res.Changed}
}

// CancelResult is the settlement outcome of a cancellation.
type CancelResult struct {
	BookingID       string `json:"booking_id"`
	BookingStatus   string `json:"booking_status"`
	MollieRefundID  string `json:"mollie_refund_id,omitempty"`
	TotalCents      int64  `json:"total_cents"`
	HoldCents       int64  `json:"hold_cents"`
	PlatformKept    int64  `json:"platform_kept_cents"`
	CompanyKept     int64  `json:"company_kept_cents"`
	RefundedCents   int64  `json:"refunded_cents"`
	AlreadyRefunded bool   `json:"already_refunded,omitempty"`
}

// CancelAndRefund cancels a booking. Paid bookings get a provider refund for
// exactly the policy-computed amount; unpaid ones settle at zero without a
// provider call. A second invocation short-circuits on the stored refund id.
func (s *Service) CancelAndRefund(ctx context.Context, bookingID, cancelType, reason string, actor Actor) (*CancelResult, error) {
	b, err := s.repo.GetBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(b, actor); err != nil {
		return nil, err
	}

	if b.Payment.RefundID != "" {
		return &CancelResult{
			BookingID:       b.ID,
			BookingStatus:   b.Status,
			MollieRefundID:  b.Payment.RefundID,
			TotalCents:      b.Settlement.TotalCents,
			HoldCents:       b.Settlement.HoldCents,
			PlatformKept:    b.Settlement.PlatformKeptCents,
			CompanyKept:     b.Settlement.CompanyKeptCents,
			RefundedCents:   b.Settlement.RefundedCents,
			AlreadyRefunded: true,
		}, nil
	}

	if b.PaymentStatus != models.PaymentStatusPaid {
		return s.cancelUnpaid(b, cancelType, reason, actor)
	}

	breakdown, err := ComputeRefund(b.AmountCents, cancelType, s.holdPercent, s.platformFeePercent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if breakdown.RefundedCents == 0 {
		return nil, fmt.Errorf("%w: computed refund amount is zero", ErrInvalidInput)
	}

	paymentID := b.ProviderPaymentID()
	if paymentID == "" {
		return nil, fmt.Errorf("%w: paid booking %s has no provider payment id", ErrInternal, b.ID)
	}

	var refund *Refund
	err = s.tokens.WithAutoRefresh(ctx, b.CompanyID, func(client *MollieClient) error {
		r, rerr := client.CreateRefund(ctx, paymentID, breakdown.RefundedCents, fmt.Sprintf("Cancellation of booking %s", b.ID))
		if rerr != nil {
			return rerr
		}
		refund = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	status := breakdown.BookingStatus()
	updated, _, err := s.repo.UpdateBookingTx(b.ID, func(cur *models.Booking) (bool, error) {
		if cur.Payment.RefundID != "" {
			// Lost a race against another cancellation; keep its outcome.
			return false, nil
		}
		now := time.Now()
		cur.Status = status
		cur.PaymentStatus = models.PaymentStatusRefunded
		cur.Payment.RefundID = refund.ID
		cur.Payment.RefundStatus = refund.Status
		cur.Payment.UpdatedAt = &now
		cur.Settlement = models.Settlement{
			TotalCents:        breakdown.TotalCents,
			HoldCents:         breakdown.HoldCents,
			PlatformKeptCents: breakdown.PlatformKeptCents,
			CompanyKeptCents:  breakdown.CompanyKeptCents,
			RefundedCents:     breakdown.RefundedCents,
			CancelType:        cancelType,
			CancelReason:      reason,
			CancelledBy:       actor.UserID,
			CancelledAt:       &now,
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	return &CancelResult{
		BookingID:      updated.ID,
		BookingStatus:  updated.Status,
		MollieRefundID: updated.Payment.RefundID,
		TotalCents:     updated.Settlement.TotalCents,
		HoldCents:      updated.Settlement.HoldCents,
		PlatformKept:   updated.Settlement.PlatformKeptCents,
		CompanyKept:    updated.Settlement.CompanyKeptCents,
		RefundedCents:  updated.Settlement.RefundedCents,
	}, nil
}

// cancelUnpaid settles a booking that never reached paid: zero-amount
// settlement, no provider call.
func (s *Service) cancelUnpaid(b *models.Booking, cancelType, reason string, actor Actor) (*CancelResult, error) {
	updated, _, err := s.repo.UpdateBookingTx(b.ID, func(cur *models.Booking) (bool, error) {
		if cur.PaymentStatus == models.PaymentStatusPaid {
			return false, fmt.Errorf("%w: booking was paid concurrently, retry the cancellation", ErrConflict)
		}
		if cur.Status == models.BookingStatusCancelled {
			return false, nil
		}
		now := time.Now()
		cur.Status = models.BookingStatusCancelled
		if cur.PaymentStatus == models.PaymentStatusPending {
			cur.PaymentStatus = models.PaymentStatusCanceled
		}
		cur.Settlement = models.Settlement{
			CancelType:   cancelType,
			CancelReason: reason,
			CancelledBy:  actor.UserID,
			CancelledAt:  &now,
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &CancelResult{
		BookingID:     updated.ID,
		BookingStatus: updated.Status,
	}, nil
}

// ReconcileStalePayments re-syncs pending payments whose provider payment
// was opened before olderThan but never reached a terminal state. This is
// the safety net for missed webhooks and for payments orphaned by a lost
// creation race. Individual sync failures are logged and skipped.
func (s *Service) ReconcileStalePayments(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	stale, err := s.repo.ListStalePendingPayments(olderThan, limit)
	if err != nil {
		return 0, err
	}

	changed := 0
	for i := range stale {
		b := &stale[i]
		res, serr := s.SyncPayment(ctx, b.ProviderPaymentID(), false)
		if serr != nil {
			log.Printf("payments: reconciling payment %s for booking %s failed: %v", b.ProviderPaymentID(), b.ID, serr)
			continue
		}
		if res.Changed {
			changed++
		}
	}
	if len(stale) > 0 {
		log.Printf("payments: reconciled %d stale payments, %d changed", len(stale), changed)
	}
	return changed, nil
}

// authorize allows the booking's customer, the owning company, or an admin.
func (s *Service) authorize(b *models.Booking, actor Actor) error {
	if actor.IsAdmin {
		return nil
	}
	if actor.UserID != "" && actor.UserID == b.CustomerID {
		return nil
	}
	if actor.CompanyID != "" && actor.CompanyID == b.CompanyID {
		return nil
	}
	return fmt.Errorf("%w: not permitted for booking %s", ErrForbidden, b.ID)
}

const checkinAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func generateCheckinCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	for i, v := range buf {
		buf[i] = checkinAlphabet[int(v)%len(checkinAlphabet)]
	}
	return string(buf)
}
