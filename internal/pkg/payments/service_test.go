package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/security"
)

// fakeRepo is an in-memory Repository for service tests. UpdateBookingTx
// applies the mutation function directly; the production implementation adds
// row locking on top of the same contract.
type fakeRepo struct {
	mu        sync.Mutex
	bookings  map[string]*models.Booking
	companies map[string]*models.Company
	services  map[string]*models.Service
	events    []*models.PaymentEvent
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		bookings:  make(map[string]*models.Booking),
		companies: make(map[string]*models.Company),
		services:  make(map[string]*models.Service),
	}
}

func (r *fakeRepo) GetBooking(id string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	cp := *b
	return &cp, nil
}

func (r *fakeRepo) GetBookingByPaymentID(paymentID string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.Payment.PaymentID == paymentID || b.MolliePaymentID == paymentID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: no booking for payment %s", ErrNotFound, paymentID)
}

func (r *fakeRepo) UpdateBookingTx(id string, fn func(b *models.Booking) (bool, error)) (*models.Booking, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, false, fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	work := *b
	apply, err := fn(&work)
	if err != nil {
		return nil, false, err
	}
	if apply {
		*b = work
	}
	cp := work
	return &cp, apply, nil
}

func (r *fakeRepo) GetCompany(id string) (*models.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return nil, fmt.Errorf("%w: company %s", ErrNotFound, id)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeRepo) SaveCompanyMollie(companyID string, acc models.MollieAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[companyID]
	if !ok {
		return fmt.Errorf("%w: company %s", ErrNotFound, companyID)
	}
	acc.LegacyAccessToken = ""
	acc.LegacyRefreshToken = ""
	c.Mollie = acc
	return nil
}

func (r *fakeRepo) GetService(id string) (*models.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: service %s", ErrNotFound, id)
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) CreatePaymentEvent(ev *models.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = uint(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeRepo) MarkPaymentEventProcessed(id uint, changed bool, processingErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id {
			now := time.Now()
			ev.ProcessedAt = &now
			ev.Changed = changed
			if processingErr != nil {
				ev.ProcessingError = processingErr.Error()
			}
		}
	}
	return nil
}

func (r *fakeRepo) ListStalePendingPayments(olderThan time.Time, limit int) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for _, b := range r.bookings {
		if b.PaymentStatus != models.PaymentStatusPending || b.ProviderPaymentID() == "" {
			continue
		}
		if b.Payment.CreatedAt != nil && b.Payment.CreatedAt.Before(olderThan) {
			out = append(out, *b)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// fakeMollie is a scripted provider backend.
type fakeMollie struct {
	mu            sync.Mutex
	createCalls   int
	refundCalls   int
	paymentStatus map[string]string // payment id -> provider status
	paymentMeta   map[string]string // payment id -> metadata booking id
	rejectOnce    bool              // answer 401 to the next API call
	refreshCalls  int
}

func (f *fakeMollie) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth2/tokens", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.refreshCalls++
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(TokenResponse{
			AccessToken:  "access_fresh",
			RefreshToken: "refresh_fresh",
			ExpiresIn:    3600,
		})
	})

	mux.HandleFunc("/payments", func(w http.ResponseWriter, r *http.Request) {
		if f.reject(w) {
			return
		}
		f.mu.Lock()
		f.createCalls++
		id := fmt.Sprintf("tr_%d", f.createCalls)
		f.paymentStatus[id] = "open"
		f.mu.Unlock()

		var body struct {
			Metadata map[string]string `json:"metadata"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.paymentMeta[id] = body.Metadata["booking_id"]
		f.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":       id,
			"status":   "open",
			"metadata": body.Metadata,
			"_links":   map[string]interface{}{"checkout": map[string]string{"href": "https://pay.example/" + id}},
		})
	})

	mux.HandleFunc("/payments/", func(w http.ResponseWriter, r *http.Request) {
		if f.reject(w) {
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/payments/")
		if strings.HasSuffix(rest, "/refunds") {
			f.mu.Lock()
			f.refundCalls++
			n := f.refundCalls
			f.mu.Unlock()
			var body struct {
				Amount Amount `json:"amount"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     fmt.Sprintf("re_%d", n),
				"status": "pending",
				"amount": body.Amount,
			})
			return
		}

		f.mu.Lock()
		status, ok := f.paymentStatus[rest]
		meta := f.paymentMeta[rest]
		f.mu.Unlock()
		if !ok {
			http.Error(w, `{"status":404}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":       rest,
			"status":   status,
			"metadata": map[string]string{"booking_id": meta},
		})
	})

	return httptest.NewServer(mux)
}

func (f *fakeMollie) reject(w http.ResponseWriter) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectOnce {
		f.rejectOnce = false
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":401,"title":"Unauthorized"}`))
		return true
	}
	return false
}

func (f *fakeMollie) setStatus(paymentID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentStatus[paymentID] = status
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeMollie, func()) {
	t.Helper()
	provider := &fakeMollie{
		paymentStatus: make(map[string]string),
		paymentMeta:   make(map[string]string),
	}
	srv := provider.server(t)

	base := &MollieClient{
		ClientID:     "app_test",
		ClientSecret: "secret_test",
		RedirectURI:  "https://bookbeauty.example/api/v1/mollie/callback",
		APIBaseURL:   srv.URL,
		TokenURL:     srv.URL + "/oauth2/tokens",
		AuthorizeURL: defaultMollieAuthorizeURL,
		HTTPClient:   srv.Client(),
	}

	repo := newFakeRepo()
	accessEnc, mode, err := security.EncodeToken("access_stored", nil)
	require.NoError(t, err)
	refreshEnc, _, err := security.EncodeToken("refresh_stored", nil)
	require.NoError(t, err)
	repo.companies["co_1"] = &models.Company{
		ID:      "co_1",
		OwnerID: "user_owner",
		Name:    "Salon Zonnig",
		Mollie: models.MollieAccount{
			AccessTokenEnc:     accessEnc,
			RefreshTokenEnc:    refreshEnc,
			TokenMode:          mode,
			OrganizationID:     "org_1",
			OnboardingStatus:   models.OnboardingCompleted,
			CanReceivePayments: true,
		},
	}
	repo.services["svc_1"] = &models.Service{
		ID:          "svc_1",
		CompanyID:   "co_1",
		Name:        "Haircut deluxe",
		DurationMin: 45,
		Capacity:    1,
		PriceCents:  4500,
	}
	repo.bookings["bk_1"] = &models.Booking{
		ID:          "bk_1",
		CompanyID:   "co_1",
		ServiceID:   "svc_1",
		CustomerID:  "user_cust",
		StartsAt:    time.Now().Add(48 * time.Hour),
		DurationMin: 45,
		Capacity:    1,
		Status:      models.BookingStatusPending,
	}

	tm := NewTokenManager(repo, base)
	svc := NewService(repo, tm)
	return svc, repo, provider, srv.Close
}

var customer = Actor{UserID: "user_cust"}

func TestCreatePayment_IdempotentReuse(t *testing.T) {
	svc, _, provider, done := newTestService(t)
	defer done()
	ctx := context.Background()

	first, err := svc.CreatePayment(ctx, "bk_1", 0, customer)
	require.NoError(t, err)
	assert.False(t, first.Reused)
	assert.Equal(t, "tr_1", first.PaymentID)
	assert.Equal(t, int64(4500), first.AmountCents)
	assert.Equal(t, models.PaymentStatusPending, first.Status)
	assert.NotEmpty(t, first.CheckoutURL)

	second, err := svc.CreatePayment(ctx, "bk_1", 0, customer)
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.CheckoutURL, second.CheckoutURL)
	assert.Equal(t, 1, provider.createCalls, "second call must not create a second provider payment")
}

func TestCreatePayment_ExplicitAmountWins(t *testing.T) {
	svc, repo, _, done := newTestService(t)
	defer done()

	res, err := svc.CreatePayment(context.Background(), "bk_1", 9900, customer)
	require.NoError(t, err)
	assert.Equal(t, int64(9900), res.AmountCents)

	b, err := repo.GetBooking("bk_1")
	require.NoError(t, err)
	assert.Equal(t, int64(9900), b.AmountCents)
}

func TestCreatePayment_AlreadyPaid(t *testing.T) {
	svc, repo, _, done := newTestService(t)
	defer done()
	repo.bookings["bk_1"].PaymentStatus = models.PaymentStatusPaid

	_, err := svc.CreatePayment(context.Background(), "bk_1", 0, customer)
	require.ErrorIs(t, err, ErrConflict)
}

func TestCreatePayment_ForbiddenActor(t *testing.T) {
	svc, _, _, done := newTestService(t)
	defer done()

	_, err := svc.CreatePayment(context.Background(), "bk_1", 0, Actor{UserID: "someone_else"})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestSyncPayment_ExpiredMapsToFailed(t *testing.T) {
	svc, repo, provider, done := newTestService(t)
	defer done()
	ctx := context.Background()

	created, err := svc.CreatePayment(ctx, "bk_1", 0, customer)
	require.NoError(t, err)
	provider.setStatus(created.PaymentID, "expired")

	res, err := svc.SyncPayment(ctx, created.PaymentID, false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, models.PaymentStatusFailed, res.PaymentStatus)
	assert.Equal(t, "expired", res.MollieStatus)

	b, err := repo.GetBooking("bk_1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusFailed, b.Status)
}

func TestProcessWebhook_DuplicateDeliveryIsNoOp(t *testing.T) {
	svc, repo, provider, done := newTestService(t)
	defer done()
	ctx := context.Background()

	created, err := svc.CreatePayment(ctx, "bk_1", 0, customer)
	require.NoError(t, err)
	provider.setStatus(created.PaymentID, "paid")

	first := svc.ProcessWebhook(ctx, created.PaymentID, `{"id":"`+created.PaymentID+`"}`)
	assert.True(t, first.Changed)
	assert.Empty(t, first.Error)

	second := svc.ProcessWebhook(ctx, created.PaymentID, `{"id":"`+created.PaymentID+`"}`)
	assert.False(t, second.Changed)
	assert.Empty(t, second.Error)

	b, err := repo.GetBooking("bk_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, b.PaymentStatus)
	assert.Equal(t, models.BookingStatusConfirmed, b.Status)
	assert.Equal(t, 2, b.Payment.WebhookCount)
	assert.NotEmpty(t, b.CheckinCode)
	assert.Len(t, repo.events, 2)
}

func TestProcessWebhook_UnknownPaymentStillAccepted(t *testing.T) {
	svc, _, _, done := newTestService(t)
	defer done()

	res := svc.ProcessWebhook(context.Background(), "tr_unknown", `{}`)
	assert.False(t, res.Changed)
	assert.NotEmpty(t, res.Error)
}

func TestSyncPayment_MetadataMismatchSkipped(t *testing.T) {
	svc, repo, provider, done := newTestService(t)
	defer done()
	ctx := context.Background()

	created, err := svc.CreatePayment(ctx, "bk_1", 0, customer)
	require.NoError(t, err)
	provider.setStatus(created.PaymentID, "paid")
	provider.mu.Lock()
	provider.paymentMeta[created.PaymentID] = "bk_other"
	provider.mu.Unlock()

	res, err := svc.SyncPayment(ctx, created.PaymentID, false)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	b, err := repo.GetBooking("bk_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, b.PaymentStatus)
}

func TestCancelAndRefund_LateBreakdown(t *testing.T) {
	svc, repo, provider, done := newTestService(t)
	defer done()
	ctx := context.Background()

	created, err := svc.CreatePayment(ctx, "bk_1", 10000, customer)
	require.NoError(t, err)
	provider.setStatus(created.PaymentID, "paid")
	_, err = svc.SyncPayment(ctx, created.PaymentID, false)
	require.NoError(t, err)

	res, err := svc.CancelAndRefund(ctx, "bk_1", models.CancelTypeLate, "client no-show risk", customer)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), res.TotalCents)
	assert.Equal(t, int64(1500), res.HoldCents)
	assert.Equal(t, int64(120), res.PlatformKept)
	assert.Equal(t, int64(1380), res.CompanyKept)
	assert.Equal(t, int64(8500), res.RefundedCents)
	assert.Equal(t, models.BookingStatusCancelled, res.BookingStatus)
	assert.Equal(t, "re_1", res.MollieRefundID)

	// Idempotent short-circuit: no second provider refund.
	again, err := svc.CancelAndRefund(ctx, "bk_1", models.CancelTypeLate, "retry", customer)
	require.NoError(t, err)
	assert.True(t, again.AlreadyRefunded)
	assert.Equal(t, "re_1", again.MollieRefundID)
	assert.Equal(t, 1, provider.refundCalls)

	b, err := repo.GetBooking("bk_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, b.PaymentStatus)
	assert.Equal(t, b.Settlement.TotalCents, b.Settlement.HoldCents+b.Settlement.RefundedCents)
}

func TestCancelAndRefund_NormalIsFullRefund(t *testing.T) {
	svc, repo, provider, done := newTestService(t)
	defer done()
	ctx := context.Background()

	created, err := svc.CreatePayment(ctx, "bk_1", 10000, customer)
	require.NoError(t, err)
	provider.setStatus(created.PaymentID, "paid")
	_, err = svc.SyncPayment(ctx, created.PaymentID, false)
	require.NoError(t, err)

	res, err := svc.CancelAndRefund(ctx, "bk_1", models.CancelTypeNormal, "changed plans", customer)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.HoldCents)
	assert.Equal(t, int64(10000), res.RefundedCents)
	assert.Equal(t, models.BookingStatusRefunded, res.BookingStatus)

	b, err := repo.GetBooking("bk_1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusRefunded, b.Status)
}

func TestCancelAndRefund_UnpaidSettlesAtZero(t *testing.T) {
	svc, repo, provider, done := newTestService(t)
	defer done()

	res, err := svc.CancelAndRefund(context.Background(), "bk_1", models.CancelTypeNormal, "never paid", customer)
	require.NoError(t, err)
	assert.Empty(t, res.MollieRefundID)
	assert.Equal(t, models.BookingStatusCancelled, res.BookingStatus)
	assert.Equal(t, 0, provider.refundCalls)

	b, err := repo.GetBooking("bk_1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, b.Status)
}

func TestCancelAndRefund_Forbidden(t *testing.T) {
	svc, _, _, done := newTestService(t)
	defer done()

	_, err := svc.CancelAndRefund(context.Background(), "bk_1", models.CancelTypeNormal, "nope", Actor{UserID: "stranger"})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestWithAutoRefresh_SingleRetryOnAuthFailure(t *testing.T) {
	svc, repo, provider, done := newTestService(t)
	defer done()
	ctx := context.Background()

	created, err := svc.CreatePayment(ctx, "bk_1", 0, customer)
	require.NoError(t, err)
	provider.setStatus(created.PaymentID, "paid")

	// Next provider call answers 401; the manager must refresh once and
	// retry successfully.
	provider.mu.Lock()
	provider.rejectOnce = true
	provider.mu.Unlock()

	res, err := svc.SyncPayment(ctx, created.PaymentID, false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 1, provider.refreshCalls)

	// The refreshed pair was persisted encoded, never in plaintext.
	co, err := repo.GetCompany("co_1")
	require.NoError(t, err)
	assert.NotEqual(t, "access_fresh", co.Mollie.AccessTokenEnc)
	assert.NotEmpty(t, co.Mollie.AccessTokenEnc)
	assert.Equal(t, "access_fresh", security.DecodeToken(co.Mollie.AccessTokenEnc, co.Mollie.TokenMode, nil))
}
