package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/env"
)

const (
	defaultMollieAPIBaseURL   = "https://api.mollie.com/v2"
	defaultMollieAuthorizeURL = "https://www.mollie.com/oauth2/authorize"
	defaultMollieTokenURL     = "https://api.mollie.com/oauth2/tokens"

	MollieProvider = "mollie"
)

// errAuth marks provider responses that indicate an invalid or expired
// access token; WithAutoRefresh keys its single retry off this.
var errAuth = errors.New("mollie: authentication failed")

// IsAuthError reports whether a provider call failed on authentication.
func IsAuthError(err error) bool {
	return errors.Is(err, errAuth)
}

// MollieClient is a minimal client for the Mollie payments and OAuth APIs.
// One instance is bound to a single access token.
type MollieClient struct {
	AccessToken  string
	ClientID     string
	ClientSecret string
	RedirectURI  string

	APIBaseURL   string
	AuthorizeURL string
	TokenURL     string

	HTTPClient *http.Client
}

// NewMollieClientFromEnv builds a client carrying the OAuth app credentials;
// per-merchant access tokens are attached by the token manager.
func NewMollieClientFromEnv() *MollieClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	redirectURI := strings.TrimSpace(env.GetEnv("MOLLIE_REDIRECT_URI", ""))
	if redirectURI == "" && base != "" {
		redirectURI = base + "/api/v1/mollie/callback"
	}

	return &MollieClient{
		ClientID:     strings.TrimSpace(env.GetEnv("MOLLIE_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("MOLLIE_CLIENT_SECRET", "")),
		RedirectURI:  redirectURI,
		APIBaseURL:   strings.TrimSpace(env.GetEnv("MOLLIE_API_BASE_URL", defaultMollieAPIBaseURL)),
		AuthorizeURL: strings.TrimSpace(env.GetEnv("MOLLIE_AUTHORIZE_URL", defaultMollieAuthorizeURL)),
		TokenURL:     strings.TrimSpace(env.GetEnv("MOLLIE_TOKEN_URL", defaultMollieTokenURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// WithToken returns a shallow copy bound to the given access token.
func (c *MollieClient) WithToken(accessToken string) *MollieClient {
	cp := *c
	cp.AccessToken = accessToken
	return &cp
}

// Amount is Mollie's decimal-string money representation.
type Amount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

// AmountFromCents renders integer eurocents as a Mollie amount value. Cents
// are the authoritative unit everywhere else; this is formatting only.
func AmountFromCents(cents int64) Amount {
	return Amount{
		Currency: "EUR",
		Value:    fmt.Sprintf("%d.%02d", cents/100, cents%100),
	}
}

// Payment is the subset of Mollie's payment resource this service consumes.
type Payment struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Amount   Amount            `json:"amount"`
	Metadata map[string]string `json:"metadata"`
	Links    struct {
		Checkout struct {
			Href string `json:"href"`
		} `json:"checkout"`
	} `json:"_links"`
}

// CheckoutURL returns the hosted checkout link, empty for terminal payments.
func (p *Payment) CheckoutURL() string {
	return p.Links.Checkout.Href
}

// Refund is the subset of Mollie's refund resource this service consumes.
type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount Amount `json:"amount"`
}

// TokenResponse is the OAuth token endpoint response shape.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// Organization identifies the connected merchant on Mollie's side.
type Organization struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Locale string `json:"locale"`
}

// OnboardingStatus reflects whether the merchant can already receive money.
type OnboardingStatus struct {
	Status             string `json:"status"`
	CanReceivePayments bool   `json:"canReceivePayments"`
}

// CreatePaymentRequest carries everything needed to open a checkout.
type CreatePaymentRequest struct {
	AmountCents      int64
	Description      string
	RedirectURL      string
	WebhookURL       string
	BookingID        string
	PlatformFeeCents int64
	ProfileID        string
}

// CreatePayment opens a new provider payment and returns its id, checkout
// URL and initial status.
func (c *MollieClient) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	body := map[string]interface{}{
		"amount":      AmountFromCents(req.AmountCents),
		"description": req.Description,
		"redirectUrl": req.RedirectURL,
		"metadata":    map[string]string{"booking_id": req.BookingID},
	}
	if req.WebhookURL != "" {
		body["webhookUrl"] = req.WebhookURL
	}
	if req.ProfileID != "" {
		body["profileId"] = req.ProfileID
	}
	if req.PlatformFeeCents > 0 {
		body["applicationFee"] = map[string]interface{}{
			"amount":      AmountFromCents(req.PlatformFeeCents),
			"description": "platform fee",
		}
	}

	var out Payment
	if err := c.do(ctx, http.MethodPost, "/payments", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPayment fetches the current provider state of a payment.
func (c *MollieClient) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, fmt.Errorf("%w: payment id is required", ErrInvalidInput)
	}
	var out Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRefund refunds exactly amountCents of the given payment.
func (c *MollieClient) CreateRefund(ctx context.Context, paymentID string, amountCents int64, description string) (*Refund, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, fmt.Errorf("%w: payment id is required", ErrInvalidInput)
	}
	if amountCents <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", ErrInvalidInput)
	}
	body := map[string]interface{}{
		"amount":      AmountFromCents(amountCents),
		"description": description,
	}
	var out Refund
	if err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/refunds", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrganization resolves the connected merchant's organization.
func (c *MollieClient) GetOrganization(ctx context.Context) (*Organization, error) {
	var out Organization
	if err := c.do(ctx, http.MethodGet, "/organizations/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOnboardingStatus resolves the merchant's onboarding capability flags.
func (c *MollieClient) GetOnboardingStatus(ctx context.Context) (*OnboardingStatus, error) {
	var out OnboardingStatus
	if err := c.do(ctx, http.MethodGet, "/onboarding/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthorizeURLWithState builds the merchant authorization redirect.
func (c *MollieClient) AuthorizeURLWithState(state string) (string, error) {
	if strings.TrimSpace(c.ClientID) == "" {
		return "", errors.New("MOLLIE_CLIENT_ID is not configured")
	}
	if strings.TrimSpace(c.RedirectURI) == "" {
		return "", errors.New("MOLLIE_REDIRECT_URI is not configured")
	}
	u, err := url.Parse(c.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("invalid MOLLIE_AUTHORIZE_URL: %w", err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", c.RedirectURI)
	q.Set("scope", "payments.read payments.write refunds.write organizations.read onboarding.read profiles.read")
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode trades an authorization code for the first token pair.
func (c *MollieClient) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("oauth code is required")
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", strings.TrimSpace(code))
	form.Set("redirect_uri", c.RedirectURI)
	return c.tokenRequest(ctx, form)
}

// RefreshToken exchanges a refresh token for a fresh access/refresh pair.
func (c *MollieClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, errors.New("refresh token is required")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", strings.TrimSpace(refreshToken))
	return c.tokenRequest(ctx, form)
}

// RevokeToken invalidates a refresh token on disconnect. Failures are
// reported but a disconnect proceeds regardless; the local tokens are gone.
func (c *MollieClient) RevokeToken(ctx context.Context, refreshToken string) error {
	form := url.Values{}
	form.Set("token_type_hint", "refresh_token")
	form.Set("token", strings.TrimSpace(refreshToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("%w: token revoke failed: status=%d body=%s", ErrUpstream, resp.StatusCode, truncate(string(body)))
	}
	return nil
}

func (c *MollieClient) tokenRequest(ctx context.Context, form url.Values) (*TokenResponse, error) {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return nil, errors.New("MOLLIE_CLIENT_ID/MOLLIE_CLIENT_SECRET are not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUpstream, truncate(err.Error()))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: token request failed: status=%d body=%s", ErrUpstream, resp.StatusCode, truncate(string(body)))
	}

	var out TokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, errors.New("token response missing access_token")
	}
	return &out, nil
}

func (c *MollieClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.APIBaseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUpstream, truncate(err.Error()))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: status=401 body=%s", errAuth, truncate(string(respBody)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s failed: status=%d body=%s", ErrUpstream, method, path, resp.StatusCode, truncate(string(respBody)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// MollieStatusToPaymentStatus maps the provider status vocabulary onto the
// booking's internal payment status. Unknown statuses stay pending so a later
// webhook or sync can settle them.
func MollieStatusToPaymentStatus(mollieStatus string) string {
	switch strings.ToLower(strings.TrimSpace(mollieStatus)) {
	case "paid":
		return models.PaymentStatusPaid
	case "failed", "expired":
		return models.PaymentStatusFailed
	case "canceled":
		return models.PaymentStatusCanceled
	case "authorized", "pending", "open":
		return models.PaymentStatusPending
	default:
		return models.PaymentStatusPending
	}
}

// PaymentStatusToBookingStatus derives the booking's overall status from a
// payment transition. Only provider-confirmed paths may produce paid.
func PaymentStatusToBookingStatus(paymentStatus string) string {
	switch paymentStatus {
	case models.PaymentStatusPaid:
		return models.BookingStatusConfirmed
	case models.PaymentStatusFailed:
		return models.BookingStatusFailed
	case models.PaymentStatusCanceled:
		return models.BookingStatusCancelled
	case models.PaymentStatusRefunded:
		return models.BookingStatusRefunded
	default:
		return models.BookingStatusPending
	}
}
