package payments

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/env"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/security"
)

// refreshSkew refreshes tokens this long before their recorded expiry so a
// provider call never departs with a token about to lapse mid-flight.
const refreshSkew = 60 * time.Second

// TokenManager hands out provider clients carrying a valid per-merchant
// access token, refreshing and re-encrypting transparently.
type TokenManager struct {
	repo  Repository
	base  *MollieClient
	key   []byte
	nowFn func() time.Time
}

// NewTokenManager builds a manager around the shared OAuth app client. The
// encryption key comes from MOLLIE_TOKEN_KEY (base64, hex or raw 32 bytes);
// without one tokens fall back to base64 opaquing.
func NewTokenManager(repo Repository, base *MollieClient) *TokenManager {
	return &TokenManager{
		repo:  repo,
		base:  base,
		key:   security.ParseKey(env.GetEnv("MOLLIE_TOKEN_KEY", "")),
		nowFn: time.Now,
	}
}

// ValidClient returns a client bound to a currently valid access token for
// the company, together with the account metadata. An expired or nearly
// expired token is exchanged first when a refresh token exists.
func (m *TokenManager) ValidClient(ctx context.Context, companyID string) (*MollieClient, *models.MollieAccount, error) {
	company, err := m.repo.GetCompany(companyID)
	if err != nil {
		return nil, nil, err
	}
	acc := company.Mollie

	access := security.DecodeToken(acc.AccessTokenEnc, acc.TokenMode, m.key)
	refresh := security.DecodeToken(acc.RefreshTokenEnc, acc.TokenMode, m.key)
	if access == "" && refresh == "" {
		return nil, nil, fmt.Errorf("%w: company %s has no linked payment account", ErrConflict, companyID)
	}

	if m.needsRefresh(&acc) || access == "" {
		if refresh == "" {
			return nil, nil, fmt.Errorf("%w: access token expired and no refresh token on file", ErrConflict)
		}
		fresh, err := m.refresh(ctx, companyID, &acc, refresh)
		if err != nil {
			return nil, nil, err
		}
		return m.base.WithToken(fresh), &acc, nil
	}

	return m.base.WithToken(access), &acc, nil
}

// WithAutoRefresh runs a provider call with the company's current token. On
// an authentication-class failure it performs exactly one refresh-and-retry
// cycle before propagating the error.
func (m *TokenManager) WithAutoRefresh(ctx context.Context, companyID string, run func(client *MollieClient) error) error {
	client, acc, err := m.ValidClient(ctx, companyID)
	if err != nil {
		return err
	}

	err = run(client)
	if err == nil || !IsAuthError(err) {
		return err
	}

	refresh := security.DecodeToken(acc.RefreshTokenEnc, acc.TokenMode, m.key)
	if refresh == "" {
		return fmt.Errorf("%w: provider rejected token and no refresh token on file", ErrConflict)
	}
	fresh, rerr := m.refresh(ctx, companyID, acc, refresh)
	if rerr != nil {
		return rerr
	}
	return run(m.base.WithToken(fresh))
}

func (m *TokenManager) needsRefresh(acc *models.MollieAccount) bool {
	if acc.TokenExpiresAt == nil {
		return false
	}
	return !m.nowFn().Add(refreshSkew).Before(*acc.TokenExpiresAt)
}

// refresh exchanges the refresh token, persists the new encrypted pair and
// mutates acc in place with the stored values. A failed exchange means the
// merchant link is dead and re-onboarding is required.
func (m *TokenManager) refresh(ctx context.Context, companyID string, acc *models.MollieAccount, refreshToken string) (string, error) {
	resp, err := m.base.RefreshToken(ctx, refreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: token refresh failed, merchant must re-link: %v", ErrConflict, err)
	}

	if err := m.StoreTokens(companyID, acc, resp); err != nil {
		return "", err
	}
	log.Printf("payments: refreshed mollie tokens for company %s", companyID)
	return resp.AccessToken, nil
}

// StoreTokens encodes and persists a token pair on the company record,
// updating acc in place. Raw tokens never reach storage.
func (m *TokenManager) StoreTokens(companyID string, acc *models.MollieAccount, resp *TokenResponse) error {
	accessEnc, mode, err := security.EncodeToken(resp.AccessToken, m.key)
	if err != nil {
		return err
	}
	refreshEnc := ""
	if resp.RefreshToken != "" {
		refreshEnc, _, err = security.EncodeToken(resp.RefreshToken, m.key)
		if err != nil {
			return err
		}
	} else {
		// Keep the previous refresh token when the provider omits one.
		refreshEnc = acc.RefreshTokenEnc
	}

	acc.AccessTokenEnc = accessEnc
	acc.RefreshTokenEnc = refreshEnc
	acc.TokenMode = mode
	if resp.ExpiresIn > 0 {
		exp := m.nowFn().Add(time.Duration(resp.ExpiresIn) * time.Second)
		acc.TokenExpiresAt = &exp
	} else {
		acc.TokenExpiresAt = nil
	}

	return m.repo.SaveCompanyMollie(companyID, *acc)
}

// ClearTokens wipes the stored linkage on disconnect.
func (m *TokenManager) ClearTokens(companyID string) error {
	return m.repo.SaveCompanyMollie(companyID, models.MollieAccount{
		OnboardingStatus: models.OnboardingNotLinked,
	})
}

// DecodedRefreshToken exposes the plaintext refresh token for revocation at
// disconnect. Empty when nothing decodable is stored.
func (m *TokenManager) DecodedRefreshToken(acc *models.MollieAccount) string {
	return security.DecodeToken(acc.RefreshTokenEnc, acc.TokenMode, m.key)
}
