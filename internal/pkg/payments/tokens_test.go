package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/security"
)

func newTokenFixture(t *testing.T) (*TokenManager, *fakeRepo, *fakeMollie, func()) {
	t.Helper()
	provider := &fakeMollie{
		paymentStatus: make(map[string]string),
		paymentMeta:   make(map[string]string),
	}
	srv := provider.server(t)

	base := &MollieClient{
		ClientID:     "app_test",
		ClientSecret: "secret_test",
		APIBaseURL:   srv.URL,
		TokenURL:     srv.URL + "/oauth2/tokens",
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
			AccessTokenEnc:   accessEnc,
			RefreshTokenEnc:  refreshEnc,
			TokenMode:        mode,
			OnboardingStatus: models.OnboardingCompleted,
		},
	}

	return NewTokenManager(repo, base), repo, provider, srv.Close
}

func TestValidClient_UsesStoredToken(t *testing.T) {
	tm, _, provider, done := newTokenFixture(t)
	defer done()

	client, acc, err := tm.ValidClient(context.Background(), "co_1")
	require.NoError(t, err)
	assert.Equal(t, "access_stored", client.AccessToken)
	assert.True(t, acc.Linked())
	assert.Equal(t, 0, provider.refreshCalls, "a valid token must not trigger a refresh")
}

func TestValidClient_NoTokensIsConflict(t *testing.T) {
	tm, repo, _, done := newTokenFixture(t)
	defer done()
	repo.companies["co_1"].Mollie = models.MollieAccount{}

	_, _, err := tm.ValidClient(context.Background(), "co_1")
	require.ErrorIs(t, err, ErrConflict)
}

func TestValidClient_RefreshesBeforeExpiry(t *testing.T) {
	tm, repo, provider, done := newTokenFixture(t)
	defer done()

	// Expires inside the refresh skew window: still formally valid, but the
	// manager must exchange it up front.
	exp := time.Now().Add(30 * time.Second)
	repo.companies["co_1"].Mollie.TokenExpiresAt = &exp

	client, _, err := tm.ValidClient(context.Background(), "co_1")
	require.NoError(t, err)
	assert.Equal(t, "access_fresh", client.AccessToken)
	assert.Equal(t, 1, provider.refreshCalls)

	co, err := repo.GetCompany("co_1")
	require.NoError(t, err)
	assert.Equal(t, "access_fresh", security.DecodeToken(co.Mollie.AccessTokenEnc, co.Mollie.TokenMode, nil))
	assert.Equal(t, "refresh_fresh", security.DecodeToken(co.Mollie.RefreshTokenEnc, co.Mollie.TokenMode, nil))
	require.NotNil(t, co.Mollie.TokenExpiresAt)
	assert.True(t, co.Mollie.TokenExpiresAt.After(time.Now().Add(time.Minute)))
}

func TestValidClient_ExpiredWithoutRefreshToken(t *testing.T) {
	tm, repo, _, done := newTokenFixture(t)
	defer done()

	exp := time.Now().Add(-time.Hour)
	repo.companies["co_1"].Mollie.TokenExpiresAt = &exp
	repo.companies["co_1"].Mollie.RefreshTokenEnc = ""

	_, _, err := tm.ValidClient(context.Background(), "co_1")
	require.ErrorIs(t, err, ErrConflict)
}

func TestWithAutoRefresh_PersistentAuthFailureRetriesOnce(t *testing.T) {
	tm, _, _, done := newTokenFixture(t)
	defer done()

	calls := 0
	err := tm.WithAutoRefresh(context.Background(), "co_1", func(client *MollieClient) error {
		calls++
		return errAuth
	})
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, 2, calls, "exactly one refresh-and-retry cycle")
}

func TestStoreTokens_KeepsPriorRefreshTokenWhenOmitted(t *testing.T) {
	tm, repo, _, done := newTokenFixture(t)
	defer done()

	co, err := repo.GetCompany("co_1")
	require.NoError(t, err)
	acc := co.Mollie
	priorRefresh := acc.RefreshTokenEnc

	err = tm.StoreTokens("co_1", &acc, &TokenResponse{AccessToken: "access_new", ExpiresIn: 3600})
	require.NoError(t, err)

	co, err = repo.GetCompany("co_1")
	require.NoError(t, err)
	assert.Equal(t, "access_new", security.DecodeToken(co.Mollie.AccessTokenEnc, co.Mollie.TokenMode, nil))
	assert.Equal(t, priorRefresh, co.Mollie.RefreshTokenEnc)
}

func TestStoreTokens_NeverPersistsPlaintext(t *testing.T) {
	tm, repo, _, done := newTokenFixture(t)
	defer done()

	co, err := repo.GetCompany("co_1")
	require.NoError(t, err)
	acc := co.Mollie

	err = tm.StoreTokens("co_1", &acc, &TokenResponse{AccessToken: "access_new", RefreshToken: "refresh_new"})
	require.NoError(t, err)

	co, err = repo.GetCompany("co_1")
	require.NoError(t, err)
	assert.NotEqual(t, "access_new", co.Mollie.AccessTokenEnc)
	assert.NotEqual(t, "refresh_new", co.Mollie.RefreshTokenEnc)
	assert.Empty(t, co.Mollie.LegacyAccessToken)
	assert.Empty(t, co.Mollie.LegacyRefreshToken)
}

func TestClearTokens_ResetsLinkage(t *testing.T) {
	tm, repo, _, done := newTokenFixture(t)
	defer done()

	require.NoError(t, tm.ClearTokens("co_1"))

	co, err := repo.GetCompany("co_1")
	require.NoError(t, err)
	assert.Empty(t, co.Mollie.AccessTokenEnc)
	assert.Empty(t, co.Mollie.RefreshTokenEnc)
	assert.Equal(t, models.OnboardingNotLinked, co.Mollie.OnboardingStatus)
	assert.False(t, co.Mollie.Linked())
}
