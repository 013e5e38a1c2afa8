package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOAuthStateUsable(t *testing.T) {
	now := time.Now()
	fresh := OAuthState{State: "s1", ExpiresAt: now.Add(OAuthStateTTL)}
	assert.True(t, fresh.Usable(now))

	expired := OAuthState{State: "s2", ExpiresAt: now.Add(-time.Minute)}
	assert.False(t, expired.Usable(now))

	consumedAt := now.Add(-time.Second)
	consumed := OAuthState{State: "s3", ExpiresAt: now.Add(OAuthStateTTL), ConsumedAt: &consumedAt}
	assert.False(t, consumed.Usable(now), "a consumed state must never be redeemable again")
}
