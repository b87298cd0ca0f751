package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowRequestEnforcesBudget(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 14, 10, 30, 12, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ok, err := AllowRequest(db, 7, 3, now)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be within budget", i+1)
	}

	ok, err := AllowRequest(db, 7, 3, now)
	require.NoError(t, err)
	assert.False(t, ok, "fourth request in the window must be denied")
}

func TestAllowRequestWindowRollover(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 14, 10, 30, 59, 0, time.UTC)

	ok, err := AllowRequest(db, 7, 1, now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = AllowRequest(db, 7, 1, now)
	require.NoError(t, err)
	require.False(t, ok)

	// The next minute starts a fresh budget.
	ok, err = AllowRequest(db, 7, 1, now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowRequestBudgetsArePerKey(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	ok, err := AllowRequest(db, 1, 1, now)
	require.NoError(t, err)
	require.True(t, ok)

	// Key 1 is exhausted, key 2 is untouched.
	ok, err = AllowRequest(db, 1, 1, now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = AllowRequest(db, 2, 1, now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEffectiveRateLimit(t *testing.T) {
	assert.Equal(t, 60, EffectiveRateLimit(nil, 60))
	assert.Equal(t, 60, EffectiveRateLimit(&APIKey{}, 60))
	assert.Equal(t, 5, EffectiveRateLimit(&APIKey{RateLimitPerMinute: 5}, 60))
}
