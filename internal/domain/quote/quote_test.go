package quote

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "coinvoice/internal/domain/invoice/valueobjects"
)

// --- helpers ---

func newTestQuote(t *testing.T, ttl time.Duration) *Quote {
	t.Helper()
	q, err := NewQuote(1, vo.ChainTypeETH, vo.NewMoney(10000, "USD"), decimal.NewFromInt(2000), ttl)
	require.NoError(t, err)
	require.NotNil(t, q)
	return q
}

// =====================================================================
// TestNewQuote_*
// =====================================================================

func TestNewQuote_ComputesCryptoAmount(t *testing.T) {
	// $100.00 at 2000 USD/ETH is exactly 0.05 ETH.
	q := newTestQuote(t, 15*time.Minute)

	assert.True(t, strings.HasPrefix(q.SID(), "qt_"), "SID should carry the quote prefix")
	assert.True(t, q.CryptoAmount().Equal(decimal.RequireFromString("0.05")),
		"expected 0.05, got %s", q.CryptoAmount())
	assert.True(t, q.Rate().Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, 15*time.Minute, q.ExpiresAt().Sub(q.IssuedAt()))
	assert.False(t, q.Locked())
	assert.False(t, q.Superseded())
}

func TestNewQuote_RoundsToChainPrecision(t *testing.T) {
	// $100.00 at 3000 USD/ETH: 0.0333... rounded to 8 decimal places.
	q, err := NewQuote(1, vo.ChainTypeETH, vo.NewMoney(10000, "USD"), decimal.NewFromInt(3000), time.Minute)
	require.NoError(t, err)

	assert.True(t, q.CryptoAmount().Equal(decimal.RequireFromString("0.03333333")),
		"expected 0.03333333, got %s", q.CryptoAmount())
}

func TestNewQuote_DefaultTTL(t *testing.T) {
	q := newTestQuote(t, 0)
	assert.Equal(t, DefaultTTL, q.ExpiresAt().Sub(q.IssuedAt()))
}

func TestNewQuote_Validation(t *testing.T) {
	total := vo.NewMoney(10000, "USD")
	rate := decimal.NewFromInt(2000)

	_, err := NewQuote(0, vo.ChainTypeETH, total, rate, time.Minute)
	assert.Error(t, err, "invoice ID is required")

	_, err = NewQuote(1, vo.ChainType("DOGE"), total, rate, time.Minute)
	assert.Error(t, err, "invalid chain must be rejected")

	_, err = NewQuote(1, vo.ChainTypeETH, vo.NewMoney(0, "USD"), rate, time.Minute)
	assert.Error(t, err, "fiat total must be positive")

	_, err = NewQuote(1, vo.ChainTypeETH, total, decimal.Zero, time.Minute)
	assert.Error(t, err, "rate must be positive")

	_, err = NewQuote(1, vo.ChainTypeETH, total, decimal.NewFromInt(-5), time.Minute)
	assert.Error(t, err, "negative rate must be rejected")
}

// =====================================================================
// TestQuote_Expiry
// =====================================================================

func TestQuote_IsExpired(t *testing.T) {
	q := newTestQuote(t, 15*time.Minute)

	assert.False(t, q.IsExpired(q.IssuedAt().Add(time.Minute)))
	assert.True(t, q.IsExpired(q.ExpiresAt().Add(time.Second)))
}

func TestQuote_LockedQuoteNeverExpires(t *testing.T) {
	q := newTestQuote(t, time.Minute)
	require.NoError(t, q.Lock())

	assert.False(t, q.IsExpired(q.ExpiresAt().Add(24*time.Hour)),
		"a locked quote is frozen as the historical record")
}

func TestQuote_IsActive(t *testing.T) {
	q := newTestQuote(t, 15*time.Minute)
	now := q.IssuedAt().Add(time.Minute)

	assert.True(t, q.IsActive(now))

	assert.False(t, q.IsActive(q.ExpiresAt().Add(time.Second)), "expired quote is not active")

	locked := newTestQuote(t, 15*time.Minute)
	require.NoError(t, locked.Lock())
	assert.False(t, locked.IsActive(now), "locked quote is not active")

	superseded := newTestQuote(t, 15*time.Minute)
	require.NoError(t, superseded.Supersede())
	assert.False(t, superseded.IsActive(now), "superseded quote is not active")
}

func TestQuote_WithinGrace(t *testing.T) {
	q := newTestQuote(t, 15*time.Minute)
	grace := time.Hour

	assert.True(t, q.WithinGrace(q.ExpiresAt().Add(30*time.Minute), grace))
	assert.False(t, q.WithinGrace(q.ExpiresAt().Add(grace+time.Second), grace))

	require.NoError(t, q.Supersede())
	assert.False(t, q.WithinGrace(q.IssuedAt(), grace), "superseded quote never matches")
}

func TestQuote_TimeRemaining(t *testing.T) {
	q := newTestQuote(t, 15*time.Minute)

	assert.Equal(t, 5*time.Minute, q.TimeRemaining(q.ExpiresAt().Add(-5*time.Minute)))
	assert.Equal(t, time.Duration(0), q.TimeRemaining(q.ExpiresAt().Add(time.Second)))
}

// =====================================================================
// TestQuote_LockAndSupersede
// =====================================================================

func TestQuote_Lock(t *testing.T) {
	q := newTestQuote(t, time.Minute)

	require.NoError(t, q.Lock())
	assert.True(t, q.Locked())
	require.NotNil(t, q.LockedAt())
	version := q.Version()

	require.NoError(t, q.Lock(), "locking an already-locked quote is a no-op")
	assert.Equal(t, version, q.Version())
}

func TestQuote_LockSupersededRejected(t *testing.T) {
	q := newTestQuote(t, time.Minute)
	require.NoError(t, q.Supersede())

	assert.Error(t, q.Lock())
}

func TestQuote_SupersedeLockedRejected(t *testing.T) {
	q := newTestQuote(t, time.Minute)
	require.NoError(t, q.Lock())

	assert.Error(t, q.Supersede())
	assert.False(t, q.Superseded())
}

func TestQuote_SupersedeIdempotent(t *testing.T) {
	q := newTestQuote(t, time.Minute)

	require.NoError(t, q.Supersede())
	version := q.Version()
	require.NoError(t, q.Supersede())
	assert.Equal(t, version, q.Version())
}
