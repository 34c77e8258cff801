package invoice

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "coinvoice/internal/domain/invoice/valueobjects"
)

// --- helpers ---

func nativeTarget(t *testing.T, asset string) vo.SettlementTarget {
	t.Helper()
	target, err := vo.NewNativeTarget(asset)
	require.NoError(t, err)
	return target
}

func fiatTarget(t *testing.T, currency string) vo.SettlementTarget {
	t.Helper()
	target, err := vo.NewFiatTarget(currency)
	require.NoError(t, err)
	return target
}

func newTestInvoice(t *testing.T, target vo.SettlementTarget) *Invoice {
	t.Helper()
	inv, err := NewInvoice(1, vo.NewMoney(10000, "USD"), []vo.ChainType{vo.ChainTypeETH, vo.ChainTypeBTC}, target)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv
}

func paidInvoice(t *testing.T, target vo.SettlementTarget) *Invoice {
	t.Helper()
	inv := newTestInvoice(t, target)
	require.NoError(t, inv.MarkSent())
	require.NoError(t, inv.MarkPaidDetected())
	return inv
}

// =====================================================================
// TestNewInvoice_*
// =====================================================================

func TestNewInvoice_ValidInput(t *testing.T) {
	inv := newTestInvoice(t, nativeTarget(t, "ETH"))

	assert.True(t, strings.HasPrefix(inv.SID(), "inv_"), "SID should carry the invoice prefix")
	assert.Equal(t, vo.InvoiceStatusPending, inv.Status())
	assert.Equal(t, uint(1), inv.MerchantID())
	assert.Equal(t, int64(10000), inv.Total().AmountMinor())
	assert.Len(t, inv.EnabledChains(), 2)
	assert.WithinDuration(t, time.Now().UTC().Add(DefaultValidity), inv.ExpiredAt(), 5*time.Second)
	assert.Empty(t, inv.Metadata())
}

func TestNewInvoice_Validation(t *testing.T) {
	target := nativeTarget(t, "ETH")
	total := vo.NewMoney(10000, "USD")
	chains := []vo.ChainType{vo.ChainTypeETH}

	_, err := NewInvoice(0, total, chains, target)
	assert.Error(t, err, "merchant ID is required")

	_, err = NewInvoice(1, vo.NewMoney(0, "USD"), chains, target)
	assert.Error(t, err, "total must be positive")

	_, err = NewInvoice(1, total, nil, target)
	assert.Error(t, err, "at least one chain is required")

	_, err = NewInvoice(1, total, []vo.ChainType{vo.ChainType("DOGE")}, target)
	assert.Error(t, err, "invalid chain must be rejected")

	_, err = NewInvoice(1, total, []vo.ChainType{vo.ChainTypeETH, vo.ChainTypeETH}, target)
	assert.Error(t, err, "duplicate chains must be rejected")
}

// =====================================================================
// TestInvoice_Transitions
// =====================================================================

func TestInvoice_NativePathWithoutConversion(t *testing.T) {
	inv := paidInvoice(t, nativeTarget(t, "ETH"))

	require.NoError(t, inv.MarkSettling())
	assert.Equal(t, vo.InvoiceStatusSettling, inv.Status())

	require.NoError(t, inv.Complete())
	assert.Equal(t, vo.InvoiceStatusComplete, inv.Status())
	assert.True(t, inv.Status().IsTerminal())
}

func TestInvoice_ConversionPath(t *testing.T) {
	inv := paidInvoice(t, nativeTarget(t, "BTC"))

	require.NoError(t, inv.BeginConversion())
	assert.Equal(t, vo.InvoiceStatusConverting, inv.Status())

	require.NoError(t, inv.MarkSettling())
	require.NoError(t, inv.Complete())
	assert.Equal(t, vo.InvoiceStatusComplete, inv.Status())
}

func TestInvoice_FiatCashOutPath(t *testing.T) {
	inv := paidInvoice(t, fiatTarget(t, "USD"))

	require.NoError(t, inv.BeginConversion())
	require.NoError(t, inv.MarkSettling())
	require.NoError(t, inv.MarkCashedOut())
	assert.Equal(t, vo.InvoiceStatusCashedOut, inv.Status())

	require.NoError(t, inv.Complete())
	assert.Equal(t, vo.InvoiceStatusComplete, inv.Status())
}

func TestInvoice_CashOutRequiresFiatTarget(t *testing.T) {
	inv := paidInvoice(t, nativeTarget(t, "ETH"))
	require.NoError(t, inv.MarkSettling())

	err := inv.MarkCashedOut()
	assert.Error(t, err, "cash-out must be rejected for native settlement targets")
	assert.Equal(t, vo.InvoiceStatusSettling, inv.Status())
}

func TestInvoice_TransitionsAreIdempotent(t *testing.T) {
	inv := newTestInvoice(t, nativeTarget(t, "ETH"))

	require.NoError(t, inv.MarkSent())
	versionAfterSent := inv.Version()

	require.NoError(t, inv.MarkSent(), "re-applying the producing transition is a no-op")
	assert.Equal(t, versionAfterSent, inv.Version(), "no-op must not bump the version")
	assert.Equal(t, vo.InvoiceStatusSent, inv.Status())

	require.NoError(t, inv.MarkPaidDetected())
	require.NoError(t, inv.MarkPaidDetected())
	assert.Equal(t, vo.InvoiceStatusPaidDetected, inv.Status())
}

func TestInvoice_InvalidTransitions(t *testing.T) {
	inv := newTestInvoice(t, nativeTarget(t, "ETH"))

	assert.Error(t, inv.MarkPaidDetected(), "cannot detect payment before the invoice is sent")
	assert.Error(t, inv.BeginConversion(), "cannot convert before payment is detected")
	assert.Error(t, inv.MarkSettling(), "cannot settle before payment is detected")
	assert.Error(t, inv.Complete(), "cannot complete a pending invoice")
	assert.Equal(t, vo.InvoiceStatusPending, inv.Status())
}

// =====================================================================
// TestInvoice_Cancel
// =====================================================================

func TestInvoice_CancelBeforePayment(t *testing.T) {
	inv := newTestInvoice(t, nativeTarget(t, "ETH"))
	require.NoError(t, inv.MarkSent())

	require.NoError(t, inv.Cancel())
	assert.Equal(t, vo.InvoiceStatusCancelled, inv.Status())

	require.NoError(t, inv.Cancel(), "cancelling twice is a no-op")
}

func TestInvoice_CancelAfterPaymentRejected(t *testing.T) {
	inv := paidInvoice(t, nativeTarget(t, "ETH"))

	err := inv.Cancel()
	require.ErrorIs(t, err, ErrPaymentAlreadyDetected)
	assert.Equal(t, vo.InvoiceStatusPaidDetected, inv.Status(), "status must be unchanged")
}

func TestInvoice_CancelCompletedRejected(t *testing.T) {
	inv := paidInvoice(t, nativeTarget(t, "ETH"))
	require.NoError(t, inv.MarkSettling())
	require.NoError(t, inv.Complete())

	assert.Error(t, inv.Cancel())
}

func TestInvoice_PaymentOnCancelledInvoice(t *testing.T) {
	inv := newTestInvoice(t, nativeTarget(t, "ETH"))
	require.NoError(t, inv.MarkSent())
	require.NoError(t, inv.Cancel())

	err := inv.MarkPaidDetected()
	require.ErrorIs(t, err, ErrInvoiceCancelled)
	assert.Equal(t, vo.InvoiceStatusCancelled, inv.Status())
}

// =====================================================================
// TestInvoice_Expiry
// =====================================================================

func TestInvoice_IsExpired(t *testing.T) {
	now := time.Now().UTC()
	target := nativeTarget(t, "ETH")

	expired := Reconstruct(ReconstructParams{
		ID: 1, SID: "inv_expired1", MerchantID: 1,
		Total:            vo.NewMoney(10000, "USD"),
		EnabledChains:    []vo.ChainType{vo.ChainTypeETH},
		SettlementTarget: target,
		Status:           vo.InvoiceStatusSent,
		ExpiredAt:        now.Add(-time.Hour),
		CreatedAt:        now.Add(-25 * time.Hour),
		UpdatedAt:        now.Add(-25 * time.Hour),
	})
	assert.True(t, expired.IsExpired())

	paid := Reconstruct(ReconstructParams{
		ID: 2, SID: "inv_paid1", MerchantID: 1,
		Total:            vo.NewMoney(10000, "USD"),
		EnabledChains:    []vo.ChainType{vo.ChainTypeETH},
		SettlementTarget: target,
		Status:           vo.InvoiceStatusPaidDetected,
		ExpiredAt:        now.Add(-time.Hour),
		CreatedAt:        now.Add(-25 * time.Hour),
		UpdatedAt:        now,
	})
	assert.False(t, paid.IsExpired(), "a paid invoice never expires")
}

func TestInvoice_ChainEnabled(t *testing.T) {
	inv := newTestInvoice(t, nativeTarget(t, "ETH"))

	assert.True(t, inv.ChainEnabled(vo.ChainTypeETH))
	assert.True(t, inv.ChainEnabled(vo.ChainTypeBTC))
	assert.False(t, inv.ChainEnabled(vo.ChainTypeSOL))
}

func TestInvoice_Metadata(t *testing.T) {
	inv := newTestInvoice(t, nativeTarget(t, "ETH"))

	inv.SetMetadata("converted_amount", "0.05")
	assert.Equal(t, "0.05", inv.Metadata()["converted_amount"])
}
