package usecases

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinvoice/internal/application/pipeline/providers"
	"coinvoice/internal/domain/invoice"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/domain/payment"
	"coinvoice/internal/domain/pipeline"
	"coinvoice/internal/shared/logger"
)

// --- fakes ---

type fakeInvoiceRepo struct {
	invoices map[uint]*invoice.Invoice
}

func (f *fakeInvoiceRepo) Create(ctx context.Context, inv *invoice.Invoice) error { return nil }
func (f *fakeInvoiceRepo) Update(ctx context.Context, inv *invoice.Invoice) error {
	f.invoices[inv.ID()] = inv
	return nil
}
func (f *fakeInvoiceRepo) GetByID(ctx context.Context, id uint) (*invoice.Invoice, error) {
	if inv, ok := f.invoices[id]; ok {
		return inv, nil
	}
	return nil, fmt.Errorf("invoice %d not found", id)
}
func (f *fakeInvoiceRepo) GetBySID(ctx context.Context, sid string) (*invoice.Invoice, error) {
	for _, inv := range f.invoices {
		if inv.SID() == sid {
			return inv, nil
		}
	}
	return nil, fmt.Errorf("invoice %s not found", sid)
}
func (f *fakeInvoiceRepo) ListNonTerminal(ctx context.Context) ([]*invoice.Invoice, error) {
	return nil, nil
}
func (f *fakeInvoiceRepo) ListExpired(ctx context.Context) ([]*invoice.Invoice, error) {
	return nil, nil
}

type fakePaymentRepo struct {
	records map[uint]*payment.PaymentRecord
}

func (f *fakePaymentRepo) Create(ctx context.Context, rec *payment.PaymentRecord) error { return nil }
func (f *fakePaymentRepo) GetByInvoiceID(ctx context.Context, invoiceID uint) (*payment.PaymentRecord, error) {
	return f.records[invoiceID], nil
}
func (f *fakePaymentRepo) ExistsForInvoice(ctx context.Context, invoiceID uint) (bool, error) {
	_, ok := f.records[invoiceID]
	return ok, nil
}

type fakeStepRepo struct {
	steps []*pipeline.Step
}

func (f *fakeStepRepo) Append(ctx context.Context, step *pipeline.Step) error {
	step.SetID(uint(len(f.steps) + 1))
	f.steps = append(f.steps, step)
	return nil
}
func (f *fakeStepRepo) ListByInvoice(ctx context.Context, invoiceID uint) ([]*pipeline.Step, error) {
	var out []*pipeline.Step
	for _, s := range f.steps {
		if s.InvoiceID() == invoiceID {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeStepRepo) LatestByKind(ctx context.Context, invoiceID uint, kind pipeline.StepKind) (*pipeline.Step, error) {
	for i := len(f.steps) - 1; i >= 0; i-- {
		if f.steps[i].InvoiceID() == invoiceID && f.steps[i].Kind() == kind {
			return f.steps[i], nil
		}
	}
	return nil, nil
}

// latest returns the most recent step of the kind, for assertions.
func (f *fakeStepRepo) latest(kind pipeline.StepKind) *pipeline.Step {
	for i := len(f.steps) - 1; i >= 0; i-- {
		if f.steps[i].Kind() == kind {
			return f.steps[i]
		}
	}
	return nil
}

// retryNow rewinds the retry window of the latest entry of the kind so the
// next tick may attempt immediately.
func (f *fakeStepRepo) retryNow(kind pipeline.StepKind) {
	if s := f.latest(kind); s != nil {
		s.ScheduleRetry(time.Now().UTC().Add(-time.Second))
	}
}

type fakeConversion struct {
	calls  int
	err    error
	result providers.ConversionResult
	onCall func()
}

func (f *fakeConversion) Convert(ctx context.Context, req providers.ConversionRequest) (*providers.ConversionResult, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return nil, f.err
	}
	res := f.result
	return &res, nil
}

type fakeSettlement struct {
	calls int
	err   error
	keys  []string
}

func (f *fakeSettlement) Settle(ctx context.Context, req providers.SettlementRequest) (*providers.SettlementResult, error) {
	f.calls++
	f.keys = append(f.keys, req.IdempotencyKey)
	if f.err != nil {
		return nil, f.err
	}
	return &providers.SettlementResult{Reference: "stl-ref-1"}, nil
}

type fakePayout struct {
	calls int
	err   error
	last  providers.PayoutRequest
}

func (f *fakePayout) Payout(ctx context.Context, req providers.PayoutRequest) (*providers.PayoutResult, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &providers.PayoutResult{Reference: "pay-ref-1"}, nil
}

type fakeReceipts struct {
	calls int
	err   error
}

func (f *fakeReceipts) Materialize(ctx context.Context, invoiceSID string) error {
	f.calls++
	return f.err
}

// fakeRunner executes the function directly; transactionality is a storage
// concern exercised elsewhere.
type fakeRunner struct{}

func (f *fakeRunner) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- helpers ---

type advanceFixture struct {
	uc          *AdvancePipelineUseCase
	invoiceRepo *fakeInvoiceRepo
	stepRepo    *fakeStepRepo
	conversion  *fakeConversion
	settlement  *fakeSettlement
	payout      *fakePayout
	receipts    *fakeReceipts
	invoice     *invoice.Invoice
}

func newAdvanceFixture(t *testing.T, status vo.InvoiceStatus, target vo.SettlementTarget) *advanceFixture {
	t.Helper()
	now := time.Now().UTC()

	inv := invoice.Reconstruct(invoice.ReconstructParams{
		ID: 1, SID: "inv_test0001", MerchantID: 1,
		Total:            vo.NewMoney(10000, "USD"),
		EnabledChains:    []vo.ChainType{vo.ChainTypeETH},
		SettlementTarget: target,
		Status:           status,
		ExpiredAt:        now.Add(24 * time.Hour),
		CreatedAt:        now.Add(-time.Hour),
		UpdatedAt:        now.Add(-time.Minute),
	})

	rec := payment.Reconstruct(payment.ReconstructParams{
		ID: 1, SID: "pay_test0001", InvoiceID: 1, QuoteID: 7,
		Chain:         vo.ChainTypeETH,
		TxRef:         "0xdeadbeef01",
		Amount:        decimal.RequireFromString("0.05"),
		Confirmations: 12,
		DetectedAt:    now.Add(-time.Minute),
		CreatedAt:     now.Add(-time.Minute),
	})

	f := &advanceFixture{
		invoiceRepo: &fakeInvoiceRepo{invoices: map[uint]*invoice.Invoice{1: inv}},
		stepRepo:    &fakeStepRepo{},
		conversion:  &fakeConversion{result: providers.ConversionResult{Reference: "cnv-ref-1", ToAmount: decimal.RequireFromString("98.40")}},
		settlement:  &fakeSettlement{},
		payout:      &fakePayout{},
		receipts:    &fakeReceipts{},
		invoice:     inv,
	}

	detected, err := pipeline.NewStep(1, pipeline.StepDetected, pipeline.OutcomeSuccess, 0, "tx 0xdeadbeef01 on ETH")
	require.NoError(t, err)
	require.NoError(t, f.stepRepo.Append(context.Background(), detected))

	f.uc = NewAdvancePipelineUseCase(
		f.invoiceRepo,
		&fakePaymentRepo{records: map[uint]*payment.PaymentRecord{1: rec}},
		f.stepRepo,
		f.conversion, f.settlement, f.payout, f.receipts,
		&fakeRunner{},
		AdvanceConfig{RetryBudget: 3, BackoffBase: 30 * time.Second, BackoffCap: 15 * time.Minute},
		logger.NewLogger(),
	)
	return f
}

func nativeETH(t *testing.T) vo.SettlementTarget {
	t.Helper()
	target, err := vo.NewNativeTarget("ETH")
	require.NoError(t, err)
	return target
}

func fiatUSD(t *testing.T) vo.SettlementTarget {
	t.Helper()
	target, err := vo.NewFiatTarget("USD")
	require.NoError(t, err)
	return target
}

func tick(t *testing.T, f *advanceFixture) *AdvanceResult {
	t.Helper()
	res, err := f.uc.Execute(context.Background(), "inv_test0001")
	require.NoError(t, err)
	return res
}

// =====================================================================
// TestAdvancePipeline_Routing
// =====================================================================

func TestAdvancePipeline_SkipsConversionWhenAssetMatches(t *testing.T) {
	f := newAdvanceFixture(t, vo.InvoiceStatusPaidDetected, nativeETH(t))

	res := tick(t, f)

	assert.True(t, res.Changed)
	assert.Equal(t, vo.InvoiceStatusSettling, res.StatusAfter,
		"paid in ETH, settled in ETH: conversion is skipped")
	assert.Zero(t, f.conversion.calls)
}

func TestAdvancePipeline_EntersConversionForFiatTarget(t *testing.T) {
	f := newAdvanceFixture(t, vo.InvoiceStatusPaidDetected, fiatUSD(t))

	res := tick(t, f)

	assert.True(t, res.Changed)
	assert.Equal(t, vo.InvoiceStatusConverting, res.StatusAfter)
	assert.Zero(t, f.conversion.calls, "the transition tick does not call the provider yet")
}

func TestAdvancePipeline_TerminalAndUnpaidAreNoOps(t *testing.T) {
	for _, status := range []vo.InvoiceStatus{
		vo.InvoiceStatusPending, vo.InvoiceStatusSent,
		vo.InvoiceStatusComplete, vo.InvoiceStatusCancelled,
	} {
		f := newAdvanceFixture(t, status, nativeETH(t))
		res := tick(t, f)
		assert.False(t, res.Changed, "status %s must not advance", status)
		assert.Equal(t, status, res.StatusAfter)
	}
}

// =====================================================================
// TestAdvancePipeline_Conversion
// =====================================================================

func TestAdvancePipeline_ConversionSuccess(t *testing.T) {
	f := newAdvanceFixture(t, vo.InvoiceStatusConverting, fiatUSD(t))

	res := tick(t, f)

	assert.Equal(t, 1, f.conversion.calls)
	assert.Equal(t, vo.InvoiceStatusSettling, res.StatusAfter)

	converted := f.stepRepo.latest(pipeline.StepConverted)
	require.NotNil(t, converted)
	assert.Equal(t, pipeline.OutcomeSuccess, converted.Outcome())

	raw, ok := f.invoice.Metadata()["converted_amount"].(string)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString(raw).Equal(decimal.RequireFromString("98.40")),
		"the conversion output is carried to the settlement leg")
	assert.Equal(t, "USD", f.invoice.Metadata()["converted_asset"])
}

func TestAdvancePipeline_ResumesAfterLostConversionStatusWrite(t *testing.T) {
	// A CONVERTED success already in the log with the invoice still in
	// CONVERTING is the footprint of a status write that never landed.
	f := newAdvanceFixture(t, vo.InvoiceStatusConverting, fiatUSD(t))
	converted, err := pipeline.NewStep(1, pipeline.StepConverted, pipeline.OutcomeSuccess, 1,
		"converted 0.05 ETH to 98.40 USD, ref cnv-ref-1")
	require.NoError(t, err)
	require.NoError(t, f.stepRepo.Append(context.Background(), converted))
	stepsBefore := len(f.stepRepo.steps)

	res := tick(t, f)

	assert.Equal(t, vo.InvoiceStatusSettling, res.StatusAfter,
		"the tick resumes the transition instead of stalling")
	assert.True(t, res.Changed)
	assert.Equal(t, 0, f.conversion.calls, "the provider is not called again")
	assert.Len(t, f.stepRepo.steps, stepsBefore, "no duplicate CONVERTED step")
}

func TestAdvancePipeline_ConversionFailureSchedulesRetry(t *testing.T) {
	f := newAdvanceFixture(t, vo.InvoiceStatusConverting, fiatUSD(t))
	f.conversion.err = fmt.Errorf("provider unavailable")

	res := tick(t, f)

	assert.False(t, res.Changed)
	assert.Equal(t, vo.InvoiceStatusConverting, res.StatusAfter)

	step := f.stepRepo.latest(pipeline.StepConverted)
	require.NotNil(t, step)
	assert.Equal(t, pipeline.OutcomeRetrying, step.Outcome())
	assert.Equal(t, 1, step.Attempt())
	require.NotNil(t, step.NextRetryAt())
	assert.True(t, step.NextRetryAt().After(time.Now().UTC()), "the backoff window must be open")

	// While the window is open, the provider is not called again.
	tick(t, f)
	assert.Equal(t, 1, f.conversion.calls)
}

func TestAdvancePipeline_ConversionRetriesThenSucceeds(t *testing.T) {
	f := newAdvanceFixture(t, vo.InvoiceStatusConverting, fiatUSD(t))
	f.conversion.err = fmt.Errorf("provider unavailable")

	tick(t, f)
	f.stepRepo.retryNow(pipeline.StepConverted)
	tick(t, f)
	f.stepRepo.retryNow(pipeline.StepConverted)

	f.conversion.err = nil
	res := tick(t, f)

	assert.Equal(t, 3, f.conversion.calls)
	assert.Equal(t, vo.InvoiceStatusSettling, res.StatusAfter)

	step := f.stepRepo.latest(pipeline.StepConverted)
	require.NotNil(t, step)
	assert.Equal(t, pipeline.OutcomeSuccess, step.Outcome())
	assert.Equal(t, 3, step.Attempt())
}

func TestAdvancePipeline_StallsAfterRetryBudget(t *testing.T) {
	f := newAdvanceFixture(t, vo.InvoiceStatusConverting, fiatUSD(t))
	f.conversion.err = fmt.Errorf("provider unavailable")

	tick(t, f)
	f.stepRepo.retryNow(pipeline.StepConverted)
	tick(t, f)
	f.stepRepo.retryNow(pipeline.StepConverted)
	tick(t, f)

	step := f.stepRepo.latest(pipeline.StepConverted)
	require.NotNil(t, step)
	assert.Equal(t, pipeline.OutcomeFailure, step.Outcome(), "the third attempt spends the budget")
	assert.Equal(t, 3, step.Attempt())

	// Stalled: further ticks never call the provider again.
	res := tick(t, f)
	assert.Equal(t, 3, f.conversion.calls)
	assert.Equal(t, vo.InvoiceStatusConverting, res.StatusAfter,
		"a stalled invoice stays put until an operator intervenes")
}

func TestAdvancePipeline_CancellationDuringCallDiscardsResult(t *testing.T) {
	f := newAdvanceFixture(t, vo.InvoiceStatusConverting, fiatUSD(t))
	f.conversion.onCall = func() {
		// A cancellation lands while the provider call is in flight.
		now := time.Now().UTC()
		f.invoiceRepo.invoices[1] = invoice.Reconstruct(invoice.ReconstructParams{
			ID: 1, SID: "inv_test0001", MerchantID: 1,
			Total:            vo.NewMoney(10000, "USD"),
			EnabledChains:    []vo.ChainType{vo.ChainTypeETH},
			SettlementTarget: fiatUSD(t),
			Status:           vo.InvoiceStatusCancelled,
			ExpiredAt:        now.Add(24 * time.Hour),
			CreatedAt:        now.Add(-time.Hour),
			UpdatedAt:        now,
		})
	}

	res, err := f.uc.Execute(context.Background(), "inv_test0001")
	require.NoError(t, err)

	assert.False(t, res.Changed)
	assert.Nil(t, f.stepRepo.latest(pipeline.StepConverted),
		"the completed call's result is dropped, not recorded")
}

// =====================================================================
// TestAdvancePipeline_Settlement
// =====================================================================

func TestAdvancePipeline_NativeSettlementThenComplete(t *testing.T) {
	f := newAdvanceFixture(t, vo.InvoiceStatusSettling, nativeETH(t))

	res := tick(t, f)
	assert.Equal(t, 1, f.settlement.calls)
	assert.Equal(t, vo.InvoiceStatusSettling, res.StatusAfter, "the settle leg alone does not finish the tick")

	settled := f.stepRepo.latest(pipeline.StepSettled)
	require.NotNil(t, settled)
	assert.Equal(t, pipeline.OutcomeSuccess, settled.Outcome())

	res = tick(t, f)
	assert.Equal(t, vo.InvoiceStatusComplete, res.StatusAfter)
	assert.Zero(t, f.payout.calls, "native targets never cash out")
	assert.Equal(t, 1, f.receipts.calls)

	completed := f.stepRepo.latest(pipeline.StepCompleted)
	require.NotNil(t, completed)
	assert.Equal(t, pipeline.OutcomeSuccess, completed.Outcome())
}

func TestAdvancePipeline_FiatCashOutPath(t *testing.T) {
	f := newAdvanceFixture(t, vo.InvoiceStatusSettling, fiatUSD(t))
	// Conversion already ran on a previous tick.
	converted, err := pipeline.NewStep(1, pipeline.StepConverted, pipeline.OutcomeSuccess, 1, "")
	require.NoError(t, err)
	require.NoError(t, f.stepRepo.Append(context.Background(), converted))
	f.invoice.SetMetadata("converted_amount", "98.40")
	f.invoice.SetMetadata("converted_asset", "USD")

	res := tick(t, f)
	assert.Equal(t, 1, f.settlement.calls)
	assert.Equal(t, vo.InvoiceStatusSettling, res.StatusAfter)

	res = tick(t, f)
	assert.Equal(t, 1, f.payout.calls)
	assert.Equal(t, vo.InvoiceStatusCashedOut, res.StatusAfter)
	assert.Equal(t, "USD", f.payout.last.Currency)
	assert.True(t, f.payout.last.Amount.Equal(decimal.RequireFromString("98.40")),
		"the payout moves the converted amount, not the observed crypto amount")

	res = tick(t, f)
	assert.Equal(t, vo.InvoiceStatusComplete, res.StatusAfter)
	assert.Equal(t, 1, f.receipts.calls)
}

func TestAdvancePipeline_SettlementIdempotencyKeyStable(t *testing.T) {
	f := newAdvanceFixture(t, vo.InvoiceStatusSettling, nativeETH(t))
	f.settlement.err = fmt.Errorf("provider unavailable")

	tick(t, f)
	f.stepRepo.retryNow(pipeline.StepSettled)
	f.settlement.err = nil
	tick(t, f)

	require.Len(t, f.settlement.keys, 2)
	assert.Equal(t, f.settlement.keys[0], f.settlement.keys[1],
		"every retry of a leg reuses the same idempotency key")
}

func TestAdvancePipeline_ReceiptFailureDoesNotBlockCompletion(t *testing.T) {
	f := newAdvanceFixture(t, vo.InvoiceStatusSettling, nativeETH(t))
	f.receipts.err = fmt.Errorf("receipt store down")

	tick(t, f)
	res := tick(t, f)

	assert.Equal(t, vo.InvoiceStatusComplete, res.StatusAfter,
		"receipt materialization is best-effort")
}

// =====================================================================
// TestAdvancePipeline_Guards
// =====================================================================

func TestAdvancePipeline_PaidStatusWithoutRecordLeftAlone(t *testing.T) {
	f := newAdvanceFixture(t, vo.InvoiceStatusPaidDetected, nativeETH(t))
	f.uc = NewAdvancePipelineUseCase(
		f.invoiceRepo,
		&fakePaymentRepo{records: make(map[uint]*payment.PaymentRecord)},
		f.stepRepo,
		f.conversion, f.settlement, f.payout, f.receipts,
		&fakeRunner{},
		AdvanceConfig{}, logger.NewLogger(),
	)

	res := tick(t, f)

	assert.False(t, res.Changed, "an invariant violation is surfaced, not advanced through")
	assert.Equal(t, vo.InvoiceStatusPaidDetected, res.StatusAfter)
}
