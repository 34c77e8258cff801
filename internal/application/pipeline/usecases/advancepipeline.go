package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"coinvoice/internal/application/pipeline/providers"
	"coinvoice/internal/domain/invoice"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/domain/payment"
	"coinvoice/internal/domain/pipeline"
	"coinvoice/internal/shared/biztime"
	"coinvoice/internal/shared/db"
	"coinvoice/internal/shared/logger"
)

const (
	defaultRetryBudget = 5
	defaultBackoffBase = 30 * time.Second
	defaultBackoffCap  = 15 * time.Minute
	defaultCallTimeout = 30 * time.Second

	metaConvertedAmount = "converted_amount"
	metaConvertedAsset  = "converted_asset"
)

// AdvanceConfig tunes stage retries and external call bounds.
type AdvanceConfig struct {
	RetryBudget int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	CallTimeout time.Duration
}

// AdvancePipelineUseCase applies one evaluation tick to one invoice: the
// next forward transition runs iff its preconditions hold, otherwise the
// tick is a no-op — never an error. That makes every tick idempotent and
// safe to repeat.
type AdvancePipelineUseCase struct {
	invoiceRepo invoice.InvoiceRepository
	paymentRepo payment.PaymentRecordRepository
	stepRepo    pipeline.StepRepository
	conversion  providers.ConversionProvider
	settlement  providers.SettlementProvider
	payout      providers.PayoutProvider
	receipts    providers.ReceiptMaterializer
	tx          db.Runner

	retryBudget int
	backoffBase time.Duration
	backoffCap  time.Duration
	callTimeout time.Duration

	logger logger.Interface
}

func NewAdvancePipelineUseCase(
	invoiceRepo invoice.InvoiceRepository,
	paymentRepo payment.PaymentRecordRepository,
	stepRepo pipeline.StepRepository,
	conversion providers.ConversionProvider,
	settlement providers.SettlementProvider,
	payout providers.PayoutProvider,
	receipts providers.ReceiptMaterializer,
	tx db.Runner,
	cfg AdvanceConfig,
	logger logger.Interface,
) *AdvancePipelineUseCase {
	budget := cfg.RetryBudget
	if budget <= 0 {
		budget = defaultRetryBudget
	}
	base := cfg.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}
	cap := cfg.BackoffCap
	if cap <= 0 {
		cap = defaultBackoffCap
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	return &AdvancePipelineUseCase{
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		stepRepo:    stepRepo,
		conversion:  conversion,
		settlement:  settlement,
		payout:      payout,
		receipts:    receipts,
		tx:          tx,
		retryBudget: budget,
		backoffBase: base,
		backoffCap:  cap,
		callTimeout: timeout,
		logger:      logger,
	}
}

// AdvanceResult reports what one tick did.
type AdvanceResult struct {
	StatusBefore vo.InvoiceStatus
	StatusAfter  vo.InvoiceStatus
	Changed      bool
}

func (uc *AdvancePipelineUseCase) Execute(ctx context.Context, invoiceSID string) (*AdvanceResult, error) {
	inv, err := uc.invoiceRepo.GetBySID(ctx, invoiceSID)
	if err != nil {
		return nil, fmt.Errorf("invoice not found: %w", err)
	}

	result := &AdvanceResult{StatusBefore: inv.Status(), StatusAfter: inv.Status()}

	if inv.Status().IsTerminal() || !inv.Status().IsPaid() {
		return result, nil
	}

	rec, err := uc.paymentRepo.GetByInvoiceID(ctx, inv.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to load payment record: %w", err)
	}
	if rec == nil {
		// A paid status without a record is an invariant violation; leave
		// the invoice alone and surface it.
		uc.logger.Errorw("invoice in paid status without payment record",
			"invoice_sid", inv.SID(), "status", inv.Status())
		return result, nil
	}

	target := inv.SettlementTarget()
	needsConversion := !target.MatchesChainAsset(rec.Chain())
	fiatPayout := target.IsFiat()

	switch inv.Status() {
	case vo.InvoiceStatusPaidDetected:
		// Data-dependent branch: conversion only when the settlement target
		// differs from the paid chain's native asset.
		if needsConversion {
			err = inv.BeginConversion()
		} else {
			err = inv.MarkSettling()
		}
		if err != nil {
			return nil, err
		}
		if err := uc.invoiceRepo.Update(ctx, inv); err != nil {
			return nil, fmt.Errorf("failed to update invoice: %w", err)
		}

	case vo.InvoiceStatusConverting:
		if err := uc.runConversion(ctx, inv, rec, needsConversion, fiatPayout); err != nil {
			return nil, err
		}

	case vo.InvoiceStatusSettling:
		if err := uc.runSettlement(ctx, inv, rec, needsConversion, fiatPayout); err != nil {
			return nil, err
		}

	case vo.InvoiceStatusCashedOut:
		if err := uc.complete(ctx, inv, needsConversion, fiatPayout); err != nil {
			return nil, err
		}
	}

	result.StatusAfter = inv.Status()
	result.Changed = result.StatusAfter != result.StatusBefore
	return result, nil
}

// runConversion drives the CONVERTED leg; on success the invoice moves to
// SETTLING in the same tick.
func (uc *AdvancePipelineUseCase) runConversion(ctx context.Context, inv *invoice.Invoice, rec *payment.PaymentRecord, needsConversion, fiatPayout bool) error {
	// A CONVERTED success with the invoice still in CONVERTING means a
	// prior tick recorded the step but the status write was lost; resume
	// the transition instead of treating the stage as blocked.
	converted, err := uc.stageSucceeded(ctx, inv.ID(), pipeline.StepConverted)
	if err != nil {
		return err
	}
	if converted {
		if err := inv.MarkSettling(); err != nil {
			return err
		}
		return uc.invoiceRepo.Update(ctx, inv)
	}

	proceed, attempt, err := uc.stageReady(ctx, inv.ID(), pipeline.StepConverted)
	if err != nil || !proceed {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, uc.callTimeout)
	res, callErr := uc.conversion.Convert(callCtx, providers.ConversionRequest{
		InvoiceSID:     inv.SID(),
		IdempotencyKey: stageKey(inv.SID(), pipeline.StepConverted),
		FromAsset:      rec.Chain().NativeAsset(),
		ToAsset:        inv.SettlementTarget().Asset(),
		Amount:         rec.Amount(),
	})
	cancel()

	// Cancellation is cooperative: the in-flight call completed, but a
	// cancellation that happened meanwhile wins and the result is dropped.
	if discarded, err := uc.discardIfCancelled(ctx, inv); err != nil || discarded {
		return err
	}

	if callErr != nil {
		return uc.recordStageFailure(ctx, inv, pipeline.StepConverted, attempt, callErr)
	}

	inv.SetMetadata(metaConvertedAmount, res.ToAmount.String())
	inv.SetMetadata(metaConvertedAsset, inv.SettlementTarget().Asset())

	// The step, the converted-amount metadata and the status move commit
	// together so a partial write can never strand the invoice.
	err = uc.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		if err := uc.appendStep(txCtx, inv.ID(), pipeline.StepConverted, pipeline.OutcomeSuccess, attempt,
			fmt.Sprintf("converted %s %s to %s %s, ref %s",
				rec.Amount(), rec.Chain().NativeAsset(), res.ToAmount, inv.SettlementTarget().Asset(), res.Reference),
			needsConversion, fiatPayout); err != nil {
			return err
		}
		if err := inv.MarkSettling(); err != nil {
			return err
		}
		return uc.invoiceRepo.Update(txCtx, inv)
	})
	if err != nil {
		return fmt.Errorf("failed to commit conversion: %w", err)
	}

	uc.logger.Infow("conversion complete",
		"invoice_sid", inv.SID(),
		"to_amount", res.ToAmount.String(),
		"reference", res.Reference,
	)
	return nil
}

// runSettlement drives the SETTLED leg and, for fiat targets, the
// CASHED_OUT leg afterwards. Native targets complete directly.
func (uc *AdvancePipelineUseCase) runSettlement(ctx context.Context, inv *invoice.Invoice, rec *payment.PaymentRecord, needsConversion, fiatPayout bool) error {
	settled, err := uc.stageSucceeded(ctx, inv.ID(), pipeline.StepSettled)
	if err != nil {
		return err
	}

	if !settled {
		proceed, attempt, err := uc.stageReady(ctx, inv.ID(), pipeline.StepSettled)
		if err != nil || !proceed {
			return err
		}

		amount, asset := uc.settlementAmount(inv, rec, needsConversion)
		targetKind := string(inv.SettlementTarget().Kind())

		callCtx, cancel := context.WithTimeout(ctx, uc.callTimeout)
		res, callErr := uc.settlement.Settle(callCtx, providers.SettlementRequest{
			InvoiceSID:     inv.SID(),
			IdempotencyKey: stageKey(inv.SID(), pipeline.StepSettled),
			Asset:          asset,
			Amount:         amount,
			TargetKind:     targetKind,
		})
		cancel()

		if discarded, err := uc.discardIfCancelled(ctx, inv); err != nil || discarded {
			return err
		}
		if callErr != nil {
			return uc.recordStageFailure(ctx, inv, pipeline.StepSettled, attempt, callErr)
		}

		return uc.appendStep(ctx, inv.ID(), pipeline.StepSettled, pipeline.OutcomeSuccess, attempt,
			fmt.Sprintf("settled %s %s to %s target, ref %s", amount, asset, targetKind, res.Reference),
			needsConversion, fiatPayout)
	}

	if !fiatPayout {
		return uc.complete(ctx, inv, needsConversion, fiatPayout)
	}

	cashedOut, err := uc.stageSucceeded(ctx, inv.ID(), pipeline.StepCashedOut)
	if err != nil {
		return err
	}
	if cashedOut {
		if err := inv.MarkCashedOut(); err != nil {
			return err
		}
		return uc.invoiceRepo.Update(ctx, inv)
	}

	proceed, attempt, err := uc.stageReady(ctx, inv.ID(), pipeline.StepCashedOut)
	if err != nil || !proceed {
		return err
	}

	amount, _ := uc.settlementAmount(inv, rec, needsConversion)

	callCtx, cancel := context.WithTimeout(ctx, uc.callTimeout)
	res, callErr := uc.payout.Payout(callCtx, providers.PayoutRequest{
		InvoiceSID:     inv.SID(),
		IdempotencyKey: stageKey(inv.SID(), pipeline.StepCashedOut),
		Currency:       inv.SettlementTarget().Asset(),
		Amount:         amount,
	})
	cancel()

	if discarded, err := uc.discardIfCancelled(ctx, inv); err != nil || discarded {
		return err
	}
	if callErr != nil {
		return uc.recordStageFailure(ctx, inv, pipeline.StepCashedOut, attempt, callErr)
	}

	if err := uc.appendStep(ctx, inv.ID(), pipeline.StepCashedOut, pipeline.OutcomeSuccess, attempt,
		fmt.Sprintf("cashed out %s %s, ref %s", amount, inv.SettlementTarget().Asset(), res.Reference),
		needsConversion, fiatPayout); err != nil {
		return err
	}

	if err := inv.MarkCashedOut(); err != nil {
		return err
	}
	return uc.invoiceRepo.Update(ctx, inv)
}

// complete appends the final step, moves the invoice to COMPLETE and
// triggers receipt materialization as a best-effort side effect.
func (uc *AdvancePipelineUseCase) complete(ctx context.Context, inv *invoice.Invoice, needsConversion, fiatPayout bool) error {
	done, err := uc.stageSucceeded(ctx, inv.ID(), pipeline.StepCompleted)
	if err != nil {
		return err
	}
	if !done {
		if err := uc.appendStep(ctx, inv.ID(), pipeline.StepCompleted, pipeline.OutcomeSuccess, 0,
			"pipeline complete", needsConversion, fiatPayout); err != nil {
			return err
		}
	}

	if err := inv.Complete(); err != nil {
		return err
	}
	if err := uc.invoiceRepo.Update(ctx, inv); err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	if uc.receipts != nil {
		if err := uc.receipts.Materialize(ctx, inv.SID()); err != nil {
			uc.logger.Warnw("receipt materialization failed",
				"invoice_sid", inv.SID(), "error", err)
		}
	}

	uc.logger.Infow("invoice complete", "invoice_sid", inv.SID())
	return nil
}

// stageReady decides whether a stage leg may attempt now. It returns the
// attempt number to record. A leg is blocked while its backoff window is
// open or once its retry budget is exhausted (stalled, operator action).
func (uc *AdvancePipelineUseCase) stageReady(ctx context.Context, invoiceID uint, kind pipeline.StepKind) (bool, int, error) {
	latest, err := uc.stepRepo.LatestByKind(ctx, invoiceID, kind)
	if err != nil {
		return false, 0, fmt.Errorf("failed to load step log: %w", err)
	}
	if latest == nil {
		return true, 1, nil
	}
	switch latest.Outcome() {
	case pipeline.OutcomeSuccess:
		return false, 0, nil
	case pipeline.OutcomeFailure:
		// Retry budget exhausted; the invoice stays in its current state
		// until an operator intervenes.
		return false, 0, nil
	default: // retrying
		if at := latest.NextRetryAt(); at != nil && biztime.NowUTC().Before(*at) {
			return false, 0, nil
		}
		return true, latest.Attempt() + 1, nil
	}
}

func (uc *AdvancePipelineUseCase) stageSucceeded(ctx context.Context, invoiceID uint, kind pipeline.StepKind) (bool, error) {
	latest, err := uc.stepRepo.LatestByKind(ctx, invoiceID, kind)
	if err != nil {
		return false, err
	}
	return latest != nil && latest.Outcome() == pipeline.OutcomeSuccess, nil
}

// recordStageFailure logs a transient provider failure as a retrying step,
// or a failure step once the budget is spent. Neither is an error to the
// tick: the sweep simply comes back later.
func (uc *AdvancePipelineUseCase) recordStageFailure(ctx context.Context, inv *invoice.Invoice, kind pipeline.StepKind, attempt int, cause error) error {
	if attempt >= uc.retryBudget {
		uc.logger.Errorw("stage retry budget exhausted, pipeline stalled",
			"invoice_sid", inv.SID(),
			"stage", kind,
			"attempts", attempt,
			"error", cause,
		)
		step, err := pipeline.NewStep(inv.ID(), kind, pipeline.OutcomeFailure, attempt, cause.Error())
		if err != nil {
			return err
		}
		return uc.stepRepo.Append(ctx, step)
	}

	backoff := uc.backoffFor(attempt)
	step, err := pipeline.NewStep(inv.ID(), kind, pipeline.OutcomeRetrying, attempt, cause.Error())
	if err != nil {
		return err
	}
	step.ScheduleRetry(biztime.NowUTC().Add(backoff))

	uc.logger.Warnw("stage attempt failed, retry scheduled",
		"invoice_sid", inv.SID(),
		"stage", kind,
		"attempt", attempt,
		"backoff", backoff,
		"error", cause,
	)
	return uc.stepRepo.Append(ctx, step)
}

// backoffFor returns the exponential backoff for the given attempt, capped.
func (uc *AdvancePipelineUseCase) backoffFor(attempt int) time.Duration {
	backoff := uc.backoffBase
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= uc.backoffCap {
			return uc.backoffCap
		}
	}
	if backoff > uc.backoffCap {
		return uc.backoffCap
	}
	return backoff
}

func (uc *AdvancePipelineUseCase) appendStep(ctx context.Context, invoiceID uint, kind pipeline.StepKind, outcome pipeline.StepOutcome, attempt int, detail string, needsConversion, fiatPayout bool) error {
	if outcome == pipeline.OutcomeSuccess {
		log, err := uc.stepRepo.ListByInvoice(ctx, invoiceID)
		if err != nil {
			return fmt.Errorf("failed to load step log: %w", err)
		}
		if err := pipeline.ValidateAppend(log, kind, needsConversion, fiatPayout); err != nil {
			return err
		}
	}
	step, err := pipeline.NewStep(invoiceID, kind, outcome, attempt, detail)
	if err != nil {
		return err
	}
	return uc.stepRepo.Append(ctx, step)
}

// discardIfCancelled re-reads the invoice after an external call and reports
// whether a concurrent cancellation means the result must be dropped.
func (uc *AdvancePipelineUseCase) discardIfCancelled(ctx context.Context, inv *invoice.Invoice) (bool, error) {
	fresh, err := uc.invoiceRepo.GetByID(ctx, inv.ID())
	if err != nil {
		return false, fmt.Errorf("failed to re-read invoice: %w", err)
	}
	if fresh.Status() == vo.InvoiceStatusCancelled {
		uc.logger.Warnw("invoice cancelled during external call, result discarded",
			"invoice_sid", inv.SID())
		return true, nil
	}
	return false, nil
}

// settlementAmount resolves the amount and asset the settlement and payout
// legs operate on: the conversion output when conversion ran, otherwise the
// observed payment amount.
func (uc *AdvancePipelineUseCase) settlementAmount(inv *invoice.Invoice, rec *payment.PaymentRecord, needsConversion bool) (decimal.Decimal, string) {
	if needsConversion {
		if raw, ok := inv.Metadata()[metaConvertedAmount].(string); ok {
			if amount, err := decimal.NewFromString(raw); err == nil {
				asset, _ := inv.Metadata()[metaConvertedAsset].(string)
				if asset == "" {
					asset = inv.SettlementTarget().Asset()
				}
				return amount, asset
			}
		}
	}
	return rec.Amount(), rec.Chain().NativeAsset()
}

// stageKey builds the idempotency key providers deduplicate on: stable per
// (invoice, stage), so every retry of a leg reuses the same key.
func stageKey(invoiceSID string, kind pipeline.StepKind) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(invoiceSID+":"+kind.String())).String()
}
