package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"coinvoice/internal/application/payment/blockchain"
	"coinvoice/internal/domain/deposit"
	"coinvoice/internal/domain/invoice"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/domain/payment"
	"coinvoice/internal/domain/pipeline"
	"coinvoice/internal/domain/quote"
	"coinvoice/internal/shared/biztime"
	"coinvoice/internal/shared/db"
	"coinvoice/internal/shared/logger"
)

const (
	// defaultTolerance is the fraction of the quoted amount a transfer must
	// reach. Slight shortfalls from rate drift are accepted.
	defaultTolerance = 0.99
	// defaultGraceWindow keeps an expired quote matchable for transfers
	// that confirmed shortly after the TTL elapsed.
	defaultGraceWindow = 1 * time.Hour
	// defaultObserveTimeout bounds a single chain observation call.
	defaultObserveTimeout = 15 * time.Second
)

// ReconcileConfig tunes payment matching.
type ReconcileConfig struct {
	// AmountTolerance is the accepted fraction of the quoted amount,
	// in (0, 1]. Zero means the default.
	AmountTolerance float64
	// GraceWindow extends matching past quote expiry.
	GraceWindow time.Duration
	// ObserveTimeout bounds each chain observation call.
	ObserveTimeout time.Duration
	// ConfirmationsOverride replaces a chain's built-in finality threshold.
	ConfirmationsOverride map[vo.ChainType]int
}

// ReconcilePaymentUseCase turns noisy, repeatedly-polled chain observations
// into at most one canonical PaymentRecord per invoice. It is re-entrant:
// once a record exists, further invocations are no-ops.
type ReconcilePaymentUseCase struct {
	invoiceRepo invoice.InvoiceRepository
	quoteRepo   quote.QuoteRepository
	paymentRepo payment.PaymentRecordRepository
	stepRepo    pipeline.StepRepository
	addressRepo deposit.AddressRepository
	observer    blockchain.Observer
	tx          db.Runner

	tolerance        decimal.Decimal
	graceWindow      time.Duration
	observeTimeout   time.Duration
	confirmOverrides map[vo.ChainType]int

	logger logger.Interface
}

func NewReconcilePaymentUseCase(
	invoiceRepo invoice.InvoiceRepository,
	quoteRepo quote.QuoteRepository,
	paymentRepo payment.PaymentRecordRepository,
	stepRepo pipeline.StepRepository,
	addressRepo deposit.AddressRepository,
	observer blockchain.Observer,
	tx db.Runner,
	cfg ReconcileConfig,
	logger logger.Interface,
) *ReconcilePaymentUseCase {
	tolerance := cfg.AmountTolerance
	if tolerance <= 0 || tolerance > 1 {
		tolerance = defaultTolerance
	}
	grace := cfg.GraceWindow
	if grace <= 0 {
		grace = defaultGraceWindow
	}
	observeTimeout := cfg.ObserveTimeout
	if observeTimeout <= 0 {
		observeTimeout = defaultObserveTimeout
	}

	return &ReconcilePaymentUseCase{
		invoiceRepo:      invoiceRepo,
		quoteRepo:        quoteRepo,
		paymentRepo:      paymentRepo,
		stepRepo:         stepRepo,
		addressRepo:      addressRepo,
		observer:         observer,
		tx:               tx,
		tolerance:        decimal.NewFromFloat(tolerance),
		graceWindow:      grace,
		observeTimeout:   observeTimeout,
		confirmOverrides: cfg.ConfirmationsOverride,
		logger:           logger,
	}
}

// ReconcileResult reports the outcome of one reconciliation attempt.
type ReconcileResult struct {
	Paid              bool
	AlreadyReconciled bool
	Chain             vo.ChainType
	TxRef             string
	Confirmations     int
}

// chainMatch pairs a qualifying transfer with the quote it satisfies.
type chainMatch struct {
	quote    *quote.Quote
	transfer blockchain.Transfer
}

// Execute attempts to reconcile the invoice against current chain state.
// Safe to invoke repeatedly and concurrently: all mutations are conditional.
func (uc *ReconcilePaymentUseCase) Execute(ctx context.Context, invoiceSID string) (*ReconcileResult, error) {
	inv, err := uc.invoiceRepo.GetBySID(ctx, invoiceSID)
	if err != nil {
		return nil, fmt.Errorf("invoice not found: %w", err)
	}

	// Existing record means a previous attempt won; report it and stop.
	if existing, err := uc.paymentRepo.GetByInvoiceID(ctx, inv.ID()); err != nil {
		return nil, fmt.Errorf("failed to check payment record: %w", err)
	} else if existing != nil {
		return &ReconcileResult{
			Paid:              true,
			AlreadyReconciled: true,
			Chain:             existing.Chain(),
			TxRef:             existing.TxRef(),
			Confirmations:     existing.Confirmations(),
		}, nil
	}

	if inv.Status() == vo.InvoiceStatusCancelled {
		// Still observe so a payment that arrived after cancellation is
		// reported as an anomaly rather than silently dropped.
		if match := uc.findMatch(ctx, inv); match != nil {
			uc.logger.Errorw("payment observed on cancelled invoice, discarding; refund requires manual handling",
				"invoice_sid", inv.SID(),
				"chain", match.quote.Chain(),
				"tx_ref", match.transfer.TxRef,
				"amount", match.transfer.Amount.String(),
			)
		}
		return &ReconcileResult{Paid: false}, nil
	}

	if inv.Status() != vo.InvoiceStatusSent {
		return &ReconcileResult{Paid: inv.Status().IsPaid()}, nil
	}

	match := uc.findMatch(ctx, inv)
	if match == nil {
		return &ReconcileResult{Paid: false}, nil
	}

	rec, err := payment.NewPaymentRecord(
		inv.ID(),
		match.quote.ID(),
		match.quote.Chain(),
		match.transfer.TxRef,
		match.transfer.Amount,
		match.transfer.Confirmations,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build payment record: %w", err)
	}

	// Lock the quote, create the record, and transition the invoice in one
	// transaction. The conditional create on the record is the write that
	// decides races; everything else keys off it.
	err = uc.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		locked, err := uc.quoteRepo.GetLockedByInvoice(txCtx, inv.ID())
		if err != nil {
			return fmt.Errorf("failed to check quote lock: %w", err)
		}
		if locked != nil && locked.ID() != match.quote.ID() {
			return quote.ErrQuoteAlreadyLocked
		}

		if err := match.quote.Lock(); err != nil {
			return err
		}
		if err := uc.quoteRepo.Update(txCtx, match.quote); err != nil {
			return fmt.Errorf("failed to persist quote lock: %w", err)
		}

		if err := uc.paymentRepo.Create(txCtx, rec); err != nil {
			return err
		}

		if err := inv.MarkPaidDetected(); err != nil {
			return err
		}
		if err := uc.invoiceRepo.Update(txCtx, inv); err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}

		step, err := pipeline.NewStep(inv.ID(), pipeline.StepDetected, pipeline.OutcomeSuccess, 0,
			fmt.Sprintf("tx %s on %s", rec.TxRef(), rec.Chain()))
		if err != nil {
			return err
		}
		return uc.stepRepo.Append(txCtx, step)
	})

	if err != nil {
		// Another attempt committed first: that record is the canonical one.
		if errors.Is(err, payment.ErrAlreadyExists) {
			return &ReconcileResult{Paid: true, AlreadyReconciled: true}, nil
		}
		if errors.Is(err, invoice.ErrInvoiceCancelled) {
			uc.logger.Errorw("invoice cancelled during reconciliation, result discarded",
				"invoice_sid", inv.SID(),
				"tx_ref", match.transfer.TxRef,
			)
			return &ReconcileResult{Paid: false}, nil
		}
		if errors.Is(err, quote.ErrQuoteAlreadyLocked) {
			uc.logger.Errorw("quote lock conflict during reconciliation",
				"invoice_sid", inv.SID(),
				"quote_sid", match.quote.SID(),
			)
			return nil, err
		}
		return nil, err
	}

	uc.logger.Infow("payment reconciled",
		"invoice_sid", inv.SID(),
		"chain", match.quote.Chain(),
		"tx_ref", rec.TxRef(),
		"amount", rec.Amount().String(),
		"confirmations", rec.Confirmations(),
	)

	return &ReconcileResult{
		Paid:          true,
		Chain:         match.quote.Chain(),
		TxRef:         rec.TxRef(),
		Confirmations: rec.Confirmations(),
	}, nil
}

// findMatch scans every enabled chain for a qualifying transfer. The first
// chain in call order wins; additional simultaneous matches are a detectable
// anomaly and are logged, not silently dropped.
func (uc *ReconcilePaymentUseCase) findMatch(ctx context.Context, inv *invoice.Invoice) *chainMatch {
	now := biztime.NowUTC()
	var matches []*chainMatch

	for _, chain := range vo.AllChainTypes {
		if !inv.ChainEnabled(chain) {
			continue
		}

		q, err := uc.quoteRepo.GetLatestByInvoiceAndChain(ctx, inv.ID(), chain)
		if err != nil {
			uc.logger.Warnw("failed to load quote during reconciliation",
				"invoice_sid", inv.SID(), "chain", chain, "error", err)
			continue
		}
		if q == nil || !q.WithinGrace(now, uc.graceWindow) {
			continue
		}

		addr, err := uc.addressRepo.GetByInvoiceAndChain(ctx, inv.ID(), chain)
		if err != nil || addr == nil {
			continue
		}

		transfer, ok := uc.observeChain(ctx, inv, q, addr.Value())
		if !ok {
			continue
		}
		matches = append(matches, &chainMatch{quote: q, transfer: transfer})
	}

	if len(matches) == 0 {
		return nil
	}
	if len(matches) > 1 {
		chains := make([]string, len(matches))
		for i, m := range matches {
			chains[i] = m.quote.Chain().String()
		}
		uc.logger.Errorw("qualifying transfers observed on multiple chains, first in call order wins",
			"invoice_sid", inv.SID(),
			"chains", chains,
		)
	}
	return matches[0]
}

// observeChain queries one chain and returns the first transfer that meets
// the amount tolerance and the chain's finality threshold.
func (uc *ReconcilePaymentUseCase) observeChain(ctx context.Context, inv *invoice.Invoice, q *quote.Quote, address string) (blockchain.Transfer, bool) {
	observeCtx, cancel := context.WithTimeout(ctx, uc.observeTimeout)
	defer cancel()

	transfers, err := uc.observer.Observe(observeCtx, q.Chain(), address, q.IssuedAt())
	if err != nil {
		uc.logger.Warnw("chain observation failed",
			"invoice_sid", inv.SID(),
			"chain", q.Chain(),
			"error", err,
		)
		return blockchain.Transfer{}, false
	}

	minAmount := q.CryptoAmount().Mul(uc.tolerance)
	required := uc.requiredConfirmations(q.Chain())
	deadline := q.ExpiresAt().Add(uc.graceWindow)

	for _, t := range transfers {
		if t.Amount.LessThan(minAmount) {
			continue
		}
		if t.Timestamp.After(deadline) {
			uc.logger.Warnw("transfer past grace deadline, ignoring",
				"invoice_sid", inv.SID(),
				"tx_ref", t.TxRef,
				"tx_time", t.Timestamp,
				"deadline", deadline,
			)
			continue
		}
		if t.Confirmations < required {
			uc.logger.Debugw("transfer found, waiting for confirmations",
				"invoice_sid", inv.SID(),
				"tx_ref", t.TxRef,
				"confirmations", t.Confirmations,
				"required", required,
			)
			continue
		}
		return t, true
	}
	return blockchain.Transfer{}, false
}

func (uc *ReconcilePaymentUseCase) requiredConfirmations(chain vo.ChainType) int {
	if override, ok := uc.confirmOverrides[chain]; ok && override > 0 {
		return override
	}
	return chain.RequiredConfirmations()
}
