package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coinvoice/internal/application/quote/addressing"
	"coinvoice/internal/application/quote/exchangerate"
	"coinvoice/internal/domain/deposit"
	"coinvoice/internal/domain/invoice"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/domain/quote"
	apperrors "coinvoice/internal/shared/errors"
	"coinvoice/internal/shared/logger"
)

// IssueQuoteUseCase issues (or re-issues) a quote binding the invoice's fiat
// total to a crypto amount on one chain. Re-issuing after expiry supersedes
// the previous unlocked quote; the deposit address for the chain never
// changes across re-issuance.
type IssueQuoteUseCase struct {
	invoiceRepo invoice.InvoiceRepository
	quoteRepo   quote.QuoteRepository
	addressRepo deposit.AddressRepository
	deriver     addressing.Deriver
	rates       exchangerate.Service
	ttl         time.Duration
	logger      logger.Interface
}

func NewIssueQuoteUseCase(
	invoiceRepo invoice.InvoiceRepository,
	quoteRepo quote.QuoteRepository,
	addressRepo deposit.AddressRepository,
	deriver addressing.Deriver,
	rates exchangerate.Service,
	ttl time.Duration,
	logger logger.Interface,
) *IssueQuoteUseCase {
	if ttl <= 0 {
		ttl = quote.DefaultTTL
	}
	return &IssueQuoteUseCase{
		invoiceRepo: invoiceRepo,
		quoteRepo:   quoteRepo,
		addressRepo: addressRepo,
		deriver:     deriver,
		rates:       rates,
		ttl:         ttl,
		logger:      logger,
	}
}

type IssueQuoteCommand struct {
	InvoiceSID string
	Chain      string
}

type IssueQuoteResult struct {
	Quote          *quote.Quote
	DepositAddress string
}

func (uc *IssueQuoteUseCase) Execute(ctx context.Context, cmd IssueQuoteCommand) (*IssueQuoteResult, error) {
	chain, err := vo.NewChainType(cmd.Chain)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid chain", err.Error())
	}

	inv, err := uc.invoiceRepo.GetBySID(ctx, cmd.InvoiceSID)
	if err != nil {
		return nil, apperrors.NewNotFoundError("invoice not found")
	}

	if inv.Status().IsTerminal() {
		return nil, apperrors.NewConflictError("invoice is in a terminal state")
	}
	if inv.Status().IsPaid() {
		return nil, apperrors.NewConflictError("invoice is already paid; no further quotes are issued")
	}
	if !inv.ChainEnabled(chain) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("chain %s is not enabled for this invoice", chain))
	}

	// A still-active quote is returned as-is instead of re-pricing.
	existing, err := uc.quoteRepo.GetLatestByInvoiceAndChain(ctx, inv.ID(), chain)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing quote: %w", err)
	}
	if existing != nil && existing.IsActive(nowUTC()) {
		addr, err := uc.ensureDepositAddress(ctx, inv, chain)
		if err != nil {
			return nil, err
		}
		return &IssueQuoteResult{Quote: existing, DepositAddress: addr}, nil
	}

	rate, err := uc.rates.GetRate(ctx, chain, inv.Total().Currency())
	if err != nil {
		uc.logger.Warnw("rate lookup failed",
			"invoice_sid", inv.SID(),
			"chain", chain,
			"error", err,
		)
		return nil, apperrors.NewValidationError("rate unavailable", exchangerate.ErrRateUnavailable.Error())
	}

	q, err := quote.NewQuote(inv.ID(), chain, inv.Total(), rate, uc.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to build quote: %w", err)
	}

	// Invalidate the previous unlocked quote before the conditional create,
	// so "at most one active quote" holds under concurrent issuance.
	if err := uc.quoteRepo.SupersedeActive(ctx, inv.ID(), chain); err != nil {
		return nil, fmt.Errorf("failed to supersede previous quote: %w", err)
	}
	if err := uc.quoteRepo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to create quote: %w", err)
	}

	addr, err := uc.ensureDepositAddress(ctx, inv, chain)
	if err != nil {
		return nil, err
	}

	uc.logger.Infow("quote issued",
		"invoice_sid", inv.SID(),
		"quote_sid", q.SID(),
		"chain", chain,
		"crypto_amount", q.CryptoAmount().String(),
		"rate", q.Rate().String(),
		"expires_at", q.ExpiresAt(),
	)

	return &IssueQuoteResult{Quote: q, DepositAddress: addr}, nil
}

// ensureDepositAddress returns the stable address for the pair, deriving and
// persisting it on first use.
func (uc *IssueQuoteUseCase) ensureDepositAddress(ctx context.Context, inv *invoice.Invoice, chain vo.ChainType) (string, error) {
	existing, err := uc.addressRepo.GetByInvoiceAndChain(ctx, inv.ID(), chain)
	if err != nil {
		return "", fmt.Errorf("failed to load deposit address: %w", err)
	}
	if existing != nil {
		return existing.Value(), nil
	}

	derived, err := uc.deriver.Derive(ctx, inv.SID(), chain)
	if err != nil {
		return "", fmt.Errorf("failed to derive deposit address: %w", err)
	}

	addr, err := deposit.NewAddress(inv.ID(), chain, derived)
	if err != nil {
		return "", err
	}
	if err := uc.addressRepo.Create(ctx, addr); err != nil {
		// Lost a creation race: the derivation is deterministic, so the
		// stored address equals ours.
		if errors.Is(err, deposit.ErrAlreadyExists) {
			return derived, nil
		}
		return "", fmt.Errorf("failed to persist deposit address: %w", err)
	}
	return derived, nil
}
