package usecases

import (
	"context"
	"fmt"
	"time"

	"coinvoice/internal/domain/invoice"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/domain/quote"
	"coinvoice/internal/shared/biztime"
)

// nowUTC exists so tests can pin the clock.
var nowUTC = func() time.Time { return biztime.NowUTC() }

// GetActiveQuoteUseCase returns the current quote for an (invoice, chain)
// pair. Expiry is computed lazily at read time; there is no background
// sweep, so no coordination is needed across processes.
type GetActiveQuoteUseCase struct {
	invoiceRepo invoice.InvoiceRepository
	quoteRepo   quote.QuoteRepository
}

func NewGetActiveQuoteUseCase(invoiceRepo invoice.InvoiceRepository, quoteRepo quote.QuoteRepository) *GetActiveQuoteUseCase {
	return &GetActiveQuoteUseCase{
		invoiceRepo: invoiceRepo,
		quoteRepo:   quoteRepo,
	}
}

// Execute returns the active quote, or quote.ErrQuoteExpired when the TTL
// has elapsed with no matching payment.
func (uc *GetActiveQuoteUseCase) Execute(ctx context.Context, invoiceSID string, chain vo.ChainType) (*quote.Quote, error) {
	inv, err := uc.invoiceRepo.GetBySID(ctx, invoiceSID)
	if err != nil {
		return nil, fmt.Errorf("invoice not found: %w", err)
	}

	// After payment detection the locked quote is the permanent record.
	if inv.Status().IsPaid() {
		locked, err := uc.quoteRepo.GetLockedByInvoice(ctx, inv.ID())
		if err != nil {
			return nil, fmt.Errorf("failed to load locked quote: %w", err)
		}
		if locked != nil {
			return locked, nil
		}
	}

	q, err := uc.quoteRepo.GetLatestByInvoiceAndChain(ctx, inv.ID(), chain)
	if err != nil {
		return nil, fmt.Errorf("failed to load quote: %w", err)
	}
	if q == nil {
		return nil, quote.ErrQuoteExpired
	}
	if q.IsExpired(nowUTC()) {
		return nil, quote.ErrQuoteExpired
	}
	return q, nil
}
