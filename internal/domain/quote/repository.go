package quote

import (
	"context"

	vo "coinvoice/internal/domain/invoice/valueobjects"
)

type QuoteRepository interface {
	// Create persists a new quote. The storage layer enforces "at most one
	// active quote per (invoice, chain)" with a conditional write, so the
	// invariant holds across concurrent workers.
	Create(ctx context.Context, q *Quote) error
	Update(ctx context.Context, q *Quote) error
	GetByID(ctx context.Context, quoteID uint) (*Quote, error)
	// GetLatestByInvoiceAndChain returns the most recently issued
	// non-superseded quote for the pair, regardless of expiry. Callers
	// apply lazy expiry and grace-window checks.
	GetLatestByInvoiceAndChain(ctx context.Context, invoiceID uint, chain vo.ChainType) (*Quote, error)
	// GetLockedByInvoice returns the locked quote for the invoice, nil if
	// none is locked yet.
	GetLockedByInvoice(ctx context.Context, invoiceID uint) (*Quote, error)
	// SupersedeActive marks every unlocked, non-superseded quote for the
	// pair as superseded. Used when a fresh quote is issued after expiry.
	SupersedeActive(ctx context.Context, invoiceID uint, chain vo.ChainType) error
}
