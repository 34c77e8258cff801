package invoice

import "context"

type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	Update(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, invoiceID uint) (*Invoice, error)
	GetBySID(ctx context.Context, sid string) (*Invoice, error)
	// ListNonTerminal returns every invoice the pipeline sweep must
	// re-evaluate (status not COMPLETE or CANCELLED).
	ListNonTerminal(ctx context.Context) ([]*Invoice, error)
	// ListExpired returns PENDING/SENT invoices whose validity window has
	// elapsed.
	ListExpired(ctx context.Context) ([]*Invoice, error)
}
