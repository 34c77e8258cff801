package payment

import "context"

type PaymentRecordRepository interface {
	// Create persists the record if and only if none exists for the
	// invoice yet (unique index on invoice_id). A duplicate returns
	// ErrAlreadyExists without touching committed state.
	Create(ctx context.Context, rec *PaymentRecord) error
	GetByInvoiceID(ctx context.Context, invoiceID uint) (*PaymentRecord, error)
	ExistsForInvoice(ctx context.Context, invoiceID uint) (bool, error)
}
