package pipeline

import "context"

type StepRepository interface {
	// Append persists a new step entry. The log is append-only: entries
	// are never updated or deleted.
	Append(ctx context.Context, step *Step) error
	// ListByInvoice returns the full log in append order.
	ListByInvoice(ctx context.Context, invoiceID uint) ([]*Step, error)
	// LatestByKind returns the most recent entry of the given kind, nil if
	// none exists.
	LatestByKind(ctx context.Context, invoiceID uint, kind StepKind) (*Step, error)
}
