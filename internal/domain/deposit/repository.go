package deposit

import (
	"context"
	"errors"

	vo "coinvoice/internal/domain/invoice/valueobjects"
)

// ErrAlreadyExists is returned when an address already exists for the
// (invoice, chain) pair.
var ErrAlreadyExists = errors.New("deposit address already exists for invoice and chain")

type AddressRepository interface {
	// Create persists the address; a unique index on (invoice_id, chain)
	// makes concurrent creation race-safe. ErrAlreadyExists signals a lost
	// race and the caller re-reads.
	Create(ctx context.Context, addr *Address) error
	GetByInvoiceAndChain(ctx context.Context, invoiceID uint, chain vo.ChainType) (*Address, error)
	ListByInvoice(ctx context.Context, invoiceID uint) ([]*Address, error)
}
