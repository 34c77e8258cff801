// Package deposit holds per-invoice deposit addresses. One address exists
// per (invoice, chain) pair; it is read-only after creation, never reused
// across invoices, and stable across quote re-issuance.
package deposit

import (
	"fmt"
	"time"

	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/shared/biztime"
)

type Address struct {
	id        uint
	invoiceID uint
	chain     vo.ChainType
	address   string
	createdAt time.Time
}

func NewAddress(invoiceID uint, chain vo.ChainType, address string) (*Address, error) {
	if invoiceID == 0 {
		return nil, fmt.Errorf("invoice ID is required")
	}
	if err := chain.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("invalid deposit address for %s: %w", chain, err)
	}
	return &Address{
		invoiceID: invoiceID,
		chain:     chain,
		address:   address,
		createdAt: biztime.NowUTC(),
	}, nil
}

func (a *Address) ID() uint {
	return a.id
}

func (a *Address) InvoiceID() uint {
	return a.invoiceID
}

func (a *Address) Chain() vo.ChainType {
	return a.chain
}

func (a *Address) Value() string {
	return a.address
}

func (a *Address) CreatedAt() time.Time {
	return a.createdAt
}

// SetID sets the numeric ID after persistence (used by the repository).
func (a *Address) SetID(addressID uint) {
	a.id = addressID
}

// Reconstruct rebuilds an Address from persistence without validation.
func Reconstruct(id, invoiceID uint, chain vo.ChainType, address string, createdAt time.Time) *Address {
	return &Address{
		id:        id,
		invoiceID: invoiceID,
		chain:     chain,
		address:   address,
		createdAt: createdAt,
	}
}
