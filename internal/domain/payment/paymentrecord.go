// Package payment holds the PaymentRecord: the canonical, immutable
// evidence that an invoice was paid on-chain.
package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/shared/biztime"
	"coinvoice/internal/shared/id"
)

// ErrAlreadyExists is returned by the repository when a PaymentRecord
// already exists for the invoice. At most one record per invoice is
// enforced by a conditional create at the storage layer.
var ErrAlreadyExists = errors.New("payment record already exists for invoice")

// PaymentRecord is created exactly once per invoice by the reconciler and
// never mutated afterwards.
type PaymentRecord struct {
	id            uint
	sid           string
	invoiceID     uint
	quoteID       uint
	chain         vo.ChainType
	txRef         string
	amount        decimal.Decimal
	confirmations int
	detectedAt    time.Time
	createdAt     time.Time
}

func NewPaymentRecord(invoiceID, quoteID uint, chain vo.ChainType, txRef string, amount decimal.Decimal, confirmations int) (*PaymentRecord, error) {
	if invoiceID == 0 {
		return nil, fmt.Errorf("invoice ID is required")
	}
	if quoteID == 0 {
		return nil, fmt.Errorf("quote ID is required")
	}
	if !chain.IsValid() {
		return nil, fmt.Errorf("invalid chain type: %s", chain)
	}
	if txRef == "" {
		return nil, fmt.Errorf("transaction reference is required")
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("observed amount must be positive")
	}
	if confirmations < 0 {
		return nil, fmt.Errorf("confirmations cannot be negative")
	}

	sid, err := id.NewPaymentRecordID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate payment record ID: %w", err)
	}

	now := biztime.NowUTC()
	return &PaymentRecord{
		sid:           sid,
		invoiceID:     invoiceID,
		quoteID:       quoteID,
		chain:         chain,
		txRef:         txRef,
		amount:        amount,
		confirmations: confirmations,
		detectedAt:    now,
		createdAt:     now,
	}, nil
}

func (r *PaymentRecord) ID() uint {
	return r.id
}

func (r *PaymentRecord) SID() string {
	return r.sid
}

func (r *PaymentRecord) InvoiceID() uint {
	return r.invoiceID
}

func (r *PaymentRecord) QuoteID() uint {
	return r.quoteID
}

func (r *PaymentRecord) Chain() vo.ChainType {
	return r.chain
}

func (r *PaymentRecord) TxRef() string {
	return r.txRef
}

func (r *PaymentRecord) Amount() decimal.Decimal {
	return r.amount
}

func (r *PaymentRecord) Confirmations() int {
	return r.confirmations
}

func (r *PaymentRecord) DetectedAt() time.Time {
	return r.detectedAt
}

func (r *PaymentRecord) CreatedAt() time.Time {
	return r.createdAt
}

// SetID sets the numeric ID after persistence (used by the repository).
func (r *PaymentRecord) SetID(recordID uint) {
	r.id = recordID
}

// ReconstructParams carries every persisted field of a payment record.
type ReconstructParams struct {
	ID            uint
	SID           string
	InvoiceID     uint
	QuoteID       uint
	Chain         vo.ChainType
	TxRef         string
	Amount        decimal.Decimal
	Confirmations int
	DetectedAt    time.Time
	CreatedAt     time.Time
}

// Reconstruct rebuilds a PaymentRecord from persistence without validation.
func Reconstruct(p ReconstructParams) *PaymentRecord {
	return &PaymentRecord{
		id:            p.ID,
		sid:           p.SID,
		invoiceID:     p.InvoiceID,
		quoteID:       p.QuoteID,
		chain:         p.Chain,
		txRef:         p.TxRef,
		amount:        p.Amount,
		confirmations: p.Confirmations,
		detectedAt:    p.DetectedAt,
		createdAt:     p.CreatedAt,
	}
}
