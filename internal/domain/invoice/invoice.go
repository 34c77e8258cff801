package invoice

import (
	"errors"
	"fmt"
	"time"

	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/shared/biztime"
	"coinvoice/internal/shared/id"
)

var (
	// ErrPaymentAlreadyDetected is returned when cancellation is attempted
	// after a payment has been observed. Cancellation is only valid before
	// the invoice reaches PAID_DETECTED.
	ErrPaymentAlreadyDetected = errors.New("payment already detected")

	// ErrInvoiceCancelled is returned when a forward transition is applied
	// to a cancelled invoice. Callers discard the triggering result.
	ErrInvoiceCancelled = errors.New("invoice is cancelled")
)

// Invoice is the aggregate root of the payment pipeline. Its status is
// mutated exclusively through the transition methods below; each method is
// a no-op when re-applied in the state it produces, so pipeline ticks stay
// idempotent.
type Invoice struct {
	id               uint
	sid              string // prefixed short ID, the public identity
	merchantID       uint
	total            vo.Money
	enabledChains    []vo.ChainType
	settlementTarget vo.SettlementTarget
	status           vo.InvoiceStatus

	metadata map[string]interface{}

	expiredAt time.Time
	version   int
	createdAt time.Time
	updatedAt time.Time
}

// DefaultValidity is how long a new invoice stays payable.
const DefaultValidity = 24 * time.Hour

func NewInvoice(merchantID uint, total vo.Money, chains []vo.ChainType, target vo.SettlementTarget) (*Invoice, error) {
	if merchantID == 0 {
		return nil, fmt.Errorf("merchant ID is required")
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("total must be positive")
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("at least one payment chain is required")
	}
	seen := make(map[vo.ChainType]bool, len(chains))
	for _, c := range chains {
		if !c.IsValid() {
			return nil, fmt.Errorf("invalid chain type: %s", c)
		}
		if seen[c] {
			return nil, fmt.Errorf("duplicate chain type: %s", c)
		}
		seen[c] = true
	}

	sid, err := id.NewInvoiceID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invoice ID: %w", err)
	}

	now := biztime.NowUTC()
	return &Invoice{
		sid:              sid,
		merchantID:       merchantID,
		total:            total,
		enabledChains:    chains,
		settlementTarget: target,
		status:           vo.InvoiceStatusPending,
		metadata:         make(map[string]interface{}),
		expiredAt:        now.Add(DefaultValidity),
		createdAt:        now,
		updatedAt:        now,
	}, nil
}

// MarkSent records delivery of the invoice to the payer.
func (i *Invoice) MarkSent() error {
	if i.status == vo.InvoiceStatusSent {
		return nil
	}
	if i.status != vo.InvoiceStatusPending {
		return fmt.Errorf("cannot mark invoice as sent with status %s", i.status)
	}
	i.transition(vo.InvoiceStatusSent)
	return nil
}

// MarkPaidDetected is fired exactly once by the payment reconciler when a
// PaymentRecord is created. On a cancelled invoice it fails closed with
// ErrInvoiceCancelled so the reconciliation result can be discarded.
func (i *Invoice) MarkPaidDetected() error {
	if i.status == vo.InvoiceStatusPaidDetected {
		return nil
	}
	if i.status == vo.InvoiceStatusCancelled {
		return ErrInvoiceCancelled
	}
	if i.status != vo.InvoiceStatusSent {
		return fmt.Errorf("cannot mark invoice as paid detected with status %s", i.status)
	}
	i.transition(vo.InvoiceStatusPaidDetected)
	return nil
}

// BeginConversion enters the conversion stage. Only valid when the
// settlement target differs from the paid chain's native asset.
func (i *Invoice) BeginConversion() error {
	if i.status == vo.InvoiceStatusConverting {
		return nil
	}
	if i.status != vo.InvoiceStatusPaidDetected {
		return fmt.Errorf("cannot begin conversion with status %s", i.status)
	}
	i.transition(vo.InvoiceStatusConverting)
	return nil
}

// MarkSettling enters the settlement stage, either directly from
// PAID_DETECTED (conversion skipped) or after a successful conversion.
func (i *Invoice) MarkSettling() error {
	if i.status == vo.InvoiceStatusSettling {
		return nil
	}
	if i.status != vo.InvoiceStatusPaidDetected && i.status != vo.InvoiceStatusConverting {
		return fmt.Errorf("cannot mark invoice as settling with status %s", i.status)
	}
	i.transition(vo.InvoiceStatusSettling)
	return nil
}

// MarkCashedOut records a successful fiat cash-out leg. Only applicable when
// the settlement target is fiat.
func (i *Invoice) MarkCashedOut() error {
	if i.status == vo.InvoiceStatusCashedOut {
		return nil
	}
	if i.status != vo.InvoiceStatusSettling {
		return fmt.Errorf("cannot mark invoice as cashed out with status %s", i.status)
	}
	if !i.settlementTarget.IsFiat() {
		return fmt.Errorf("cash-out is only applicable to fiat settlement targets")
	}
	i.transition(vo.InvoiceStatusCashedOut)
	return nil
}

// Complete finishes the pipeline, from SETTLING (native target) or
// CASHED_OUT (fiat target).
func (i *Invoice) Complete() error {
	if i.status == vo.InvoiceStatusComplete {
		return nil
	}
	if i.status != vo.InvoiceStatusSettling && i.status != vo.InvoiceStatusCashedOut {
		return fmt.Errorf("cannot complete invoice with status %s", i.status)
	}
	i.transition(vo.InvoiceStatusComplete)
	return nil
}

// Cancel moves the invoice to CANCELLED. It is rejected once payment has
// been observed: a payment arriving after cancellation is a refund/manual
// matter, but cancellation after payment would strand observed funds.
func (i *Invoice) Cancel() error {
	if i.status == vo.InvoiceStatusCancelled {
		return nil
	}
	if i.status == vo.InvoiceStatusComplete {
		return fmt.Errorf("cannot cancel a completed invoice")
	}
	if i.status.IsPaid() {
		return ErrPaymentAlreadyDetected
	}
	i.transition(vo.InvoiceStatusCancelled)
	return nil
}

func (i *Invoice) transition(to vo.InvoiceStatus) {
	i.status = to
	i.updatedAt = biztime.NowUTC()
	i.version++
}

// IsExpired reports whether the invoice validity window has elapsed without
// a payment being observed.
func (i *Invoice) IsExpired() bool {
	return biztime.NowUTC().After(i.expiredAt) &&
		(i.status == vo.InvoiceStatusPending || i.status == vo.InvoiceStatusSent)
}

// ChainEnabled reports whether the payer may settle on the given chain.
func (i *Invoice) ChainEnabled(chain vo.ChainType) bool {
	for _, c := range i.enabledChains {
		if c == chain {
			return true
		}
	}
	return false
}

func (i *Invoice) ID() uint {
	return i.id
}

func (i *Invoice) SID() string {
	return i.sid
}

func (i *Invoice) MerchantID() uint {
	return i.merchantID
}

func (i *Invoice) Total() vo.Money {
	return i.total
}

func (i *Invoice) EnabledChains() []vo.ChainType {
	return i.enabledChains
}

func (i *Invoice) SettlementTarget() vo.SettlementTarget {
	return i.settlementTarget
}

func (i *Invoice) Status() vo.InvoiceStatus {
	return i.status
}

func (i *Invoice) Metadata() map[string]interface{} {
	return i.metadata
}

// SetMetadata records a metadata key-value pair.
func (i *Invoice) SetMetadata(key string, value interface{}) {
	if i.metadata == nil {
		i.metadata = make(map[string]interface{})
	}
	i.metadata[key] = value
	i.updatedAt = biztime.NowUTC()
}

func (i *Invoice) ExpiredAt() time.Time {
	return i.expiredAt
}

func (i *Invoice) Version() int {
	return i.version
}

func (i *Invoice) CreatedAt() time.Time {
	return i.createdAt
}

func (i *Invoice) UpdatedAt() time.Time {
	return i.updatedAt
}

// SetID sets the numeric ID after persistence (used by the repository).
func (i *Invoice) SetID(invoiceID uint) {
	i.id = invoiceID
}

// ReconstructParams carries every persisted field of an invoice.
type ReconstructParams struct {
	ID               uint
	SID              string
	MerchantID       uint
	Total            vo.Money
	EnabledChains    []vo.ChainType
	SettlementTarget vo.SettlementTarget
	Status           vo.InvoiceStatus
	Metadata         map[string]interface{}
	ExpiredAt        time.Time
	Version          int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Reconstruct rebuilds an Invoice from persistence without validation.
func Reconstruct(p ReconstructParams) *Invoice {
	metadata := p.Metadata
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &Invoice{
		id:               p.ID,
		sid:              p.SID,
		merchantID:       p.MerchantID,
		total:            p.Total,
		enabledChains:    p.EnabledChains,
		settlementTarget: p.SettlementTarget,
		status:           p.Status,
		metadata:         metadata,
		expiredAt:        p.ExpiredAt,
		version:          p.Version,
		createdAt:        p.CreatedAt,
		updatedAt:        p.UpdatedAt,
	}
}
