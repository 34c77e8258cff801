// Package providers defines the narrow interfaces behind which currency
// conversion, settlement and fiat payout are executed. All calls are
// idempotent on IdempotencyKey so a retried stage never double-spends.
package providers

import (
	"context"

	"github.com/shopspring/decimal"
)

type ConversionRequest struct {
	InvoiceSID     string
	IdempotencyKey string
	FromAsset      string
	ToAsset        string
	Amount         decimal.Decimal
}

type ConversionResult struct {
	Reference string
	ToAmount  decimal.Decimal
}

// ConversionProvider exchanges the received asset for the settlement asset.
type ConversionProvider interface {
	Convert(ctx context.Context, req ConversionRequest) (*ConversionResult, error)
}

type SettlementRequest struct {
	InvoiceSID     string
	IdempotencyKey string
	Asset          string
	Amount         decimal.Decimal
	// TargetKind is "native" (merchant wallet) or "fiat" (cash-out rail).
	TargetKind string
}

type SettlementResult struct {
	Reference string
}

// SettlementProvider moves value to the merchant's configured target.
type SettlementProvider interface {
	Settle(ctx context.Context, req SettlementRequest) (*SettlementResult, error)
}

type PayoutRequest struct {
	InvoiceSID     string
	IdempotencyKey string
	Currency       string
	Amount         decimal.Decimal
}

type PayoutResult struct {
	Reference string
}

// PayoutProvider executes the fiat cash-out leg over a banking rail.
type PayoutProvider interface {
	Payout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
}

// ReceiptMaterializer is notified once an invoice completes. Receipt
// generation itself is an external collaborator; failures here never block
// completion.
type ReceiptMaterializer interface {
	Materialize(ctx context.Context, invoiceSID string) error
}
