// Package blockchain defines the chain observation capability the payment
// reconciler depends on. How nodes are queried is an adapter concern.
package blockchain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	vo "coinvoice/internal/domain/invoice/valueobjects"
)

// Transfer is one observed inbound transfer to a deposit address. Amounts
// are in the chain's native asset units.
type Transfer struct {
	TxRef         string
	FromAddress   string
	Amount        decimal.Decimal
	Confirmations int
	Timestamp     time.Time
}

// Observer answers "what has this address received since t". Results are
// at-least-once: duplicates may appear across calls, and transfers may still
// be pending (insufficient confirmations) — the reconciler filters by the
// chain's finality threshold before treating anything as settled fact.
type Observer interface {
	Observe(ctx context.Context, chain vo.ChainType, address string, since time.Time) ([]Transfer, error)
}
