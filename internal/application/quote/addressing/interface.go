// Package addressing defines the deposit address derivation capability.
package addressing

import (
	"context"

	vo "coinvoice/internal/domain/invoice/valueobjects"
)

// Deriver produces the deposit address for an (invoice, chain) pair. The
// derivation must be deterministic: deriving twice for the same pair yields
// the same address, and no two invoices ever share one.
type Deriver interface {
	Derive(ctx context.Context, invoiceSID string, chain vo.ChainType) (string, error)
}
