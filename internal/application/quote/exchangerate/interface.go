// Package exchangerate defines the rate-source capability the quote ledger
// depends on. How rates are actually sourced is a provider concern.
package exchangerate

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	vo "coinvoice/internal/domain/invoice/valueobjects"
)

// ErrRateUnavailable is returned when no rate can be sourced for the pair.
// Quote issuance reports it synchronously to the caller.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Service provides fiat prices for chain assets.
type Service interface {
	// GetRate returns how much fiat currency one unit of the chain's
	// native asset is worth (e.g. 2000 for ETH/USD at 2000 USD per ETH).
	GetRate(ctx context.Context, chain vo.ChainType, fiatCurrency string) (decimal.Decimal, error)
}
