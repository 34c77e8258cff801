package valueobjects

import (
	"fmt"
	"regexp"
)

// ChainType identifies a blockchain an invoice can be paid on.
type ChainType string

const (
	ChainTypeBTC ChainType = "BTC"
	ChainTypeETH ChainType = "ETH"
	ChainTypeSOL ChainType = "SOL"
)

// AllChainTypes lists every supported chain in deterministic order. The
// reconciler iterates chains in this order, which defines the tie-break when
// more than one chain shows a qualifying transfer.
var AllChainTypes = []ChainType{ChainTypeBTC, ChainTypeETH, ChainTypeSOL}

// NewChainType parses and validates a chain identifier.
func NewChainType(chain string) (ChainType, error) {
	ct := ChainType(chain)
	if !ct.IsValid() {
		return "", fmt.Errorf("invalid chain type: %s", chain)
	}
	return ct, nil
}

func (ct ChainType) IsValid() bool {
	switch ct {
	case ChainTypeBTC, ChainTypeETH, ChainTypeSOL:
		return true
	default:
		return false
	}
}

func (ct ChainType) String() string {
	return string(ct)
}

// NativeAsset returns the asset symbol received when the invoice is paid on
// this chain.
func (ct ChainType) NativeAsset() string {
	return string(ct)
}

// RequiredConfirmations is the finality threshold: the minimum confirmation
// depth before an observed transfer is treated as settled fact.
func (ct ChainType) RequiredConfirmations() int {
	switch ct {
	case ChainTypeBTC:
		return 3
	case ChainTypeETH:
		return 12
	case ChainTypeSOL:
		return 32
	default:
		return 0
	}
}

// AmountPrecision is the number of decimal places quotes are rounded to.
func (ct ChainType) AmountPrecision() int32 {
	switch ct {
	case ChainTypeBTC:
		return 8
	case ChainTypeETH:
		return 8
	case ChainTypeSOL:
		return 9
	default:
		return 8
	}
}

var (
	// Bech32 or legacy Base58Check mainnet addresses.
	btcAddressPattern = regexp.MustCompile(`^(bc1[02-9ac-hj-np-z]{11,87}|[13][1-9A-HJ-NP-Za-km-z]{25,34})$`)
	// EVM address: 0x followed by 40 hex characters.
	ethAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	// Solana account: 32-44 Base58 characters.
	solAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// ValidateAddress validates a deposit address for this chain.
func (ct ChainType) ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	switch ct {
	case ChainTypeBTC:
		if !btcAddressPattern.MatchString(address) {
			return fmt.Errorf("invalid Bitcoin address format")
		}
		return nil
	case ChainTypeETH:
		if !ethAddressPattern.MatchString(address) {
			return fmt.Errorf("invalid Ethereum address format: must be 0x followed by 40 hex characters")
		}
		return nil
	case ChainTypeSOL:
		if !solAddressPattern.MatchString(address) {
			return fmt.Errorf("invalid Solana address format: must be 32-44 base58 characters")
		}
		return nil
	default:
		return fmt.Errorf("cannot validate address for unknown chain type: %s", ct)
	}
}

// IsValidAddress reports whether the address is valid for this chain.
func (ct ChainType) IsValidAddress(address string) bool {
	return ct.ValidateAddress(address) == nil
}
