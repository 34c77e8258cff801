package valueobjects

import "fmt"

// SettlementKind distinguishes a native-asset wallet target from a fiat
// cash-out rail.
type SettlementKind string

const (
	SettlementKindNative SettlementKind = "native"
	SettlementKindFiat   SettlementKind = "fiat"
)

// SettlementTarget is where settled value ends up: either a native crypto
// asset held as-is, or a fiat currency paid out through a banking rail.
type SettlementTarget struct {
	kind  SettlementKind
	asset string // asset symbol for native, ISO currency for fiat
}

// NewNativeTarget builds a target that keeps the given crypto asset.
func NewNativeTarget(asset string) (SettlementTarget, error) {
	if asset == "" {
		return SettlementTarget{}, fmt.Errorf("native settlement target requires an asset symbol")
	}
	return SettlementTarget{kind: SettlementKindNative, asset: asset}, nil
}

// NewFiatTarget builds a cash-out target for the given ISO currency.
func NewFiatTarget(currency string) (SettlementTarget, error) {
	if currency == "" {
		return SettlementTarget{}, fmt.Errorf("fiat settlement target requires a currency code")
	}
	return SettlementTarget{kind: SettlementKindFiat, asset: currency}, nil
}

// NewSettlementTarget parses a persisted (kind, asset) pair.
func NewSettlementTarget(kind, asset string) (SettlementTarget, error) {
	switch SettlementKind(kind) {
	case SettlementKindNative:
		return NewNativeTarget(asset)
	case SettlementKindFiat:
		return NewFiatTarget(asset)
	default:
		return SettlementTarget{}, fmt.Errorf("invalid settlement kind: %s", kind)
	}
}

func (t SettlementTarget) Kind() SettlementKind {
	return t.kind
}

// Asset returns the asset symbol (native) or currency code (fiat).
func (t SettlementTarget) Asset() string {
	return t.asset
}

func (t SettlementTarget) IsFiat() bool {
	return t.kind == SettlementKindFiat
}

// MatchesChainAsset reports whether the target is exactly the paid chain's
// native asset, in which case the conversion stage is skipped.
func (t SettlementTarget) MatchesChainAsset(chain ChainType) bool {
	return t.kind == SettlementKindNative && t.asset == chain.NativeAsset()
}

func (t SettlementTarget) String() string {
	return fmt.Sprintf("%s:%s", t.kind, t.asset)
}
