package deposit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	"coinvoice/internal/application/quote/addressing"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/shared/logger"
)

// bech32Charset and base58Alphabet are the canonical output alphabets for
// BTC and SOL address material.
const (
	bech32Charset  = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
	base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
)

// HMACDeriver derives one deposit address per (invoice, chain) from a
// merchant-level seed. Derivation is pure: the same inputs always produce
// the same address, so concurrent derivations cannot disagree and the
// address survives quote re-issuance.
type HMACDeriver struct {
	seed   []byte
	logger logger.Interface
}

func NewHMACDeriver(seed string, logger logger.Interface) *HMACDeriver {
	return &HMACDeriver{
		seed:   []byte(seed),
		logger: logger,
	}
}

var _ addressing.Deriver = (*HMACDeriver)(nil)

func (d *HMACDeriver) Derive(ctx context.Context, invoiceSID string, chain vo.ChainType) (string, error) {
	mac := hmac.New(sha256.New, d.seed)
	mac.Write([]byte(invoiceSID))
	mac.Write([]byte{'|'})
	mac.Write([]byte(chain.String()))
	digest := mac.Sum(nil)

	var address string
	switch chain {
	case vo.ChainTypeBTC:
		address = "bc1" + encodeBech32Charset(digest[:24])
	case vo.ChainTypeETH:
		address = "0x" + hex.EncodeToString(digest[:20])
	case vo.ChainTypeSOL:
		address = encodeBase58(digest)
	default:
		return "", fmt.Errorf("cannot derive address for chain %s", chain)
	}

	if err := chain.ValidateAddress(address); err != nil {
		return "", fmt.Errorf("derived address failed validation: %w", err)
	}
	return address, nil
}

// encodeBech32Charset maps 5-bit groups of the input onto the bech32
// character set.
func encodeBech32Charset(data []byte) string {
	var out []byte
	acc := 0
	bits := 0
	for _, b := range data {
		acc = acc<<8 | int(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out = append(out, bech32Charset[(acc>>bits)&31])
		}
	}
	if bits > 0 {
		out = append(out, bech32Charset[(acc<<(5-bits))&31])
	}
	return string(out)
}

// encodeBase58 is standard base58 with leading zero bytes mapped to '1'.
func encodeBase58(data []byte) string {
	zeros := 0
	for zeros < len(data) && data[zeros] == 0 {
		zeros++
	}

	num := new(big.Int).SetBytes(data)
	base := big.NewInt(58)
	mod := new(big.Int)

	var out []byte
	for num.Sign() > 0 {
		num.DivMod(num, base, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for i := 0; i < zeros; i++ {
		out = append(out, base58Alphabet[0])
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
