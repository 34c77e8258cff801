package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	ports "coinvoice/internal/application/payment/blockchain"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/shared/logger"
)

const (
	solRequestTimeout = 15 * time.Second
	// lamports per SOL exponent
	lamportDecimals = 9
	// Signatures fetched per observation
	maxSolSignatures = 25
)

type solanaRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type solanaRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type solSignatureInfo struct {
	Signature string  `json:"signature"`
	Slot      int64   `json:"slot"`
	Err       any     `json:"err"`
	BlockTime *int64  `json:"blockTime"`
}

type solTransactionResult struct {
	Slot int64 `json:"slot"`
	Meta *struct {
		PreBalances  []int64 `json:"preBalances"`
		PostBalances []int64 `json:"postBalances"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys []struct {
				Pubkey string `json:"pubkey"`
			} `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

// SolanaMonitor observes SOL transfers to deposit addresses by scanning
// recent signatures over JSON-RPC and reading lamport balance deltas.
type SolanaMonitor struct {
	rpcURL     string
	httpClient *http.Client
	logger     logger.Interface
}

func NewSolanaMonitor(rpcURL string, logger logger.Interface) *SolanaMonitor {
	return &SolanaMonitor{
		rpcURL: rpcURL,
		httpClient: &http.Client{
			Timeout: solRequestTimeout,
		},
		logger: logger,
	}
}

func (m *SolanaMonitor) Observe(ctx context.Context, chain vo.ChainType, address string, since time.Time) ([]ports.Transfer, error) {
	if chain != vo.ChainTypeSOL {
		return nil, fmt.Errorf("SolanaMonitor only supports SOL")
	}

	currentSlot, err := m.fetchSlot(ctx)
	if err != nil {
		return nil, err
	}

	signatures, err := m.fetchSignatures(ctx, address)
	if err != nil {
		return nil, err
	}

	minTime := since.Add(-30 * time.Second)

	var transfers []ports.Transfer
	for _, sig := range signatures {
		if sig.Err != nil || sig.BlockTime == nil {
			continue
		}
		txTime := time.Unix(*sig.BlockTime, 0).UTC()
		// Signatures arrive newest first
		if txTime.Before(minTime) {
			break
		}

		transfer, err := m.resolveTransfer(ctx, sig.Signature, address, txTime, currentSlot)
		if err != nil {
			m.logger.Warnw("failed to resolve solana transaction",
				"signature", sig.Signature, "error", err)
			continue
		}
		if transfer != nil {
			transfers = append(transfers, *transfer)
		}
	}

	return transfers, nil
}

// resolveTransfer reads the lamport delta of the address in one transaction;
// a positive delta is an inbound transfer.
func (m *SolanaMonitor) resolveTransfer(ctx context.Context, signature, address string, txTime time.Time, currentSlot int64) (*ports.Transfer, error) {
	var tx solTransactionResult
	if err := m.call(ctx, "getTransaction", []any{
		signature,
		map[string]any{"encoding": "jsonParsed", "maxSupportedTransactionVersion": 0},
	}, &tx); err != nil {
		return nil, err
	}

	if tx.Meta == nil {
		return nil, nil
	}

	accountIndex := -1
	for i, key := range tx.Transaction.Message.AccountKeys {
		if key.Pubkey == address {
			accountIndex = i
			break
		}
	}
	if accountIndex < 0 ||
		accountIndex >= len(tx.Meta.PreBalances) ||
		accountIndex >= len(tx.Meta.PostBalances) {
		return nil, nil
	}

	deltaLamports := tx.Meta.PostBalances[accountIndex] - tx.Meta.PreBalances[accountIndex]
	if deltaLamports <= 0 {
		return nil, nil
	}

	from := ""
	if len(tx.Transaction.Message.AccountKeys) > 0 {
		from = tx.Transaction.Message.AccountKeys[0].Pubkey
	}

	confirmations := 0
	if currentSlot >= tx.Slot {
		confirmations = int(currentSlot - tx.Slot)
	}

	return &ports.Transfer{
		TxRef:         signature,
		FromAddress:   from,
		Amount:        decimal.NewFromInt(deltaLamports).Shift(-lamportDecimals),
		Confirmations: confirmations,
		Timestamp:     txTime,
	}, nil
}

func (m *SolanaMonitor) fetchSlot(ctx context.Context) (int64, error) {
	var slot int64
	if err := m.call(ctx, "getSlot", []any{map[string]any{"commitment": "finalized"}}, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

func (m *SolanaMonitor) fetchSignatures(ctx context.Context, address string) ([]solSignatureInfo, error) {
	var signatures []solSignatureInfo
	if err := m.call(ctx, "getSignaturesForAddress", []any{
		address,
		map[string]any{"limit": maxSolSignatures},
	}, &signatures); err != nil {
		return nil, err
	}
	return signatures, nil
}

func (m *SolanaMonitor) call(ctx context.Context, method string, params []any, out any) error {
	payload, err := json.Marshal(solanaRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal RPC request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call solana RPC: %w", err)
	}
	defer resp.Body.Close()

	var rpcResp solanaRPCResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxChainResponseSize)).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode RPC response: %w", err)
	}

	if rpcResp.Error != nil {
		return fmt.Errorf("solana RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("failed to unmarshal RPC result: %w", err)
	}
	return nil
}
