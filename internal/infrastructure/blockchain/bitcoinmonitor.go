package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	ports "coinvoice/internal/application/payment/blockchain"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/shared/logger"
)

const (
	btcRequestTimeout = 15 * time.Second
	// satoshi per BTC exponent
	satoshiDecimals = 8
)

// btcTransaction is one entry of the mempool.space address txs response
type btcTransaction struct {
	TxID   string `json:"txid"`
	Vin    []struct {
		Prevout struct {
			ScriptpubkeyAddress string `json:"scriptpubkey_address"`
		} `json:"prevout"`
	} `json:"vin"`
	Vout []struct {
		ScriptpubkeyAddress string `json:"scriptpubkey_address"`
		Value               int64  `json:"value"`
	} `json:"vout"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
		BlockTime   int64 `json:"block_time"`
	} `json:"status"`
}

// BitcoinMonitor observes BTC transfers to deposit addresses via a
// mempool.space-style REST API.
type BitcoinMonitor struct {
	apiURL     string
	httpClient *http.Client
	logger     logger.Interface
}

func NewBitcoinMonitor(apiURL string, logger logger.Interface) *BitcoinMonitor {
	return &BitcoinMonitor{
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: btcRequestTimeout,
		},
		logger: logger,
	}
}

// Observe returns inbound transfers to the address. Unconfirmed mempool
// entries are reported with zero confirmations; the reconciler applies the
// finality threshold.
func (m *BitcoinMonitor) Observe(ctx context.Context, chain vo.ChainType, address string, since time.Time) ([]ports.Transfer, error) {
	if chain != vo.ChainTypeBTC {
		return nil, fmt.Errorf("BitcoinMonitor only supports BTC")
	}

	tipHeight, err := m.fetchTipHeight(ctx)
	if err != nil {
		return nil, err
	}

	txs, err := m.fetchAddressTxs(ctx, address)
	if err != nil {
		return nil, err
	}

	minTime := since.Add(-30 * time.Second)

	var transfers []ports.Transfer
	for _, tx := range txs {
		var sats int64
		for _, out := range tx.Vout {
			if out.ScriptpubkeyAddress == address {
				sats += out.Value
			}
		}
		if sats == 0 {
			continue
		}

		var txTime time.Time
		confirmations := 0
		if tx.Status.Confirmed {
			txTime = time.Unix(tx.Status.BlockTime, 0).UTC()
			if tx.Status.BlockHeight > 0 && tipHeight >= tx.Status.BlockHeight {
				confirmations = int(tipHeight-tx.Status.BlockHeight) + 1
			}
			if txTime.Before(minTime) {
				continue
			}
		} else {
			// Mempool entries carry no block time; report them as just seen
			txTime = time.Now().UTC()
		}

		from := ""
		if len(tx.Vin) > 0 {
			from = tx.Vin[0].Prevout.ScriptpubkeyAddress
		}

		transfers = append(transfers, ports.Transfer{
			TxRef:         tx.TxID,
			FromAddress:   from,
			Amount:        decimal.NewFromInt(sats).Shift(-satoshiDecimals),
			Confirmations: confirmations,
			Timestamp:     txTime,
		})
	}

	return transfers, nil
}

func (m *BitcoinMonitor) fetchTipHeight(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.apiURL+"/blocks/tip/height", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch tip height: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return 0, fmt.Errorf("failed to read tip height: %w", err)
	}

	height, err := strconv.ParseInt(string(body), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse tip height: %w", err)
	}
	return height, nil
}

func (m *BitcoinMonitor) fetchAddressTxs(ctx context.Context, address string) ([]btcTransaction, error) {
	url := fmt.Sprintf("%s/address/%s/txs", m.apiURL, address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch address transactions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mempool API returned status %d", resp.StatusCode)
	}

	var txs []btcTransaction
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxChainResponseSize)).Decode(&txs); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}

	return txs, nil
}
