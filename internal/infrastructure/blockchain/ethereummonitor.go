package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	ports "coinvoice/internal/application/payment/blockchain"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/shared/logger"
)

const (
	ethRequestTimeout = 15 * time.Second
	// Maximum response body size for blockchain APIs (1MB)
	maxChainResponseSize = 1 << 20
	// Maximum pages to scan per observation
	maxEthPages = 5
	ethPageSize = 200
	// wei per ETH exponent
	weiDecimals = 18
)

// etherscanResponse is the Etherscan account API envelope
type etherscanResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  any    `json:"result"`
}

// ethTransaction is one entry of the txlist result
type ethTransaction struct {
	BlockNumber   string `json:"blockNumber"`
	TimeStamp     string `json:"timeStamp"`
	Hash          string `json:"hash"`
	From          string `json:"from"`
	To            string `json:"to"`
	Value         string `json:"value"`
	IsError       string `json:"isError"`
	Confirmations string `json:"confirmations"`
}

// EthereumMonitor observes native ETH transfers to deposit addresses via an
// Etherscan-style account API.
type EthereumMonitor struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	logger     logger.Interface
}

func NewEthereumMonitor(apiURL, apiKey string, logger logger.Interface) *EthereumMonitor {
	if apiKey == "" {
		logger.Errorw("ETH API key not configured, every ETH observation will fail until it is set")
	}
	return &EthereumMonitor{
		apiURL: apiURL,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: ethRequestTimeout,
		},
		logger: logger,
	}
}

// Observe returns inbound transfers to the address seen on or after since.
// Duplicates across calls are expected; the reconciler deduplicates.
func (m *EthereumMonitor) Observe(ctx context.Context, chain vo.ChainType, address string, since time.Time) ([]ports.Transfer, error) {
	if chain != vo.ChainTypeETH {
		return nil, fmt.Errorf("EthereumMonitor only supports ETH")
	}

	// An unset key must fail observation, not silently report no
	// transfers: the reconciler logs the error on every sweep, so the
	// misconfiguration is visible instead of invoices never reconciling.
	if m.apiKey == "" {
		return nil, fmt.Errorf("etherscan API key not configured")
	}

	address = strings.ToLower(address)

	// 30s buffer absorbs clock skew between us and the chain explorer
	minTime := since.Add(-30 * time.Second)

	var transfers []ports.Transfer
	for page := 1; page <= maxEthPages; page++ {
		pageTxs, err := m.fetchTransactions(ctx, address, page)
		if err != nil {
			return nil, err
		}
		if len(pageTxs) == 0 {
			break
		}

		stop := false
		for _, tx := range pageTxs {
			if strings.ToLower(tx.To) != address || tx.IsError == "1" {
				continue
			}

			timestamp, _ := strconv.ParseInt(tx.TimeStamp, 10, 64)
			txTime := time.Unix(timestamp, 0).UTC()

			// Results are sorted desc; everything after this is older
			if txTime.Before(minTime) {
				stop = true
				break
			}

			wei, err := decimal.NewFromString(tx.Value)
			if err != nil {
				m.logger.Warnw("failed to parse transaction value",
					"tx_hash", tx.Hash, "value", tx.Value, "error", err)
				continue
			}
			if wei.IsZero() {
				continue
			}

			confirmations, _ := strconv.Atoi(tx.Confirmations)

			transfers = append(transfers, ports.Transfer{
				TxRef:         tx.Hash,
				FromAddress:   tx.From,
				Amount:        wei.Shift(-weiDecimals),
				Confirmations: confirmations,
				Timestamp:     txTime,
			})
		}
		if stop {
			break
		}
	}

	return transfers, nil
}

// fetchTransactions fetches one page of normal transactions, newest first
func (m *EthereumMonitor) fetchTransactions(ctx context.Context, address string, page int) ([]ethTransaction, error) {
	url := fmt.Sprintf("%s?module=account&action=txlist&address=%s&page=%d&offset=%d&sort=desc&apikey=%s",
		m.apiURL, address, page, ethPageSize, m.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	defer resp.Body.Close()

	var apiResp etherscanResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxChainResponseSize)).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if apiResp.Status != "1" {
		if apiResp.Message == "No transactions found" {
			return nil, nil
		}
		if apiResp.Message == "NOTOK" {
			if resultStr, ok := apiResp.Result.(string); ok && resultStr != "" {
				return nil, fmt.Errorf("etherscan API error: %s", resultStr)
			}
			return nil, fmt.Errorf("etherscan API rate limited")
		}
		return nil, fmt.Errorf("etherscan API error: %s", apiResp.Message)
	}

	resultBytes, err := json.Marshal(apiResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var txs []ethTransaction
	if err := json.Unmarshal(resultBytes, &txs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transactions: %w", err)
	}

	return txs, nil
}
