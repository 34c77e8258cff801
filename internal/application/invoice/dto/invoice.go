package dto

import "time"

// InvoiceResponse is the payer-facing view of an invoice: totals, current
// status and the per-chain payment options currently on offer.
type InvoiceResponse struct {
	SID              string               `json:"id"`
	Status           string               `json:"status"`
	AmountMinor      int64                `json:"amount_minor"`
	Currency         string               `json:"currency"`
	EnabledChains    []string             `json:"enabled_chains"`
	SettlementKind   string               `json:"settlement_kind"`
	SettlementAsset  string               `json:"settlement_asset"`
	ExpiresAt        time.Time            `json:"expires_at"`
	ChainOptions     []ChainOptionResponse `json:"chain_options"`
	Payment          *PaymentResponse     `json:"payment,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

// ChainOptionResponse is one chain's payment option: the deposit address
// and, when one is active, the quoted crypto amount with its countdown.
type ChainOptionResponse struct {
	Chain            string     `json:"chain"`
	DepositAddress   string     `json:"deposit_address,omitempty"`
	QuoteSID         string     `json:"quote_id,omitempty"`
	CryptoAmount     string     `json:"crypto_amount,omitempty"`
	Rate             string     `json:"rate,omitempty"`
	QuoteExpiresAt   *time.Time `json:"quote_expires_at,omitempty"`
	SecondsRemaining int64      `json:"seconds_remaining,omitempty"`
	QuoteExpired     bool       `json:"quote_expired,omitempty"`
}

// PaymentResponse summarizes the detected payment once one exists.
type PaymentResponse struct {
	Chain         string    `json:"chain"`
	TxRef         string    `json:"tx_ref"`
	Amount        string    `json:"amount"`
	Confirmations int       `json:"confirmations"`
	DetectedAt    time.Time `json:"detected_at"`
}

// QuoteResponse is returned from quote issuance.
type QuoteResponse struct {
	SID              string    `json:"id"`
	Chain            string    `json:"chain"`
	CryptoAmount     string    `json:"crypto_amount"`
	Rate             string    `json:"rate"`
	DepositAddress   string    `json:"deposit_address"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	SecondsRemaining int64     `json:"seconds_remaining"`
}

// CheckPaymentResponse is the payer-facing reconciliation outcome. It
// deliberately carries no provider detail.
type CheckPaymentResponse struct {
	Paid          bool   `json:"paid"`
	Status        string `json:"status"`
	Chain         string `json:"chain,omitempty"`
	TxRef         string `json:"tx_ref,omitempty"`
	Confirmations int    `json:"confirmations,omitempty"`
}

// PipelineStatusResponse is the ordered progress log plus overall status.
type PipelineStatusResponse struct {
	InvoiceSID string                 `json:"invoice_id"`
	Status     string                 `json:"status"`
	Steps      []PipelineStepResponse `json:"steps"`
}

// PipelineStepResponse is one entry of the progress log.
type PipelineStepResponse struct {
	Kind        string     `json:"kind"`
	Outcome     string     `json:"outcome"`
	Attempt     int        `json:"attempt,omitempty"`
	Detail      string     `json:"detail,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
