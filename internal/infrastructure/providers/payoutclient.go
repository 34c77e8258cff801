package providers

import (
	"context"

	ports "coinvoice/internal/application/pipeline/providers"
	"coinvoice/internal/shared/logger"
)

// PayoutClient executes fiat cash-outs over the banking partner's HTTP API.
type PayoutClient struct {
	providerClient
}

func NewPayoutClient(baseURL, apiKey string, logger logger.Interface) *PayoutClient {
	return &PayoutClient{providerClient: newProviderClient(baseURL, apiKey, logger)}
}

var _ ports.PayoutProvider = (*PayoutClient)(nil)

type payoutAPIRequest struct {
	InvoiceID string `json:"invoice_id"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
}

type payoutAPIResponse struct {
	Reference string `json:"reference"`
}

func (c *PayoutClient) Payout(ctx context.Context, req ports.PayoutRequest) (*ports.PayoutResult, error) {
	var resp payoutAPIResponse
	err := c.postJSON(ctx, "/v1/payouts", req.IdempotencyKey, payoutAPIRequest{
		InvoiceID: req.InvoiceSID,
		Currency:  req.Currency,
		Amount:    req.Amount.String(),
	}, &resp)
	if err != nil {
		return nil, err
	}

	c.logger.Infow("payout executed",
		"invoice_sid", req.InvoiceSID,
		"reference", resp.Reference,
	)

	return &ports.PayoutResult{Reference: resp.Reference}, nil
}

// LogReceiptMaterializer satisfies the receipt hook when no external
// receipt generator is wired; it only records that completion happened.
type LogReceiptMaterializer struct {
	logger logger.Interface
}

func NewLogReceiptMaterializer(logger logger.Interface) *LogReceiptMaterializer {
	return &LogReceiptMaterializer{logger: logger}
}

var _ ports.ReceiptMaterializer = (*LogReceiptMaterializer)(nil)

func (m *LogReceiptMaterializer) Materialize(ctx context.Context, invoiceSID string) error {
	m.logger.Infow("receipt ready for materialization", "invoice_sid", invoiceSID)
	return nil
}
