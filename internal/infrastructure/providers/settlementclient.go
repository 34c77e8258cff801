package providers

import (
	"context"

	ports "coinvoice/internal/application/pipeline/providers"
	"coinvoice/internal/shared/logger"
)

// SettlementClient moves settled value to the merchant via the settlement
// rail's HTTP API.
type SettlementClient struct {
	providerClient
}

func NewSettlementClient(baseURL, apiKey string, logger logger.Interface) *SettlementClient {
	return &SettlementClient{providerClient: newProviderClient(baseURL, apiKey, logger)}
}

var _ ports.SettlementProvider = (*SettlementClient)(nil)

type settlementAPIRequest struct {
	InvoiceID  string `json:"invoice_id"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	TargetKind string `json:"target_kind"`
}

type settlementAPIResponse struct {
	Reference string `json:"reference"`
}

func (c *SettlementClient) Settle(ctx context.Context, req ports.SettlementRequest) (*ports.SettlementResult, error) {
	var resp settlementAPIResponse
	err := c.postJSON(ctx, "/v1/settlements", req.IdempotencyKey, settlementAPIRequest{
		InvoiceID:  req.InvoiceSID,
		Asset:      req.Asset,
		Amount:     req.Amount.String(),
		TargetKind: req.TargetKind,
	}, &resp)
	if err != nil {
		return nil, err
	}

	c.logger.Infow("settlement executed",
		"invoice_sid", req.InvoiceSID,
		"reference", resp.Reference,
	)

	return &ports.SettlementResult{Reference: resp.Reference}, nil
}
