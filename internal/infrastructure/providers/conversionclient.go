package providers

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	ports "coinvoice/internal/application/pipeline/providers"
	"coinvoice/internal/shared/logger"
)

// ConversionClient executes asset conversion over the conversion desk's
// HTTP API.
type ConversionClient struct {
	providerClient
}

func NewConversionClient(baseURL, apiKey string, logger logger.Interface) *ConversionClient {
	return &ConversionClient{providerClient: newProviderClient(baseURL, apiKey, logger)}
}

var _ ports.ConversionProvider = (*ConversionClient)(nil)

type conversionAPIRequest struct {
	InvoiceID string `json:"invoice_id"`
	FromAsset string `json:"from_asset"`
	ToAsset   string `json:"to_asset"`
	Amount    string `json:"amount"`
}

type conversionAPIResponse struct {
	Reference string `json:"reference"`
	ToAmount  string `json:"to_amount"`
}

func (c *ConversionClient) Convert(ctx context.Context, req ports.ConversionRequest) (*ports.ConversionResult, error) {
	var resp conversionAPIResponse
	err := c.postJSON(ctx, "/v1/conversions", req.IdempotencyKey, conversionAPIRequest{
		InvoiceID: req.InvoiceSID,
		FromAsset: req.FromAsset,
		ToAsset:   req.ToAsset,
		Amount:    req.Amount.String(),
	}, &resp)
	if err != nil {
		return nil, err
	}

	toAmount, err := decimal.NewFromString(resp.ToAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid conversion amount %q: %w", resp.ToAmount, err)
	}

	c.logger.Infow("conversion executed",
		"invoice_sid", req.InvoiceSID,
		"reference", resp.Reference,
		"to_amount", resp.ToAmount,
	)

	return &ports.ConversionResult{
		Reference: resp.Reference,
		ToAmount:  toAmount,
	}, nil
}
