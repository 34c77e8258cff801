package mappers

import (
	"fmt"

	"github.com/shopspring/decimal"

	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/domain/quote"
	"coinvoice/internal/infrastructure/persistence/models"
)

func QuoteToModel(q *quote.Quote) *models.QuoteModel {
	return &models.QuoteModel{
		ID:           q.ID(),
		SID:          q.SID(),
		InvoiceID:    q.InvoiceID(),
		Chain:        q.Chain().String(),
		FiatMinor:    q.FiatTotal().AmountMinor(),
		FiatCurrency: q.FiatTotal().Currency(),
		CryptoAmount: q.CryptoAmount().String(),
		Rate:         q.Rate().String(),
		IssuedAt:     q.IssuedAt(),
		ExpiresAt:    q.ExpiresAt(),
		Locked:       q.Locked(),
		LockedAt:     q.LockedAt(),
		Superseded:   q.Superseded(),
		Version:      q.Version(),
		CreatedAt:    q.CreatedAt(),
		UpdatedAt:    q.UpdatedAt(),
	}
}

func QuoteToDomain(model *models.QuoteModel) (*quote.Quote, error) {
	chain, err := vo.NewChainType(model.Chain)
	if err != nil {
		return nil, fmt.Errorf("invalid quote chain: %w", err)
	}

	amount, err := decimal.NewFromString(model.CryptoAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid crypto amount: %w", err)
	}

	rate, err := decimal.NewFromString(model.Rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate: %w", err)
	}

	return quote.Reconstruct(quote.ReconstructParams{
		ID:           model.ID,
		SID:          model.SID,
		InvoiceID:    model.InvoiceID,
		Chain:        chain,
		FiatTotal:    vo.NewMoney(model.FiatMinor, model.FiatCurrency),
		CryptoAmount: amount,
		Rate:         rate,
		IssuedAt:     model.IssuedAt,
		ExpiresAt:    model.ExpiresAt,
		Locked:       model.Locked,
		LockedAt:     model.LockedAt,
		Superseded:   model.Superseded,
		Version:      model.Version,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}), nil
}
