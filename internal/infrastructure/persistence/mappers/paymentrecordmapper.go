package mappers

import (
	"fmt"

	"github.com/shopspring/decimal"

	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/domain/payment"
	"coinvoice/internal/infrastructure/persistence/models"
)

func PaymentRecordToModel(rec *payment.PaymentRecord) *models.PaymentRecordModel {
	return &models.PaymentRecordModel{
		ID:            rec.ID(),
		SID:           rec.SID(),
		InvoiceID:     rec.InvoiceID(),
		QuoteID:       rec.QuoteID(),
		Chain:         rec.Chain().String(),
		TxRef:         rec.TxRef(),
		Amount:        rec.Amount().String(),
		Confirmations: rec.Confirmations(),
		DetectedAt:    rec.DetectedAt(),
		CreatedAt:     rec.CreatedAt(),
	}
}

func PaymentRecordToDomain(model *models.PaymentRecordModel) (*payment.PaymentRecord, error) {
	chain, err := vo.NewChainType(model.Chain)
	if err != nil {
		return nil, fmt.Errorf("invalid payment chain: %w", err)
	}

	amount, err := decimal.NewFromString(model.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid payment amount: %w", err)
	}

	return payment.Reconstruct(payment.ReconstructParams{
		ID:            model.ID,
		SID:           model.SID,
		InvoiceID:     model.InvoiceID,
		QuoteID:       model.QuoteID,
		Chain:         chain,
		TxRef:         model.TxRef,
		Amount:        amount,
		Confirmations: model.Confirmations,
		DetectedAt:    model.DetectedAt,
		CreatedAt:     model.CreatedAt,
	}), nil
}
