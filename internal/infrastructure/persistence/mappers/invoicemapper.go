package mappers

import (
	"fmt"
	"strings"

	"coinvoice/internal/domain/invoice"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/infrastructure/persistence/models"
)

const chainListSeparator = ","

func InvoiceToModel(inv *invoice.Invoice) *models.InvoiceModel {
	chains := make([]string, 0, len(inv.EnabledChains()))
	for _, c := range inv.EnabledChains() {
		chains = append(chains, c.String())
	}

	model := &models.InvoiceModel{
		ID:              inv.ID(),
		SID:             inv.SID(),
		MerchantID:      inv.MerchantID(),
		AmountMinor:     inv.Total().AmountMinor(),
		Currency:        inv.Total().Currency(),
		EnabledChains:   strings.Join(chains, chainListSeparator),
		SettlementKind:  string(inv.SettlementTarget().Kind()),
		SettlementAsset: inv.SettlementTarget().Asset(),
		Status:          inv.Status().String(),
		ExpiredAt:       inv.ExpiredAt(),
		Version:         inv.Version(),
		CreatedAt:       inv.CreatedAt(),
		UpdatedAt:       inv.UpdatedAt(),
	}

	if len(inv.Metadata()) > 0 {
		model.Metadata = inv.Metadata()
	}

	return model
}

func InvoiceToDomain(model *models.InvoiceModel) (*invoice.Invoice, error) {
	status := vo.InvoiceStatus(model.Status)
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid invoice status: %s", model.Status)
	}

	var chains []vo.ChainType
	for _, raw := range strings.Split(model.EnabledChains, chainListSeparator) {
		if raw == "" {
			continue
		}
		chain, err := vo.NewChainType(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid enabled chain: %w", err)
		}
		chains = append(chains, chain)
	}

	target, err := vo.NewSettlementTarget(model.SettlementKind, model.SettlementAsset)
	if err != nil {
		return nil, fmt.Errorf("invalid settlement target: %w", err)
	}

	return invoice.Reconstruct(invoice.ReconstructParams{
		ID:               model.ID,
		SID:              model.SID,
		MerchantID:       model.MerchantID,
		Total:            vo.NewMoney(model.AmountMinor, model.Currency),
		EnabledChains:    chains,
		SettlementTarget: target,
		Status:           status,
		Metadata:         model.Metadata,
		ExpiredAt:        model.ExpiredAt,
		Version:          model.Version,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}), nil
}
