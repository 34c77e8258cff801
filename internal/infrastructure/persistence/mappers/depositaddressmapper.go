package mappers

import (
	"fmt"

	"coinvoice/internal/domain/deposit"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/infrastructure/persistence/models"
)

func DepositAddressToModel(a *deposit.Address) *models.DepositAddressModel {
	return &models.DepositAddressModel{
		ID:        a.ID(),
		InvoiceID: a.InvoiceID(),
		Chain:     a.Chain().String(),
		Address:   a.Value(),
		CreatedAt: a.CreatedAt(),
	}
}

func DepositAddressToDomain(model *models.DepositAddressModel) (*deposit.Address, error) {
	chain, err := vo.NewChainType(model.Chain)
	if err != nil {
		return nil, fmt.Errorf("invalid deposit chain: %w", err)
	}
	return deposit.Reconstruct(model.ID, model.InvoiceID, chain, model.Address, model.CreatedAt), nil
}
