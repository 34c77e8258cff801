package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"coinvoice/internal/domain/deposit"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/infrastructure/persistence/mappers"
	"coinvoice/internal/infrastructure/persistence/models"
	"coinvoice/internal/shared/db"
)

type DepositAddressRepository struct {
	db *gorm.DB
}

func NewDepositAddressRepository(db *gorm.DB) *DepositAddressRepository {
	return &DepositAddressRepository{db: db}
}

func (r *DepositAddressRepository) Create(ctx context.Context, addr *deposit.Address) error {
	model := mappers.DepositAddressToModel(addr)

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") || strings.Contains(err.Error(), "duplicate key") {
			return deposit.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create deposit address: %w", err)
	}

	addr.SetID(model.ID)

	return nil
}

func (r *DepositAddressRepository) GetByInvoiceAndChain(ctx context.Context, invoiceID uint, chain vo.ChainType) (*deposit.Address, error) {
	var model models.DepositAddressModel

	err := db.GetTxFromContext(ctx, r.db).
		Where("invoice_id = ? AND chain = ?", invoiceID, chain.String()).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get deposit address: %w", err)
	}

	return mappers.DepositAddressToDomain(&model)
}

func (r *DepositAddressRepository) ListByInvoice(ctx context.Context, invoiceID uint) ([]*deposit.Address, error) {
	var modelList []models.DepositAddressModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("invoice_id = ?", invoiceID).
		Order("chain ASC").
		Find(&modelList).Error; err != nil {
		return nil, fmt.Errorf("failed to list deposit addresses: %w", err)
	}

	addrs := make([]*deposit.Address, 0, len(modelList))
	for i := range modelList {
		addr, err := mappers.DepositAddressToDomain(&modelList[i])
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
