package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"coinvoice/internal/domain/invoice"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/infrastructure/persistence/mappers"
	"coinvoice/internal/infrastructure/persistence/models"
	"coinvoice/internal/shared/biztime"
	"coinvoice/internal/shared/db"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	model := mappers.InvoiceToModel(inv)

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	// Write back the auto-generated ID to the domain object
	inv.SetID(model.ID)

	return nil
}

func (r *InvoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	model := mappers.InvoiceToModel(inv)

	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.InvoiceModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"status":     model.Status,
			"metadata":   model.Metadata,
			"version":    model.Version,
			"updated_at": model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update invoice: %w", result.Error)
	}

	// Note: RowsAffected may be 0 when updated values are identical to existing values.

	return nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, invoiceID uint) (*invoice.Invoice, error) {
	var model models.InvoiceModel

	if err := db.GetTxFromContext(ctx, r.db).First(&model, invoiceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("invoice not found")
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return mappers.InvoiceToDomain(&model)
}

func (r *InvoiceRepository) GetBySID(ctx context.Context, sid string) (*invoice.Invoice, error) {
	var model models.InvoiceModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("sid = ?", sid).
		First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("invoice not found")
		}
		return nil, fmt.Errorf("failed to get invoice by sid: %w", err)
	}

	return mappers.InvoiceToDomain(&model)
}

func (r *InvoiceRepository) ListNonTerminal(ctx context.Context) ([]*invoice.Invoice, error) {
	var modelList []models.InvoiceModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("status NOT IN ?", []string{
			vo.InvoiceStatusComplete.String(),
			vo.InvoiceStatusCancelled.String(),
		}).
		Order("id ASC").
		Find(&modelList).Error; err != nil {
		return nil, fmt.Errorf("failed to list non-terminal invoices: %w", err)
	}

	return r.toDomainList(modelList)
}

func (r *InvoiceRepository) ListExpired(ctx context.Context) ([]*invoice.Invoice, error) {
	var modelList []models.InvoiceModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("status IN ?", []string{
			vo.InvoiceStatusPending.String(),
			vo.InvoiceStatusSent.String(),
		}).
		Where("expired_at <= ?", biztime.NowUTC()).
		Order("id ASC").
		Find(&modelList).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired invoices: %w", err)
	}

	return r.toDomainList(modelList)
}

func (r *InvoiceRepository) toDomainList(modelList []models.InvoiceModel) ([]*invoice.Invoice, error) {
	invoices := make([]*invoice.Invoice, 0, len(modelList))
	for i := range modelList {
		inv, err := mappers.InvoiceToDomain(&modelList[i])
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}
