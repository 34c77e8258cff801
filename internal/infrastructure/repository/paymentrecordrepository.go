package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"coinvoice/internal/domain/payment"
	"coinvoice/internal/infrastructure/persistence/mappers"
	"coinvoice/internal/infrastructure/persistence/models"
	"coinvoice/internal/shared/db"
)

type PaymentRecordRepository struct {
	db *gorm.DB
}

func NewPaymentRecordRepository(db *gorm.DB) *PaymentRecordRepository {
	return &PaymentRecordRepository{db: db}
}

// Create inserts the record; the unique index on invoice_id turns a
// concurrent double-detect into payment.ErrAlreadyExists.
func (r *PaymentRecordRepository) Create(ctx context.Context, rec *payment.PaymentRecord) error {
	model := mappers.PaymentRecordToModel(rec)

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") || strings.Contains(err.Error(), "duplicate key") {
			return payment.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create payment record: %w", err)
	}

	rec.SetID(model.ID)

	return nil
}

func (r *PaymentRecordRepository) GetByInvoiceID(ctx context.Context, invoiceID uint) (*payment.PaymentRecord, error) {
	var model models.PaymentRecordModel

	err := db.GetTxFromContext(ctx, r.db).
		Where("invoice_id = ?", invoiceID).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment record: %w", err)
	}

	return mappers.PaymentRecordToDomain(&model)
}

func (r *PaymentRecordRepository) ExistsForInvoice(ctx context.Context, invoiceID uint) (bool, error) {
	var count int64

	err := db.GetTxFromContext(ctx, r.db).
		Model(&models.PaymentRecordModel{}).
		Where("invoice_id = ?", invoiceID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count payment records: %w", err)
	}

	return count > 0, nil
}
