package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/domain/quote"
	"coinvoice/internal/infrastructure/persistence/mappers"
	"coinvoice/internal/infrastructure/persistence/models"
	"coinvoice/internal/shared/biztime"
	"coinvoice/internal/shared/db"
)

type QuoteRepository struct {
	db *gorm.DB
}

func NewQuoteRepository(db *gorm.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

func (r *QuoteRepository) Create(ctx context.Context, q *quote.Quote) error {
	model := mappers.QuoteToModel(q)

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create quote: %w", err)
	}

	q.SetID(model.ID)

	return nil
}

func (r *QuoteRepository) Update(ctx context.Context, q *quote.Quote) error {
	model := mappers.QuoteToModel(q)

	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.QuoteModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"locked":     model.Locked,
			"locked_at":  model.LockedAt,
			"superseded": model.Superseded,
			"version":    model.Version,
			"updated_at": model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update quote: %w", result.Error)
	}

	return nil
}

func (r *QuoteRepository) GetByID(ctx context.Context, quoteID uint) (*quote.Quote, error) {
	var model models.QuoteModel

	if err := db.GetTxFromContext(ctx, r.db).First(&model, quoteID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("quote not found")
		}
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	return mappers.QuoteToDomain(&model)
}

func (r *QuoteRepository) GetLatestByInvoiceAndChain(ctx context.Context, invoiceID uint, chain vo.ChainType) (*quote.Quote, error) {
	var model models.QuoteModel

	err := db.GetTxFromContext(ctx, r.db).
		Where("invoice_id = ? AND chain = ? AND superseded = ?", invoiceID, chain.String(), false).
		Order("issued_at DESC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest quote: %w", err)
	}

	return mappers.QuoteToDomain(&model)
}

func (r *QuoteRepository) GetLockedByInvoice(ctx context.Context, invoiceID uint) (*quote.Quote, error) {
	var model models.QuoteModel

	err := db.GetTxFromContext(ctx, r.db).
		Where("invoice_id = ? AND locked = ?", invoiceID, true).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get locked quote: %w", err)
	}

	return mappers.QuoteToDomain(&model)
}

// SupersedeActive retires every unlocked live quote for the pair in one
// conditional write, so a concurrent reissue cannot leave two live quotes.
func (r *QuoteRepository) SupersedeActive(ctx context.Context, invoiceID uint, chain vo.ChainType) error {
	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.QuoteModel{}).
		Where("invoice_id = ? AND chain = ? AND superseded = ? AND locked = ?",
			invoiceID, chain.String(), false, false).
		Updates(map[string]interface{}{
			"superseded": true,
			"updated_at": biztime.NowUTC(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to supersede quotes: %w", result.Error)
	}

	return nil
}
