package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"coinvoice/internal/domain/pipeline"
	"coinvoice/internal/infrastructure/persistence/mappers"
	"coinvoice/internal/infrastructure/persistence/models"
	"coinvoice/internal/shared/db"
)

type PipelineStepRepository struct {
	db *gorm.DB
}

func NewPipelineStepRepository(db *gorm.DB) *PipelineStepRepository {
	return &PipelineStepRepository{db: db}
}

// Append inserts a new log entry. No update or delete methods exist on
// purpose: the step log is append-only.
func (r *PipelineStepRepository) Append(ctx context.Context, step *pipeline.Step) error {
	model := mappers.PipelineStepToModel(step)

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		return fmt.Errorf("failed to append pipeline step: %w", err)
	}

	step.SetID(model.ID)

	return nil
}

func (r *PipelineStepRepository) ListByInvoice(ctx context.Context, invoiceID uint) ([]*pipeline.Step, error) {
	var modelList []models.PipelineStepModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("invoice_id = ?", invoiceID).
		Order("id ASC").
		Find(&modelList).Error; err != nil {
		return nil, fmt.Errorf("failed to list pipeline steps: %w", err)
	}

	steps := make([]*pipeline.Step, 0, len(modelList))
	for i := range modelList {
		step, err := mappers.PipelineStepToDomain(&modelList[i])
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (r *PipelineStepRepository) LatestByKind(ctx context.Context, invoiceID uint, kind pipeline.StepKind) (*pipeline.Step, error) {
	var model models.PipelineStepModel

	err := db.GetTxFromContext(ctx, r.db).
		Where("invoice_id = ? AND kind = ?", invoiceID, kind.String()).
		Order("id DESC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest pipeline step: %w", err)
	}

	return mappers.PipelineStepToDomain(&model)
}
