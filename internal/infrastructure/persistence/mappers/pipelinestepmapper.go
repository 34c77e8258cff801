package mappers

import (
	"fmt"

	"coinvoice/internal/domain/pipeline"
	"coinvoice/internal/infrastructure/persistence/models"
)

func PipelineStepToModel(s *pipeline.Step) *models.PipelineStepModel {
	return &models.PipelineStepModel{
		ID:          s.ID(),
		InvoiceID:   s.InvoiceID(),
		Kind:        s.Kind().String(),
		Outcome:     string(s.Outcome()),
		Attempt:     s.Attempt(),
		Detail:      s.Detail(),
		NextRetryAt: s.NextRetryAt(),
		CreatedAt:   s.CreatedAt(),
	}
}

func PipelineStepToDomain(model *models.PipelineStepModel) (*pipeline.Step, error) {
	kind := pipeline.StepKind(model.Kind)
	if !kind.IsValid() {
		return nil, fmt.Errorf("invalid step kind: %s", model.Kind)
	}

	outcome := pipeline.StepOutcome(model.Outcome)
	if !outcome.IsValid() {
		return nil, fmt.Errorf("invalid step outcome: %s", model.Outcome)
	}

	return pipeline.Reconstruct(pipeline.ReconstructParams{
		ID:          model.ID,
		InvoiceID:   model.InvoiceID,
		Kind:        kind,
		Outcome:     outcome,
		Attempt:     model.Attempt,
		Detail:      model.Detail,
		NextRetryAt: model.NextRetryAt,
		CreatedAt:   model.CreatedAt,
	}), nil
}
