package usecases

import (
	"context"

	"coinvoice/internal/application/invoice/dto"
	"coinvoice/internal/domain/invoice"
	"coinvoice/internal/domain/pipeline"
	apperrors "coinvoice/internal/shared/errors"
)

// GetPipelineStatusUseCase returns the ordered progress log together with
// the invoice's overall status. Read-only.
type GetPipelineStatusUseCase struct {
	invoiceRepo invoice.InvoiceRepository
	stepRepo    pipeline.StepRepository
}

func NewGetPipelineStatusUseCase(invoiceRepo invoice.InvoiceRepository, stepRepo pipeline.StepRepository) *GetPipelineStatusUseCase {
	return &GetPipelineStatusUseCase{
		invoiceRepo: invoiceRepo,
		stepRepo:    stepRepo,
	}
}

func (uc *GetPipelineStatusUseCase) Execute(ctx context.Context, invoiceSID string) (*dto.PipelineStatusResponse, error) {
	inv, err := uc.invoiceRepo.GetBySID(ctx, invoiceSID)
	if err != nil {
		return nil, apperrors.NewNotFoundError("invoice not found")
	}

	steps, err := uc.stepRepo.ListByInvoice(ctx, inv.ID())
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load pipeline steps")
	}

	resp := &dto.PipelineStatusResponse{
		InvoiceSID: inv.SID(),
		Status:     inv.Status().String(),
		Steps:      make([]dto.PipelineStepResponse, 0, len(steps)),
	}
	for _, s := range steps {
		resp.Steps = append(resp.Steps, dto.PipelineStepResponse{
			Kind:        s.Kind().String(),
			Outcome:     string(s.Outcome()),
			Attempt:     s.Attempt(),
			Detail:      s.Detail(),
			NextRetryAt: s.NextRetryAt(),
			CreatedAt:   s.CreatedAt(),
		})
	}
	return resp, nil
}
