package usecases

import (
	"context"
	"errors"
	"fmt"

	"coinvoice/internal/domain/invoice"
	apperrors "coinvoice/internal/shared/errors"
	"coinvoice/internal/shared/logger"
)

// CancelInvoiceUseCase cancels an invoice before payment is detected.
// Once a payment record exists the money has moved and cancellation is
// rejected so the pipeline carries the funds through to settlement.
type CancelInvoiceUseCase struct {
	invoiceRepo invoice.InvoiceRepository
	logger      logger.Interface
}

func NewCancelInvoiceUseCase(invoiceRepo invoice.InvoiceRepository, logger logger.Interface) *CancelInvoiceUseCase {
	return &CancelInvoiceUseCase{
		invoiceRepo: invoiceRepo,
		logger:      logger,
	}
}

func (uc *CancelInvoiceUseCase) Execute(ctx context.Context, invoiceSID string) error {
	inv, err := uc.invoiceRepo.GetBySID(ctx, invoiceSID)
	if err != nil {
		return apperrors.NewNotFoundError("invoice not found")
	}

	if err := inv.Cancel(); err != nil {
		if errors.Is(err, invoice.ErrPaymentAlreadyDetected) {
			return apperrors.NewConflictError("PaymentAlreadyDetected")
		}
		return err
	}

	if err := uc.invoiceRepo.Update(ctx, inv); err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	uc.logger.Infow("invoice cancelled", "invoice_sid", inv.SID())
	return nil
}
