package usecases

import (
	"context"

	"coinvoice/internal/application/invoice/dto"
	paymentusecases "coinvoice/internal/application/payment/usecases"
	"coinvoice/internal/domain/invoice"
	apperrors "coinvoice/internal/shared/errors"
	"coinvoice/internal/shared/logger"
)

// CheckPaymentUseCase runs one immediate reconciliation attempt for the
// payer's "I have paid" button. The reconciler is idempotent, so hammering
// the button cannot double-record anything; the payer only ever sees
// paid/unpaid, never observation internals.
type CheckPaymentUseCase struct {
	invoiceRepo invoice.InvoiceRepository
	reconciler  *paymentusecases.ReconcilePaymentUseCase
	logger      logger.Interface
}

func NewCheckPaymentUseCase(
	invoiceRepo invoice.InvoiceRepository,
	reconciler *paymentusecases.ReconcilePaymentUseCase,
	logger logger.Interface,
) *CheckPaymentUseCase {
	return &CheckPaymentUseCase{
		invoiceRepo: invoiceRepo,
		reconciler:  reconciler,
		logger:      logger,
	}
}

func (uc *CheckPaymentUseCase) Execute(ctx context.Context, invoiceSID string) (*dto.CheckPaymentResponse, error) {
	inv, err := uc.invoiceRepo.GetBySID(ctx, invoiceSID)
	if err != nil {
		return nil, apperrors.NewNotFoundError("invoice not found")
	}

	result, err := uc.reconciler.Execute(ctx, invoiceSID)
	if err != nil {
		// Observation or commit trouble is an operator concern; the payer
		// just sees "not found yet".
		uc.logger.Warnw("check-payment reconciliation failed",
			"invoice_sid", invoiceSID, "error", err)
		return &dto.CheckPaymentResponse{Paid: false, Status: inv.Status().String()}, nil
	}

	if !result.Paid && !result.AlreadyReconciled {
		return &dto.CheckPaymentResponse{Paid: false, Status: inv.Status().String()}, nil
	}

	fresh, err := uc.invoiceRepo.GetBySID(ctx, invoiceSID)
	if err != nil {
		fresh = inv
	}
	return &dto.CheckPaymentResponse{
		Paid:          true,
		Status:        fresh.Status().String(),
		Chain:         result.Chain.String(),
		TxRef:         result.TxRef,
		Confirmations: result.Confirmations,
	}, nil
}
