package usecases

import (
	"context"
	"errors"
	"fmt"

	"coinvoice/internal/domain/invoice"
	"coinvoice/internal/shared/logger"
)

// ExpireInvoicesUseCase cancels invoices whose validity window elapsed
// without a detected payment. Invoices that got paid in the meantime are
// skipped; the pipeline owns them now.
type ExpireInvoicesUseCase struct {
	invoiceRepo invoice.InvoiceRepository
	logger      logger.Interface
}

func NewExpireInvoicesUseCase(invoiceRepo invoice.InvoiceRepository, logger logger.Interface) *ExpireInvoicesUseCase {
	return &ExpireInvoicesUseCase{
		invoiceRepo: invoiceRepo,
		logger:      logger,
	}
}

// Execute returns how many invoices were cancelled this sweep.
func (uc *ExpireInvoicesUseCase) Execute(ctx context.Context) (int, error) {
	expired, err := uc.invoiceRepo.ListExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired invoices: %w", err)
	}

	cancelled := 0
	for _, inv := range expired {
		if err := inv.Cancel(); err != nil {
			if errors.Is(err, invoice.ErrPaymentAlreadyDetected) {
				continue
			}
			uc.logger.Warnw("failed to cancel expired invoice",
				"invoice_sid", inv.SID(), "error", err)
			continue
		}
		if err := uc.invoiceRepo.Update(ctx, inv); err != nil {
			uc.logger.Warnw("failed to persist expired invoice",
				"invoice_sid", inv.SID(), "error", err)
			continue
		}
		cancelled++
	}

	if cancelled > 0 {
		uc.logger.Infow("expired invoices cancelled", "count", cancelled)
	}
	return cancelled, nil
}
