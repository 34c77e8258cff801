package usecases

import (
	"context"

	"coinvoice/internal/application/invoice/dto"
	"coinvoice/internal/domain/deposit"
	"coinvoice/internal/domain/invoice"
	"coinvoice/internal/domain/payment"
	"coinvoice/internal/domain/quote"
	"coinvoice/internal/shared/biztime"
	apperrors "coinvoice/internal/shared/errors"
	"coinvoice/internal/shared/logger"
)

// GetInvoiceUseCase projects an invoice for the payer: totals, status, and
// per enabled chain the deposit address plus the current quote with its
// countdown. Read-only; expired quotes are reported expired, not reissued.
type GetInvoiceUseCase struct {
	invoiceRepo invoice.InvoiceRepository
	quoteRepo   quote.QuoteRepository
	paymentRepo payment.PaymentRecordRepository
	addressRepo deposit.AddressRepository
	logger      logger.Interface
}

func NewGetInvoiceUseCase(
	invoiceRepo invoice.InvoiceRepository,
	quoteRepo quote.QuoteRepository,
	paymentRepo payment.PaymentRecordRepository,
	addressRepo deposit.AddressRepository,
	logger logger.Interface,
) *GetInvoiceUseCase {
	return &GetInvoiceUseCase{
		invoiceRepo: invoiceRepo,
		quoteRepo:   quoteRepo,
		paymentRepo: paymentRepo,
		addressRepo: addressRepo,
		logger:      logger,
	}
}

func (uc *GetInvoiceUseCase) Execute(ctx context.Context, invoiceSID string) (*dto.InvoiceResponse, error) {
	inv, err := uc.invoiceRepo.GetBySID(ctx, invoiceSID)
	if err != nil {
		return nil, apperrors.NewNotFoundError("invoice not found")
	}

	now := biztime.NowUTC()

	resp := &dto.InvoiceResponse{
		SID:             inv.SID(),
		Status:          inv.Status().String(),
		AmountMinor:     inv.Total().AmountMinor(),
		Currency:        inv.Total().Currency(),
		SettlementKind:  string(inv.SettlementTarget().Kind()),
		SettlementAsset: inv.SettlementTarget().Asset(),
		ExpiresAt:       inv.ExpiredAt(),
		CreatedAt:       inv.CreatedAt(),
	}
	for _, chain := range inv.EnabledChains() {
		resp.EnabledChains = append(resp.EnabledChains, chain.String())
	}

	for _, chain := range inv.EnabledChains() {
		option := dto.ChainOptionResponse{Chain: chain.String()}

		if addr, err := uc.addressRepo.GetByInvoiceAndChain(ctx, inv.ID(), chain); err == nil && addr != nil {
			option.DepositAddress = addr.Value()
		}

		q, err := uc.quoteRepo.GetLatestByInvoiceAndChain(ctx, inv.ID(), chain)
		if err != nil {
			uc.logger.Warnw("failed to load quote for projection",
				"invoice_sid", inv.SID(), "chain", chain, "error", err)
		}
		if q != nil {
			option.QuoteSID = q.SID()
			option.CryptoAmount = q.CryptoAmount().String()
			option.Rate = q.Rate().String()
			expiresAt := q.ExpiresAt()
			option.QuoteExpiresAt = &expiresAt
			if q.IsExpired(now) {
				option.QuoteExpired = true
			} else {
				option.SecondsRemaining = int64(q.TimeRemaining(now).Seconds())
			}
		}

		resp.ChainOptions = append(resp.ChainOptions, option)
	}

	if inv.Status().IsPaid() {
		rec, err := uc.paymentRepo.GetByInvoiceID(ctx, inv.ID())
		if err == nil && rec != nil {
			resp.Payment = &dto.PaymentResponse{
				Chain:         rec.Chain().String(),
				TxRef:         rec.TxRef(),
				Amount:        rec.Amount().String(),
				Confirmations: rec.Confirmations(),
				DetectedAt:    rec.DetectedAt(),
			}
		}
	}

	return resp, nil
}
