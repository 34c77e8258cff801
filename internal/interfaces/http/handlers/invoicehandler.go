package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	invoiceUsecases "coinvoice/internal/application/invoice/usecases"
	quoteUsecases "coinvoice/internal/application/quote/usecases"
	"coinvoice/internal/application/invoice/dto"
	pipelineUsecases "coinvoice/internal/application/pipeline/usecases"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/domain/quote"
	"coinvoice/internal/shared/biztime"
	"coinvoice/internal/shared/id"
	"coinvoice/internal/shared/logger"
	"coinvoice/internal/shared/utils"
)

// InvoiceHandler exposes the payer-facing invoice API.
type InvoiceHandler struct {
	getInvoiceUseCase        *invoiceUsecases.GetInvoiceUseCase
	checkPaymentUseCase      *invoiceUsecases.CheckPaymentUseCase
	getPipelineStatusUseCase *invoiceUsecases.GetPipelineStatusUseCase
	issueQuoteUseCase        *quoteUsecases.IssueQuoteUseCase
	getActiveQuoteUseCase    *quoteUsecases.GetActiveQuoteUseCase
	cancelInvoiceUseCase     *pipelineUsecases.CancelInvoiceUseCase
	logger                   logger.Interface
}

func NewInvoiceHandler(
	getInvoiceUC *invoiceUsecases.GetInvoiceUseCase,
	checkPaymentUC *invoiceUsecases.CheckPaymentUseCase,
	getPipelineStatusUC *invoiceUsecases.GetPipelineStatusUseCase,
	issueQuoteUC *quoteUsecases.IssueQuoteUseCase,
	getActiveQuoteUC *quoteUsecases.GetActiveQuoteUseCase,
	cancelInvoiceUC *pipelineUsecases.CancelInvoiceUseCase,
	logger logger.Interface,
) *InvoiceHandler {
	return &InvoiceHandler{
		getInvoiceUseCase:        getInvoiceUC,
		checkPaymentUseCase:      checkPaymentUC,
		getPipelineStatusUseCase: getPipelineStatusUC,
		issueQuoteUseCase:        issueQuoteUC,
		getActiveQuoteUseCase:    getActiveQuoteUC,
		cancelInvoiceUseCase:     cancelInvoiceUC,
		logger:                   logger,
	}
}

// IssueQuoteRequest selects the chain a quote is requested for
type IssueQuoteRequest struct {
	Chain string `json:"chain" binding:"required" validate:"required,oneof=BTC ETH SOL"`
}

// GetInvoice returns the payer view of an invoice
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	sid := c.Param("id")
	if err := id.ValidatePrefix(sid, id.PrefixInvoice); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid invoice ID format, expected inv_xxxxx")
		return
	}

	result, err := h.getInvoiceUseCase.Execute(c.Request.Context(), sid)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", result)
}

// IssueQuote issues (or re-issues) a quote for one chain
func (h *InvoiceHandler) IssueQuote(c *gin.Context) {
	sid := c.Param("id")
	if err := id.ValidatePrefix(sid, id.PrefixInvoice); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid invoice ID format, expected inv_xxxxx")
		return
	}

	var req IssueQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	result, err := h.issueQuoteUseCase.Execute(c.Request.Context(), quoteUsecases.IssueQuoteCommand{
		InvoiceSID: sid,
		Chain:      req.Chain,
	})
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	now := biztime.NowUTC()
	q := result.Quote
	utils.SuccessResponse(c, http.StatusOK, "", dto.QuoteResponse{
		SID:              q.SID(),
		Chain:            q.Chain().String(),
		CryptoAmount:     q.CryptoAmount().String(),
		Rate:             q.Rate().String(),
		DepositAddress:   result.DepositAddress,
		IssuedAt:         q.IssuedAt(),
		ExpiresAt:        q.ExpiresAt(),
		SecondsRemaining: int64(q.TimeRemaining(now).Seconds()),
	})
}

// GetActiveQuote returns the current quote for one chain, 404 when the TTL
// has elapsed and no quote is active
func (h *InvoiceHandler) GetActiveQuote(c *gin.Context) {
	sid := c.Param("id")
	if err := id.ValidatePrefix(sid, id.PrefixInvoice); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid invoice ID format, expected inv_xxxxx")
		return
	}

	chain, err := vo.NewChainType(c.Query("chain"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	q, err := h.getActiveQuoteUseCase.Execute(c.Request.Context(), sid, chain)
	if err != nil {
		if errors.Is(err, quote.ErrQuoteExpired) {
			utils.ErrorResponse(c, http.StatusNotFound, "no active quote; request a new one")
			return
		}
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", dto.QuoteResponse{
		SID:              q.SID(),
		Chain:            q.Chain().String(),
		CryptoAmount:     q.CryptoAmount().String(),
		Rate:             q.Rate().String(),
		IssuedAt:         q.IssuedAt(),
		ExpiresAt:        q.ExpiresAt(),
		SecondsRemaining: int64(q.TimeRemaining(biztime.NowUTC()).Seconds()),
	})
}

// CheckPayment triggers an immediate reconciliation attempt
func (h *InvoiceHandler) CheckPayment(c *gin.Context) {
	sid := c.Param("id")
	if err := id.ValidatePrefix(sid, id.PrefixInvoice); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid invoice ID format, expected inv_xxxxx")
		return
	}

	result, err := h.checkPaymentUseCase.Execute(c.Request.Context(), sid)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", result)
}

// GetPipeline returns the ordered settlement progress log
func (h *InvoiceHandler) GetPipeline(c *gin.Context) {
	sid := c.Param("id")
	if err := id.ValidatePrefix(sid, id.PrefixInvoice); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid invoice ID format, expected inv_xxxxx")
		return
	}

	result, err := h.getPipelineStatusUseCase.Execute(c.Request.Context(), sid)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", result)
}

// CancelInvoice cancels an unpaid invoice
func (h *InvoiceHandler) CancelInvoice(c *gin.Context) {
	sid := c.Param("id")
	if err := id.ValidatePrefix(sid, id.PrefixInvoice); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid invoice ID format, expected inv_xxxxx")
		return
	}

	if err := h.cancelInvoiceUseCase.Execute(c.Request.Context(), sid); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "invoice cancelled", nil)
}
