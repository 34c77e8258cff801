// Package http wires the payer-facing API: repositories, services, use
// cases, handlers and routes.
package http

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	invoiceUsecases "coinvoice/internal/application/invoice/usecases"
	paymentUsecases "coinvoice/internal/application/payment/usecases"
	pipelineUsecases "coinvoice/internal/application/pipeline/usecases"
	quoteUsecases "coinvoice/internal/application/quote/usecases"
	"coinvoice/internal/infrastructure/blockchain"
	"coinvoice/internal/infrastructure/config"
	depositinfra "coinvoice/internal/infrastructure/deposit"
	"coinvoice/internal/infrastructure/exchangerate"
	"coinvoice/internal/infrastructure/repository"
	"coinvoice/internal/interfaces/http/handlers"
	"coinvoice/internal/interfaces/http/middleware"
	"coinvoice/internal/interfaces/http/routes"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	sharedDB "coinvoice/internal/shared/db"
	"coinvoice/internal/shared/logger"
)

// NewRouter builds the gin engine with all payer routes wired.
func NewRouter(cfg *config.Config, database *gorm.DB, log logger.Interface) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger(log))

	// Repositories
	invoiceRepo := repository.NewInvoiceRepository(database)
	quoteRepo := repository.NewQuoteRepository(database)
	paymentRepo := repository.NewPaymentRecordRepository(database)
	stepRepo := repository.NewPipelineStepRepository(database)
	addressRepo := repository.NewDepositAddressRepository(database)

	txManager := sharedDB.NewTransactionManager(database)

	// Services
	rateService := exchangerate.NewCoinGeckoService(log)
	deriver := depositinfra.NewHMACDeriver(cfg.Deposit.DerivationSeed, log)
	observer := blockchain.NewCompositeMonitor(
		blockchain.NewBitcoinMonitor(cfg.Chains.BTC.APIURL, log),
		blockchain.NewEthereumMonitor(cfg.Chains.ETH.APIURL, cfg.Chains.ETH.APIKey, log),
		blockchain.NewSolanaMonitor(cfg.Chains.SOL.APIURL, log),
		log,
	)

	// Use cases
	issueQuoteUC := quoteUsecases.NewIssueQuoteUseCase(
		invoiceRepo, quoteRepo, addressRepo, deriver, rateService,
		cfg.Pipeline.QuoteTTL(), log,
	)
	reconcileUC := paymentUsecases.NewReconcilePaymentUseCase(
		invoiceRepo, quoteRepo, paymentRepo, stepRepo, addressRepo, observer, txManager,
		paymentUsecases.ReconcileConfig{
			AmountTolerance: cfg.Pipeline.AmountTolerance,
			GraceWindow:     cfg.Pipeline.GraceWindow(),
			ObserveTimeout:  cfg.Pipeline.CallTimeout(),
			ConfirmationsOverride: confirmationOverrides(cfg),
		},
		log,
	)
	getActiveQuoteUC := quoteUsecases.NewGetActiveQuoteUseCase(invoiceRepo, quoteRepo)
	getInvoiceUC := invoiceUsecases.NewGetInvoiceUseCase(invoiceRepo, quoteRepo, paymentRepo, addressRepo, log)
	checkPaymentUC := invoiceUsecases.NewCheckPaymentUseCase(invoiceRepo, reconcileUC, log)
	getPipelineUC := invoiceUsecases.NewGetPipelineStatusUseCase(invoiceRepo, stepRepo)
	cancelUC := pipelineUsecases.NewCancelInvoiceUseCase(invoiceRepo, log)

	invoiceHandler := handlers.NewInvoiceHandler(
		getInvoiceUC, checkPaymentUC, getPipelineUC, issueQuoteUC, getActiveQuoteUC, cancelUC, log,
	)

	routes.SetupInvoiceRoutes(engine, &routes.InvoiceRouteConfig{
		InvoiceHandler: invoiceHandler,
	})

	return engine
}

// confirmationOverrides collects per-chain confirmation overrides from
// config; zero values fall back to the chain's built-in threshold.
func confirmationOverrides(cfg *config.Config) map[vo.ChainType]int {
	overrides := make(map[vo.ChainType]int)
	if cfg.Chains.BTC.Confirmations > 0 {
		overrides[vo.ChainTypeBTC] = cfg.Chains.BTC.Confirmations
	}
	if cfg.Chains.ETH.Confirmations > 0 {
		overrides[vo.ChainTypeETH] = cfg.Chains.ETH.Confirmations
	}
	if cfg.Chains.SOL.Confirmations > 0 {
		overrides[vo.ChainTypeSOL] = cfg.Chains.SOL.Confirmations
	}
	return overrides
}
