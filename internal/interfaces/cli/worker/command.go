package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	paymentUsecases "coinvoice/internal/application/payment/usecases"
	pipelineUsecases "coinvoice/internal/application/pipeline/usecases"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/infrastructure/blockchain"
	"coinvoice/internal/infrastructure/config"
	"coinvoice/internal/infrastructure/database"
	"coinvoice/internal/infrastructure/lock"
	"coinvoice/internal/infrastructure/persistence/migrations"
	"coinvoice/internal/infrastructure/providers"
	"coinvoice/internal/infrastructure/repository"
	"coinvoice/internal/infrastructure/scheduler"
	sharedDB "coinvoice/internal/shared/db"
	"coinvoice/internal/shared/logger"
)

var env string

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Start the settlement pipeline worker",
		Long:  `Start the Coinvoice background worker that sweeps open invoices, reconciles on-chain payments and advances the settlement pipeline.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log := logger.NewLogger()

	log.Infow("starting pipeline worker",
		"environment", env,
		"tick_interval", cfg.Pipeline.TickInterval())

	if err := database.Init(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	if err := migrations.MigrateInvoiceTables(database.Get()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	db := database.Get()
	invoiceRepo := repository.NewInvoiceRepository(db)
	quoteRepo := repository.NewQuoteRepository(db)
	paymentRepo := repository.NewPaymentRecordRepository(db)
	stepRepo := repository.NewPipelineStepRepository(db)
	addressRepo := repository.NewDepositAddressRepository(db)

	txManager := sharedDB.NewTransactionManager(db)

	observer := blockchain.NewCompositeMonitor(
		blockchain.NewBitcoinMonitor(cfg.Chains.BTC.APIURL, log),
		blockchain.NewEthereumMonitor(cfg.Chains.ETH.APIURL, cfg.Chains.ETH.APIKey, log),
		blockchain.NewSolanaMonitor(cfg.Chains.SOL.APIURL, log),
		log,
	)

	conversionClient := providers.NewConversionClient(cfg.Providers.Conversion.BaseURL, cfg.Providers.Conversion.APIKey, log)
	settlementClient := providers.NewSettlementClient(cfg.Providers.Settlement.BaseURL, cfg.Providers.Settlement.APIKey, log)
	payoutClient := providers.NewPayoutClient(cfg.Providers.Payout.BaseURL, cfg.Providers.Payout.APIKey, log)
	receiptMaterializer := providers.NewLogReceiptMaterializer(log)

	reconcileUC := paymentUsecases.NewReconcilePaymentUseCase(
		invoiceRepo, quoteRepo, paymentRepo, stepRepo, addressRepo,
		observer, txManager,
		paymentUsecases.ReconcileConfig{
			AmountTolerance:       cfg.Pipeline.AmountTolerance,
			GraceWindow:           cfg.Pipeline.GraceWindow(),
			ObserveTimeout:        cfg.Pipeline.CallTimeout(),
			ConfirmationsOverride: confirmationOverrides(cfg),
		},
		log,
	)

	advanceUC := pipelineUsecases.NewAdvancePipelineUseCase(
		invoiceRepo, paymentRepo, stepRepo,
		conversionClient, settlementClient, payoutClient, receiptMaterializer,
		txManager,
		pipelineUsecases.AdvanceConfig{
			RetryBudget: cfg.Pipeline.RetryBudget,
			BackoffBase: cfg.Pipeline.BackoffBase(),
			BackoffCap:  cfg.Pipeline.BackoffCap(),
			CallTimeout: cfg.Pipeline.CallTimeout(),
		},
		log,
	)

	expireUC := pipelineUsecases.NewExpireInvoicesUseCase(invoiceRepo, log)

	invoiceLock := lock.NewInvoiceLock(redisClient, lock.DefaultLockTTL)

	pipelineScheduler := scheduler.NewPipelineScheduler(
		invoiceRepo, reconcileUC, advanceUC, expireUC, invoiceLock,
		cfg.Pipeline.TickInterval(), log,
	)

	manager := scheduler.NewManager(log)
	manager.Register(pipelineScheduler)
	manager.StartAll(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down pipeline worker...")
	cancel()
	manager.StopAll()

	log.Infow("pipeline worker exited gracefully")
	return nil
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
