package scheduler

import (
	"context"
	"sync"
	"time"

	paymentUsecases "coinvoice/internal/application/payment/usecases"
	pipelineUsecases "coinvoice/internal/application/pipeline/usecases"
	"coinvoice/internal/domain/invoice"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/infrastructure/lock"
	"coinvoice/internal/shared/goroutine"
	"coinvoice/internal/shared/logger"
)

// Bounded fan-out per sweep
const maxConcurrentEvaluations = 8

// PipelineScheduler drives the recurring sweep:
// - reconciles SENT invoices against chain state
// - advances paid invoices through the settlement pipeline
// - cancels invoices whose validity window elapsed unpaid
// Invoices are evaluated in parallel, each under a per-invoice redis lock so
// concurrent workers never evaluate the same invoice twice.
type PipelineScheduler struct {
	invoiceRepo invoice.InvoiceRepository
	reconcileUC *paymentUsecases.ReconcilePaymentUseCase
	advanceUC   *pipelineUsecases.AdvancePipelineUseCase
	expireUC    *pipelineUsecases.ExpireInvoicesUseCase
	invoiceLock *lock.InvoiceLock
	logger      logger.Interface
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	interval    time.Duration
	running     bool
	mu          sync.RWMutex
}

func NewPipelineScheduler(
	invoiceRepo invoice.InvoiceRepository,
	reconcileUC *paymentUsecases.ReconcilePaymentUseCase,
	advanceUC *pipelineUsecases.AdvancePipelineUseCase,
	expireUC *pipelineUsecases.ExpireInvoicesUseCase,
	invoiceLock *lock.InvoiceLock,
	interval time.Duration,
	logger logger.Interface,
) *PipelineScheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PipelineScheduler{
		invoiceRepo: invoiceRepo,
		reconcileUC: reconcileUC,
		advanceUC:   advanceUC,
		expireUC:    expireUC,
		invoiceLock: invoiceLock,
		logger:      logger,
		stopChan:    make(chan struct{}),
		interval:    interval,
	}
}

// Start starts the scheduler
func (s *PipelineScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Infow("starting pipeline scheduler", "interval", s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSweepLoop(ctx)
	}()
}

// Stop stops the scheduler gracefully
func (s *PipelineScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		s.logger.Infow("stopping pipeline scheduler")
		close(s.stopChan)
		s.wg.Wait()
		s.logger.Infow("pipeline scheduler stopped")
	})
}

// IsRunning returns whether the scheduler is running
func (s *PipelineScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *PipelineScheduler) runSweepLoop(ctx context.Context) {
	// Run immediately on startup
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("pipeline scheduler stopped due to context cancellation")
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *PipelineScheduler) sweep(ctx context.Context) {
	startTime := time.Now()

	if _, err := s.expireUC.Execute(ctx); err != nil {
		s.logger.Errorw("invoice expiry sweep failed", "error", err)
	}

	invoices, err := s.invoiceRepo.ListNonTerminal(ctx)
	if err != nil {
		s.logger.Errorw("failed to list invoices for sweep", "error", err)
		return
	}
	if len(invoices) == 0 {
		return
	}

	sem := make(chan struct{}, maxConcurrentEvaluations)
	var wg sync.WaitGroup

	for _, inv := range invoices {
		inv := inv
		sem <- struct{}{}
		wg.Add(1)
		goroutine.SafeGo(s.logger, "evaluate-invoice", func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.evaluateInvoice(ctx, inv)
		})
	}
	wg.Wait()

	s.logger.Debugw("pipeline sweep completed",
		"invoices", len(invoices),
		"duration", time.Since(startTime),
	)
}

// evaluateInvoice applies one tick to one invoice under its lock.
func (s *PipelineScheduler) evaluateInvoice(ctx context.Context, inv *invoice.Invoice) {
	token, acquired, err := s.invoiceLock.Acquire(ctx, inv.SID())
	if err != nil {
		s.logger.Warnw("failed to acquire invoice lock",
			"invoice_sid", inv.SID(), "error", err)
		return
	}
	if !acquired {
		// Another worker is on it
		return
	}
	defer func() {
		if err := s.invoiceLock.Release(ctx, inv.SID(), token); err != nil {
			s.logger.Warnw("failed to release invoice lock",
				"invoice_sid", inv.SID(), "error", err)
		}
	}()

	switch {
	case inv.Status() == vo.InvoiceStatusSent:
		result, err := s.reconcileUC.Execute(ctx, inv.SID())
		if err != nil {
			s.logger.Warnw("reconciliation failed",
				"invoice_sid", inv.SID(), "error", err)
			return
		}
		if result.Paid && !result.AlreadyReconciled {
			s.logger.Infow("payment detected",
				"invoice_sid", inv.SID(),
				"chain", result.Chain,
				"tx_ref", result.TxRef,
				"confirmations", result.Confirmations,
			)
		}

	case inv.Status().IsPaid() && !inv.Status().IsTerminal():
		result, err := s.advanceUC.Execute(ctx, inv.SID())
		if err != nil {
			s.logger.Warnw("pipeline advance failed",
				"invoice_sid", inv.SID(), "error", err)
			return
		}
		if result.Changed {
			s.logger.Infow("invoice advanced",
				"invoice_sid", inv.SID(),
				"from", result.StatusBefore,
				"to", result.StatusAfter,
			)
		}
	}
}
