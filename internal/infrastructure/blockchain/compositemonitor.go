package blockchain

import (
	"context"
	"fmt"
	"sync"
	"time"

	ports "coinvoice/internal/application/payment/blockchain"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/shared/logger"
)

// CompositeMonitor routes observation to the chain-specific monitor.
type CompositeMonitor struct {
	mu             sync.RWMutex // Protects monitor fields for concurrent access
	bitcoinMonitor *BitcoinMonitor
	ethMonitor     *EthereumMonitor
	solanaMonitor  *SolanaMonitor
	logger         logger.Interface
}

func NewCompositeMonitor(bitcoinMonitor *BitcoinMonitor, ethMonitor *EthereumMonitor, solanaMonitor *SolanaMonitor, logger logger.Interface) *CompositeMonitor {
	return &CompositeMonitor{
		bitcoinMonitor: bitcoinMonitor,
		ethMonitor:     ethMonitor,
		solanaMonitor:  solanaMonitor,
		logger:         logger,
	}
}

// Ensure CompositeMonitor implements Observer
var _ ports.Observer = (*CompositeMonitor)(nil)

func (m *CompositeMonitor) Observe(ctx context.Context, chain vo.ChainType, address string, since time.Time) ([]ports.Transfer, error) {
	m.mu.RLock()
	bitcoinMonitor := m.bitcoinMonitor
	ethMonitor := m.ethMonitor
	solanaMonitor := m.solanaMonitor
	m.mu.RUnlock()

	switch chain {
	case vo.ChainTypeBTC:
		if bitcoinMonitor == nil {
			return nil, fmt.Errorf("bitcoin monitor not configured")
		}
		return bitcoinMonitor.Observe(ctx, chain, address, since)
	case vo.ChainTypeETH:
		if ethMonitor == nil {
			return nil, fmt.Errorf("ethereum monitor not configured")
		}
		return ethMonitor.Observe(ctx, chain, address, since)
	case vo.ChainTypeSOL:
		if solanaMonitor == nil {
			return nil, fmt.Errorf("solana monitor not configured")
		}
		return solanaMonitor.Observe(ctx, chain, address, since)
	default:
		return nil, fmt.Errorf("unsupported chain type: %s", chain)
	}
}
