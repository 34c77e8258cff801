package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	ports "coinvoice/internal/application/quote/exchangerate"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/shared/biztime"
	"coinvoice/internal/shared/logger"
)

const (
	coingeckoAPIURL = "https://api.coingecko.com/api/v3/simple/price"
	// Cache duration for a fetched rate
	cacheDuration = 5 * time.Minute
	// Maximum cache age for fallback when the API is unreachable. Older
	// rates are refused: a stale quote beats a wrong one.
	maxCacheAge = 15 * time.Minute
	// HTTP request timeout
	requestTimeout = 10 * time.Second
	// Maximum response body size for exchange rate API (64KB)
	maxRateResponseSize = 64 << 10
	// Maximum allowed rate change between consecutive fetches (10%)
	maxRateChangePercent = 0.10
)

// coinIDs maps chain assets to CoinGecko coin ids
var coinIDs = map[vo.ChainType]string{
	vo.ChainTypeBTC: "bitcoin",
	vo.ChainTypeETH: "ethereum",
	vo.ChainTypeSOL: "solana",
}

// sanityRanges bounds plausible USD rates per asset; a fetched rate outside
// its range is treated as an API fault.
var sanityRanges = map[vo.ChainType][2]float64{
	vo.ChainTypeBTC: {1_000, 10_000_000},
	vo.ChainTypeETH: {10, 1_000_000},
	vo.ChainTypeSOL: {0.1, 100_000},
}

type cachedRate struct {
	rate     decimal.Decimal
	cachedAt time.Time
}

// CoinGeckoService implements the rate service against the CoinGecko simple
// price API, one cached entry per (asset, fiat) pair.
type CoinGeckoService struct {
	httpClient *http.Client
	logger     logger.Interface

	mu    sync.RWMutex
	cache map[string]cachedRate
}

func NewCoinGeckoService(logger logger.Interface) *CoinGeckoService {
	return &CoinGeckoService{
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
		cache:  make(map[string]cachedRate),
	}
}

// Ensure CoinGeckoService implements Service
var _ ports.Service = (*CoinGeckoService)(nil)

// GetRate returns the current fiat price of the chain's native asset.
func (s *CoinGeckoService) GetRate(ctx context.Context, chain vo.ChainType, fiatCurrency string) (decimal.Decimal, error) {
	coinID, ok := coinIDs[chain]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no coin id for chain %s", ports.ErrRateUnavailable, chain)
	}

	key := coinID + "/" + strings.ToLower(fiatCurrency)
	now := biztime.NowUTC()

	s.mu.RLock()
	cached, hasCached := s.cache[key]
	s.mu.RUnlock()

	if hasCached && now.Sub(cached.cachedAt) < cacheDuration {
		return cached.rate, nil
	}

	rate, err := s.fetchRate(ctx, chain, coinID, strings.ToLower(fiatCurrency))
	if err != nil {
		// Fall back to the cached rate if it is still fresh enough
		if hasCached && now.Sub(cached.cachedAt) < maxCacheAge {
			s.logger.Warnw("failed to fetch exchange rate, using cached value",
				"asset", chain,
				"error", err,
				"cached_rate", cached.rate.String(),
				"cache_age", now.Sub(cached.cachedAt),
			)
			return cached.rate, nil
		}
		return decimal.Zero, fmt.Errorf("%w: %v", ports.ErrRateUnavailable, err)
	}

	// Reject a sudden jump against the cached value; the cached rate wins
	// while it is still usable.
	if hasCached && !cached.rate.IsZero() {
		change := rate.Sub(cached.rate).Abs().Div(cached.rate)
		if change.GreaterThan(decimal.NewFromFloat(maxRateChangePercent)) {
			if now.Sub(cached.cachedAt) >= maxCacheAge {
				s.logger.Errorw("exchange rate change exceeds threshold and cache expired",
					"asset", chain,
					"new_rate", rate.String(),
					"cached_rate", cached.rate.String(),
					"change", change.String(),
				)
				return decimal.Zero, fmt.Errorf("%w: rate change %s exceeds threshold with expired cache",
					ports.ErrRateUnavailable, change.String())
			}
			s.logger.Warnw("exchange rate change exceeds threshold, using cached value",
				"asset", chain,
				"new_rate", rate.String(),
				"cached_rate", cached.rate.String(),
				"change", change.String(),
			)
			return cached.rate, nil
		}
	}

	s.mu.Lock()
	s.cache[key] = cachedRate{rate: rate, cachedAt: now}
	s.mu.Unlock()

	return rate, nil
}

func (s *CoinGeckoService) fetchRate(ctx context.Context, chain vo.ChainType, coinID, fiat string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s?ids=%s&vs_currencies=%s", coingeckoAPIURL, coinID, fiat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch exchange rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var data map[string]map[string]float64
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRateResponseSize)).Decode(&data); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %w", err)
	}

	raw, ok := data[coinID][fiat]
	if !ok || raw <= 0 {
		return decimal.Zero, fmt.Errorf("invalid rate from API: %f", raw)
	}

	if bounds, ok := sanityRanges[chain]; ok && fiat == "usd" {
		if raw < bounds[0] || raw > bounds[1] {
			return decimal.Zero, fmt.Errorf("rate %f outside reasonable range [%f, %f]", raw, bounds[0], bounds[1])
		}
	}

	s.logger.Infow("fetched exchange rate",
		"asset", chain,
		"fiat", fiat,
		"rate", raw,
	)

	return decimal.NewFromFloat(raw), nil
}
