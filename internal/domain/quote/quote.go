// Package quote holds the Quote aggregate: a time-bounded binding of an
// invoice's fiat total to a crypto amount on one chain.
package quote

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/shared/biztime"
	"coinvoice/internal/shared/id"
)

var (
	// ErrQuoteExpired is returned when the active quote's TTL has elapsed.
	// Expiry is computed lazily at read time; there is no background sweep.
	ErrQuoteExpired = errors.New("quote expired")

	// ErrQuoteAlreadyLocked is returned when a lock is attempted while a
	// different quote is already locked for the same invoice.
	ErrQuoteAlreadyLocked = errors.New("a different quote is already locked for this invoice")
)

// DefaultTTL is how long an issued quote stays honored.
const DefaultTTL = 15 * time.Minute

// Quote fixes an exchange rate for one (invoice, chain) pair. Once locked by
// the reconciler it becomes an immutable historical record.
type Quote struct {
	id           uint
	sid          string
	invoiceID    uint
	chain        vo.ChainType
	fiatTotal    vo.Money
	cryptoAmount decimal.Decimal
	rate         decimal.Decimal // fiat per one unit of the chain asset

	issuedAt  time.Time
	expiresAt time.Time

	locked     bool
	lockedAt   *time.Time
	superseded bool

	version   int
	createdAt time.Time
	updatedAt time.Time
}

// NewQuote computes the crypto amount for the fiat total at the given rate
// and stamps the TTL.
func NewQuote(invoiceID uint, chain vo.ChainType, fiatTotal vo.Money, rate decimal.Decimal, ttl time.Duration) (*Quote, error) {
	if invoiceID == 0 {
		return nil, fmt.Errorf("invoice ID is required")
	}
	if !chain.IsValid() {
		return nil, fmt.Errorf("invalid chain type: %s", chain)
	}
	if !fiatTotal.IsPositive() {
		return nil, fmt.Errorf("fiat total must be positive")
	}
	if rate.Sign() <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %s", rate)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	sid, err := id.NewQuoteID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate quote ID: %w", err)
	}

	// fiat minor units / 100 / rate, rounded to the chain's precision.
	fiatMajor := decimal.NewFromInt(fiatTotal.AmountMinor()).Div(decimal.NewFromInt(100))
	amount := fiatMajor.DivRound(rate, chain.AmountPrecision())
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("computed crypto amount is not positive")
	}

	now := biztime.NowUTC()
	return &Quote{
		sid:          sid,
		invoiceID:    invoiceID,
		chain:        chain,
		fiatTotal:    fiatTotal,
		cryptoAmount: amount,
		rate:         rate,
		issuedAt:     now,
		expiresAt:    now.Add(ttl),
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

// IsExpired reports whether the TTL has elapsed. A locked quote never
// expires: it is frozen as the historical record of the matched payment.
func (q *Quote) IsExpired(now time.Time) bool {
	return !q.locked && now.After(q.expiresAt)
}

// IsActive reports whether this quote can still match a fresh payment.
func (q *Quote) IsActive(now time.Time) bool {
	return !q.superseded && !q.locked && !q.IsExpired(now)
}

// WithinGrace reports whether the quote can still be matched against a
// genuine transfer that confirmed shortly after expiry.
func (q *Quote) WithinGrace(now time.Time, grace time.Duration) bool {
	return !q.superseded && now.Before(q.expiresAt.Add(grace))
}

// TimeRemaining returns how long the quote stays honored, zero if elapsed.
func (q *Quote) TimeRemaining(now time.Time) time.Duration {
	if remaining := q.expiresAt.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// Lock freezes the quote permanently. Locking an already-locked quote is a
// no-op.
func (q *Quote) Lock() error {
	if q.locked {
		return nil
	}
	if q.superseded {
		return fmt.Errorf("cannot lock a superseded quote")
	}
	now := biztime.NowUTC()
	q.locked = true
	q.lockedAt = &now
	q.updatedAt = now
	q.version++
	return nil
}

// Supersede invalidates an unlocked quote when a fresh one is issued.
func (q *Quote) Supersede() error {
	if q.superseded {
		return nil
	}
	if q.locked {
		return fmt.Errorf("cannot supersede a locked quote")
	}
	q.superseded = true
	q.updatedAt = biztime.NowUTC()
	q.version++
	return nil
}

func (q *Quote) ID() uint {
	return q.id
}

func (q *Quote) SID() string {
	return q.sid
}

func (q *Quote) InvoiceID() uint {
	return q.invoiceID
}

func (q *Quote) Chain() vo.ChainType {
	return q.chain
}

func (q *Quote) FiatTotal() vo.Money {
	return q.fiatTotal
}

func (q *Quote) CryptoAmount() decimal.Decimal {
	return q.cryptoAmount
}

func (q *Quote) Rate() decimal.Decimal {
	return q.rate
}

func (q *Quote) IssuedAt() time.Time {
	return q.issuedAt
}

func (q *Quote) ExpiresAt() time.Time {
	return q.expiresAt
}

func (q *Quote) Locked() bool {
	return q.locked
}

func (q *Quote) LockedAt() *time.Time {
	return q.lockedAt
}

func (q *Quote) Superseded() bool {
	return q.superseded
}

func (q *Quote) Version() int {
	return q.version
}

func (q *Quote) CreatedAt() time.Time {
	return q.createdAt
}

func (q *Quote) UpdatedAt() time.Time {
	return q.updatedAt
}

// SetID sets the numeric ID after persistence (used by the repository).
func (q *Quote) SetID(quoteID uint) {
	q.id = quoteID
}

// ReconstructParams carries every persisted field of a quote.
type ReconstructParams struct {
	ID           uint
	SID          string
	InvoiceID    uint
	Chain        vo.ChainType
	FiatTotal    vo.Money
	CryptoAmount decimal.Decimal
	Rate         decimal.Decimal
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Locked       bool
	LockedAt     *time.Time
	Superseded   bool
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Reconstruct rebuilds a Quote from persistence without validation.
func Reconstruct(p ReconstructParams) *Quote {
	return &Quote{
		id:           p.ID,
		sid:          p.SID,
		invoiceID:    p.InvoiceID,
		chain:        p.Chain,
		fiatTotal:    p.FiatTotal,
		cryptoAmount: p.CryptoAmount,
		rate:         p.Rate,
		issuedAt:     p.IssuedAt,
		expiresAt:    p.ExpiresAt,
		locked:       p.Locked,
		lockedAt:     p.LockedAt,
		superseded:   p.Superseded,
		version:      p.Version,
		createdAt:    p.CreatedAt,
		updatedAt:    p.UpdatedAt,
	}
}
