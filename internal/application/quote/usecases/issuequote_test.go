package usecases

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinvoice/internal/application/quote/exchangerate"
	"coinvoice/internal/domain/deposit"
	"coinvoice/internal/domain/invoice"
	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/domain/quote"
	apperrors "coinvoice/internal/shared/errors"
	"coinvoice/internal/shared/logger"
)

// --- fakes ---

type fakeInvoiceRepo struct {
	bySID map[string]*invoice.Invoice
}

func (f *fakeInvoiceRepo) Create(ctx context.Context, inv *invoice.Invoice) error { return nil }
func (f *fakeInvoiceRepo) Update(ctx context.Context, inv *invoice.Invoice) error { return nil }
func (f *fakeInvoiceRepo) GetByID(ctx context.Context, id uint) (*invoice.Invoice, error) {
	for _, inv := range f.bySID {
		if inv.ID() == id {
			return inv, nil
		}
	}
	return nil, assert.AnError
}
func (f *fakeInvoiceRepo) GetBySID(ctx context.Context, sid string) (*invoice.Invoice, error) {
	if inv, ok := f.bySID[sid]; ok {
		return inv, nil
	}
	return nil, assert.AnError
}
func (f *fakeInvoiceRepo) ListNonTerminal(ctx context.Context) ([]*invoice.Invoice, error) {
	return nil, nil
}
func (f *fakeInvoiceRepo) ListExpired(ctx context.Context) ([]*invoice.Invoice, error) {
	return nil, nil
}

type fakeQuoteRepo struct {
	quotes []*quote.Quote
	nextID uint
}

func (f *fakeQuoteRepo) Create(ctx context.Context, q *quote.Quote) error {
	f.nextID++
	q.SetID(f.nextID)
	f.quotes = append(f.quotes, q)
	return nil
}
func (f *fakeQuoteRepo) Update(ctx context.Context, q *quote.Quote) error { return nil }
func (f *fakeQuoteRepo) GetByID(ctx context.Context, id uint) (*quote.Quote, error) {
	for _, q := range f.quotes {
		if q.ID() == id {
			return q, nil
		}
	}
	return nil, nil
}
func (f *fakeQuoteRepo) GetLatestByInvoiceAndChain(ctx context.Context, invoiceID uint, chain vo.ChainType) (*quote.Quote, error) {
	var latest *quote.Quote
	for _, q := range f.quotes {
		if q.InvoiceID() == invoiceID && q.Chain() == chain && !q.Superseded() {
			latest = q
		}
	}
	return latest, nil
}
func (f *fakeQuoteRepo) GetLockedByInvoice(ctx context.Context, invoiceID uint) (*quote.Quote, error) {
	for _, q := range f.quotes {
		if q.InvoiceID() == invoiceID && q.Locked() {
			return q, nil
		}
	}
	return nil, nil
}
func (f *fakeQuoteRepo) SupersedeActive(ctx context.Context, invoiceID uint, chain vo.ChainType) error {
	for _, q := range f.quotes {
		if q.InvoiceID() == invoiceID && q.Chain() == chain && !q.Locked() && !q.Superseded() {
			if err := q.Supersede(); err != nil {
				return err
			}
		}
	}
	return nil
}

type fakeAddressRepo struct {
	addrs map[string]*deposit.Address
}

func addrKey(invoiceID uint, chain vo.ChainType) string {
	return fmt.Sprintf("%d:%s", invoiceID, chain)
}

func (f *fakeAddressRepo) Create(ctx context.Context, addr *deposit.Address) error {
	key := addrKey(addr.InvoiceID(), addr.Chain())
	if _, ok := f.addrs[key]; ok {
		return deposit.ErrAlreadyExists
	}
	f.addrs[key] = addr
	return nil
}
func (f *fakeAddressRepo) GetByInvoiceAndChain(ctx context.Context, invoiceID uint, chain vo.ChainType) (*deposit.Address, error) {
	return f.addrs[addrKey(invoiceID, chain)], nil
}
func (f *fakeAddressRepo) ListByInvoice(ctx context.Context, invoiceID uint) ([]*deposit.Address, error) {
	return nil, nil
}

const fakeETHAddress = "0x742d35cc6634c0532925a3b844bc454e4438f44e"

type fakeDeriver struct {
	calls int
}

func (f *fakeDeriver) Derive(ctx context.Context, invoiceSID string, chain vo.ChainType) (string, error) {
	f.calls++
	return fakeETHAddress, nil
}

type fakeRateService struct {
	rate decimal.Decimal
	err  error
}

func (f *fakeRateService) GetRate(ctx context.Context, chain vo.ChainType, fiatCurrency string) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.rate, nil
}

// --- helpers ---

func sentInvoice(t *testing.T) *invoice.Invoice {
	t.Helper()
	target, err := vo.NewNativeTarget("ETH")
	require.NoError(t, err)
	now := time.Now().UTC()
	return invoice.Reconstruct(invoice.ReconstructParams{
		ID: 1, SID: "inv_test0001", MerchantID: 1,
		Total:            vo.NewMoney(10000, "USD"),
		EnabledChains:    []vo.ChainType{vo.ChainTypeETH},
		SettlementTarget: target,
		Status:           vo.InvoiceStatusSent,
		ExpiredAt:        now.Add(24 * time.Hour),
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

type issueQuoteFixture struct {
	uc          *IssueQuoteUseCase
	invoiceRepo *fakeInvoiceRepo
	quoteRepo   *fakeQuoteRepo
	addressRepo *fakeAddressRepo
	deriver     *fakeDeriver
	rates       *fakeRateService
}

func newIssueQuoteFixture(t *testing.T, inv *invoice.Invoice) *issueQuoteFixture {
	t.Helper()
	f := &issueQuoteFixture{
		invoiceRepo: &fakeInvoiceRepo{bySID: map[string]*invoice.Invoice{inv.SID(): inv}},
		quoteRepo:   &fakeQuoteRepo{},
		addressRepo: &fakeAddressRepo{addrs: make(map[string]*deposit.Address)},
		deriver:     &fakeDeriver{},
		rates:       &fakeRateService{rate: decimal.NewFromInt(2000)},
	}
	f.uc = NewIssueQuoteUseCase(
		f.invoiceRepo, f.quoteRepo, f.addressRepo, f.deriver, f.rates,
		15*time.Minute, logger.NewLogger(),
	)
	return f
}

// =====================================================================
// TestIssueQuote_*
// =====================================================================

func TestIssueQuote_ComputesAmountAndTTL(t *testing.T) {
	inv := sentInvoice(t)
	f := newIssueQuoteFixture(t, inv)

	res, err := f.uc.Execute(context.Background(), IssueQuoteCommand{
		InvoiceSID: inv.SID(),
		Chain:      "ETH",
	})

	require.NoError(t, err)
	require.NotNil(t, res.Quote)
	assert.True(t, res.Quote.CryptoAmount().Equal(decimal.RequireFromString("0.05")),
		"$100 at 2000 USD/ETH should quote 0.05 ETH, got %s", res.Quote.CryptoAmount())
	assert.Equal(t, 15*time.Minute, res.Quote.ExpiresAt().Sub(res.Quote.IssuedAt()))
	assert.Equal(t, fakeETHAddress, res.DepositAddress)
}

func TestIssueQuote_ActiveQuoteReturnedAsIs(t *testing.T) {
	inv := sentInvoice(t)
	f := newIssueQuoteFixture(t, inv)
	cmd := IssueQuoteCommand{InvoiceSID: inv.SID(), Chain: "ETH"}

	first, err := f.uc.Execute(context.Background(), cmd)
	require.NoError(t, err)

	second, err := f.uc.Execute(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, first.Quote.SID(), second.Quote.SID(), "an active quote is not re-priced")
	assert.Len(t, f.quoteRepo.quotes, 1)
}

func TestIssueQuote_ExpiredQuoteSuperseded(t *testing.T) {
	inv := sentInvoice(t)
	f := newIssueQuoteFixture(t, inv)
	cmd := IssueQuoteCommand{InvoiceSID: inv.SID(), Chain: "ETH"}

	first, err := f.uc.Execute(context.Background(), cmd)
	require.NoError(t, err)

	// Pin the clock past the first quote's TTL.
	originalNow := nowUTC
	nowUTC = func() time.Time { return first.Quote.ExpiresAt().Add(time.Minute) }
	defer func() { nowUTC = originalNow }()

	second, err := f.uc.Execute(context.Background(), cmd)
	require.NoError(t, err)

	assert.NotEqual(t, first.Quote.SID(), second.Quote.SID())
	assert.True(t, first.Quote.Superseded(), "the stale quote must be invalidated")
	assert.Equal(t, first.DepositAddress, second.DepositAddress,
		"the deposit address never changes across re-issuance")
}

func TestIssueQuote_DepositAddressStable(t *testing.T) {
	inv := sentInvoice(t)
	f := newIssueQuoteFixture(t, inv)
	cmd := IssueQuoteCommand{InvoiceSID: inv.SID(), Chain: "ETH"}

	_, err := f.uc.Execute(context.Background(), cmd)
	require.NoError(t, err)
	_, err = f.uc.Execute(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, 1, f.deriver.calls, "derivation runs once; later calls read the stored address")
}

func TestIssueQuote_RateUnavailable(t *testing.T) {
	inv := sentInvoice(t)
	f := newIssueQuoteFixture(t, inv)
	f.rates.err = exchangerate.ErrRateUnavailable

	_, err := f.uc.Execute(context.Background(), IssueQuoteCommand{
		InvoiceSID: inv.SID(),
		Chain:      "ETH",
	})

	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
	assert.Empty(t, f.quoteRepo.quotes, "no quote is created when no rate can be sourced")
}

func TestIssueQuote_ChainNotEnabled(t *testing.T) {
	inv := sentInvoice(t)
	f := newIssueQuoteFixture(t, inv)

	_, err := f.uc.Execute(context.Background(), IssueQuoteCommand{
		InvoiceSID: inv.SID(),
		Chain:      "BTC",
	})

	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
}

func TestIssueQuote_InvalidChain(t *testing.T) {
	inv := sentInvoice(t)
	f := newIssueQuoteFixture(t, inv)

	_, err := f.uc.Execute(context.Background(), IssueQuoteCommand{
		InvoiceSID: inv.SID(),
		Chain:      "DOGE",
	})

	require.Error(t, err)
}

func TestIssueQuote_PaidInvoiceRejected(t *testing.T) {
	inv := sentInvoice(t)
	require.NoError(t, inv.MarkPaidDetected())
	f := newIssueQuoteFixture(t, inv)

	_, err := f.uc.Execute(context.Background(), IssueQuoteCommand{
		InvoiceSID: inv.SID(),
		Chain:      "ETH",
	})

	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeConflict, appErr.Type)
}

func TestIssueQuote_UnknownInvoice(t *testing.T) {
	f := newIssueQuoteFixture(t, sentInvoice(t))

	_, err := f.uc.Execute(context.Background(), IssueQuoteCommand{
		InvoiceSID: "inv_missing1",
		Chain:      "ETH",
	})

	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeNotFound, appErr.Type)
}
