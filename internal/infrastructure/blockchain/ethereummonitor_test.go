package blockchain

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "coinvoice/internal/domain/invoice/valueobjects"
	"coinvoice/internal/shared/logger"
)

const ethTestAddress = "0x742d35cc6634c0532925a3b844bc454e4438f44e"

func TestEthereumMonitor_MissingAPIKeyFailsObservation(t *testing.T) {
	m := NewEthereumMonitor("https://api.etherscan.io/api", "", logger.NewLogger())

	transfers, err := m.Observe(context.Background(), vo.ChainTypeETH, ethTestAddress, time.Now().UTC())

	require.Error(t, err, "an unset key must surface as an error, not as an empty result")
	assert.Contains(t, err.Error(), "API key")
	assert.Nil(t, transfers)
}

func TestEthereumMonitor_RejectsOtherChains(t *testing.T) {
	m := NewEthereumMonitor("https://api.etherscan.io/api", "key", logger.NewLogger())

	_, err := m.Observe(context.Background(), vo.ChainTypeBTC, ethTestAddress, time.Now().UTC())

	require.Error(t, err)
}

func TestEthereumMonitor_ObserveParsesInboundTransfers(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			fmt.Fprint(w, `{"status":"0","message":"No transactions found","result":[]}`)
			return
		}
		fmt.Fprintf(w, `{"status":"1","message":"OK","result":[
			{"blockNumber":"100","timeStamp":"%d","hash":"0xaaa1","from":"0x0000000000000000000000000000000000000001","to":"%s","value":"50000000000000000","isError":"0","confirmations":"15"},
			{"blockNumber":"99","timeStamp":"%d","hash":"0xaaa2","from":"%s","to":"0x0000000000000000000000000000000000000002","value":"10000000000000000","isError":"0","confirmations":"16"}
		]}`, now.Unix(), ethTestAddress, now.Unix(), ethTestAddress)
	}))
	defer server.Close()

	m := NewEthereumMonitor(server.URL, "key", logger.NewLogger())

	transfers, err := m.Observe(context.Background(), vo.ChainTypeETH, ethTestAddress, now.Add(-time.Minute))

	require.NoError(t, err)
	require.Len(t, transfers, 1, "outbound transfers are ignored")
	assert.Equal(t, "0xaaa1", transfers[0].TxRef)
	assert.True(t, transfers[0].Amount.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, 15, transfers[0].Confirmations)
}
