package marketdata

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteSnapshot_PreservesDecimalPrecision(t *testing.T) {
	raw := []byte(`{"symbol":"ETHUSD","bidPrice":"1234.56789012","bidSize":"3.5","askPrice":"1234.57000000","askSize":"2.1","timestamp":1700000000}`)

	var snap QuoteSnapshot
	require.NoError(t, json.Unmarshal(raw, &snap))

	assert.True(t, snap.BidPrice.Equal(decimal.RequireFromString("1234.56789012")))
	assert.Equal(t, "ETHUSD", snap.Symbol)

	out, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(out), "1234.56789012")
}

func TestQuoteDelta_PartialFieldsOmitted(t *testing.T) {
	price := decimal.RequireFromString("100.5")
	d := QuoteDelta{Symbol: "ETHUSD", BidPrice: &price, Timestamp: 1}

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "askPrice")
	assert.Contains(t, string(out), "bidPrice")
}

func TestDecodeSnapshot_RoundTripsFromGenericAny(t *testing.T) {
	var generic any
	require.NoError(t, json.Unmarshal([]byte(`{"symbol":"BTCUSD","bidPrice":"50000.01","bidSize":"0.5","askPrice":"50000.02","askSize":"0.4","timestamp":5}`), &generic))

	snap, err := DecodeSnapshot(generic)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSD", snap.Symbol)
	assert.True(t, snap.AskPrice.Equal(decimal.RequireFromString("50000.02")))
}

func TestDecodeDelta_RoundTripsFromGenericAny(t *testing.T) {
	var generic any
	require.NoError(t, json.Unmarshal([]byte(`{"symbol":"BTCUSD","askSize":"1.25","timestamp":7}`), &generic))

	delta, err := DecodeDelta(generic)
	require.NoError(t, err)
	require.NotNil(t, delta.AskSize)
	assert.True(t, delta.AskSize.Equal(decimal.RequireFromString("1.25")))
	assert.Nil(t, delta.BidPrice)
}
