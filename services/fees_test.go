package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteSplitsAddUp(t *testing.T) {
	policy := DefaultFeePolicy

	for _, gross := range []string{"0", "0.01", "1", "4.99", "40", "100", "249.99", "250", "999.99", "12345.67"} {
		g, err := decimal.NewFromString(gross)
		require.NoError(t, err)

		q := policy.Quote(g)
		assert.True(t, q.Fee.Add(q.Net).Equal(q.Gross), "fee %s + net %s != gross %s", q.Fee, q.Net, q.Gross)
		assert.False(t, q.Fee.IsNegative())
		assert.False(t, q.Net.IsNegative())
	}
}

func TestQuoteKnownSplits(t *testing.T) {
	policy := DefaultFeePolicy

	q := policy.Quote(decimal.NewFromInt(100))
	assert.Equal(t, "5.00", q.Fee.StringFixed(2))
	assert.Equal(t, "95.00", q.Net.StringFixed(2))

	q = policy.Quote(decimal.NewFromInt(40))
	assert.Equal(t, "2.00", q.Fee.StringFixed(2))
	assert.Equal(t, "38.00", q.Net.StringFixed(2))
}

func TestQuoteReducedTier(t *testing.T) {
	policy := DefaultFeePolicy

	// Just below the threshold: base 5%.
	q := policy.Quote(decimal.RequireFromString("249.99"))
	assert.Equal(t, "12.50", q.Fee.StringFixed(2))

	// At and above the threshold: reduced 3.5%.
	q = policy.Quote(decimal.NewFromInt(250))
	assert.Equal(t, "8.75", q.Fee.StringFixed(2))
	assert.Equal(t, "241.25", q.Net.StringFixed(2))

	q = policy.Quote(decimal.NewFromInt(1000))
	assert.Equal(t, "35.00", q.Fee.StringFixed(2))
}

func TestQuoteFlatPolicyWhenThresholdDisabled(t *testing.T) {
	policy := DefaultFeePolicy
	policy.ReducedThreshold = decimal.Zero

	q := policy.Quote(decimal.NewFromInt(1000))
	assert.Equal(t, "50.00", q.Fee.StringFixed(2))
}

func TestSurcharge(t *testing.T) {
	fee, total := DefaultFeePolicy.Surcharge(decimal.NewFromInt(100))
	assert.Equal(t, "5.00", fee.StringFixed(2))
	assert.Equal(t, "105.00", total.StringFixed(2))
}
