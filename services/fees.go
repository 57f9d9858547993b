package services

import (
	"log"
	"os"

	"github.com/shopspring/decimal"
)

// FeePolicy is the single source of truth for the platform's cut. Every
// call site (completion payout, expiry refund, deposit surcharge, generic
// quote) goes through the same injected policy so the rates cannot drift.
type FeePolicy struct {
	BaseRate    decimal.Decimal // e.g. 0.05
	ReducedRate decimal.Decimal // e.g. 0.035 for large bounties
	// Gross amount at which ReducedRate kicks in. Zero disables the
	// reduced tier and yields a flat policy.
	ReducedThreshold decimal.Decimal
}

var DefaultFeePolicy = FeePolicy{
	BaseRate:         decimal.NewFromFloat(0.05),
	ReducedRate:      decimal.NewFromFloat(0.035),
	ReducedThreshold: decimal.NewFromInt(250),
}

// FeePolicyFromEnv loads overrides from FEE_BASE_RATE, FEE_REDUCED_RATE and
// FEE_REDUCED_THRESHOLD, falling back to the defaults per field.
func FeePolicyFromEnv() FeePolicy {
	p := DefaultFeePolicy
	if v := os.Getenv("FEE_BASE_RATE"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
			p.BaseRate = d
		} else {
			log.Printf("[fees] ignoring invalid FEE_BASE_RATE %q", v)
		}
	}
	if v := os.Getenv("FEE_REDUCED_RATE"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
			p.ReducedRate = d
		} else {
			log.Printf("[fees] ignoring invalid FEE_REDUCED_RATE %q", v)
		}
	}
	if v := os.Getenv("FEE_REDUCED_THRESHOLD"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && !d.IsNegative() {
			p.ReducedThreshold = d
		} else {
			log.Printf("[fees] ignoring invalid FEE_REDUCED_THRESHOLD %q", v)
		}
	}
	return p
}

// FeeQuote is the split of a gross amount. Fee + Net always equals Gross.
type FeeQuote struct {
	Gross decimal.Decimal `json:"gross_amount"`
	Fee   decimal.Decimal `json:"fee"`
	Net   decimal.Decimal `json:"net_amount"`
}

// RateFor picks the tier for a gross amount.
func (p FeePolicy) RateFor(gross decimal.Decimal) decimal.Decimal {
	if p.ReducedThreshold.IsPositive() && gross.GreaterThanOrEqual(p.ReducedThreshold) {
		return p.ReducedRate
	}
	return p.BaseRate
}

// Quote splits gross into fee and net. The fee is rounded to cents and the
// net is derived by subtraction, so the two always sum back to gross.
func (p FeePolicy) Quote(gross decimal.Decimal) FeeQuote {
	gross = gross.Round(2)
	fee := gross.Mul(p.RateFor(gross)).Round(2)
	return FeeQuote{
		Gross: gross,
		Fee:   fee,
		Net:   gross.Sub(fee),
	}
}

// Surcharge computes a fee charged on top of an amount (deposits): the user
// receives amount, the card is charged amount + fee at the base rate.
func (p FeePolicy) Surcharge(amount decimal.Decimal) (fee, total decimal.Decimal) {
	amount = amount.Round(2)
	fee = amount.Mul(p.BaseRate).Round(2)
	return fee, amount.Add(fee)
}
