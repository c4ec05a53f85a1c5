package expense

import "github.com/shopspring/decimal"

// Swiss MWST rates since 1 January 2024
var (
	NormalRate  = decimal.RequireFromString("8.1")
	ReducedRate = decimal.RequireFromString("2.6")
	SpecialRate = decimal.RequireFromString("3.8")
	ZeroRate    = decimal.Zero
)

var rateLabels = []struct {
	rate  decimal.Decimal
	label string
}{
	{NormalRate, "Normalsatz (8.1%)"},
	{ReducedRate, "Reduzierter Satz (2.6%)"},
	{SpecialRate, "Sondersatz Beherbergung (3.8%)"},
	{ZeroRate, "Befreit / Ausland"},
}

// RateLabel names a VAT rate for reports, falling back to "<rate>%"
func RateLabel(rate decimal.Decimal) string {
	for _, rl := range rateLabels {
		if rl.rate.Equal(rate) {
			return rl.label
		}
	}
	return rate.String() + "%"
}

// ComputeVAT returns the VAT contained in a gross amount at the given percentage
func ComputeVAT(gross, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	return gross.Mul(rate).Div(hundred.Add(rate)).Round(2)
}

// ComputeNet returns the amount excluding VAT
func ComputeNet(gross, rate decimal.Decimal) decimal.Decimal {
	return gross.Sub(ComputeVAT(gross, rate))
}
