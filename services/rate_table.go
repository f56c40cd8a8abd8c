package services

import (
	"github.com/shopspring/decimal"
)

const DefaultCountry = "Default"

type CountryRate struct {
	PlatformFeeRate decimal.Decimal `json:"platform_fee_rate"`
	GSTRate         decimal.Decimal `json:"gst_rate"`
}

// RateTable maps a mentor's country to its fee schedule. Unknown countries
// fall back to the Default entry.
type RateTable struct {
	rates map[string]CountryRate
}

func NewRateTable(rates map[string]CountryRate) *RateTable {
	cp := make(map[string]CountryRate, len(rates)+1)
	for country, rate := range rates {
		cp[country] = rate
	}
	if _, ok := cp[DefaultCountry]; !ok {
		cp[DefaultCountry] = CountryRate{PlatformFeeRate: decimal.Zero, GSTRate: decimal.Zero}
	}
	return &RateTable{rates: cp}
}

func DefaultRateTable() *RateTable {
	return NewRateTable(map[string]CountryRate{
		"India": {
			PlatformFeeRate: decimal.RequireFromString("0.05"),
			GSTRate:         decimal.RequireFromString("0.18"),
		},
		"USA": {
			PlatformFeeRate: decimal.RequireFromString("0.07"),
			GSTRate:         decimal.RequireFromString("0.10"),
		},
		DefaultCountry: {
			PlatformFeeRate: decimal.RequireFromString("0.05"),
			GSTRate:         decimal.Zero,
		},
	})
}

// Lookup returns the rate for country and the key that was actually used.
func (t *RateTable) Lookup(country string) (CountryRate, string) {
	if rate, ok := t.rates[country]; ok {
		return rate, country
	}
	return t.rates[DefaultCountry], DefaultCountry
}
