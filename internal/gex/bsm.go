package gex

import (
	"math"
	"time"
)

// minYears is one calendar day expressed in years, the floor applied to
// 0DTE contracts so the gamma formula stays finite.
const minYears = 1.0 / 365.0

// BlackScholesGamma returns the Black-Scholes gamma of a European option.
// The formula is identical for calls and puts.
//
// spot and strike are prices, years is time to expiry in years, rate is the
// risk-free rate and sigma the implied volatility in decimal form.
// Degenerate inputs (any of spot, strike, years, sigma <= 0) yield NaN.
func BlackScholesGamma(spot, strike, years, rate, sigma float64) float64 {
	if spot <= 0 || strike <= 0 || years <= 0 || sigma <= 0 {
		return math.NaN()
	}
	sqrtT := math.Sqrt(years)
	d1 := (math.Log(spot/strike) + (rate+0.5*sigma*sigma)*years) / (sigma * sqrtT)
	return normPDF(d1) / (spot * sigma * sqrtT)
}

// normPDF is the standard normal probability density function.
func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// YearsToExpiry converts the calendar distance between asof and expiry into
// years, flooring same-day (and past) expirations to one calendar day.
func YearsToExpiry(asof, expiry time.Time) float64 {
	days := expiry.Sub(asof).Hours() / 24
	if days < 0 {
		days = 0
	}
	years := math.Floor(days) / 365.0
	if years <= 0 {
		return minYears
	}
	return years
}
