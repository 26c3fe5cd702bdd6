// Package core provides the finance domain types and the pure engines that turn
// stored records into display data.
//
// This file contains currency parsing, conversion at a single USD->TRY rate and
// display formatting.
package core

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	USD Currency = "USD"
	TRY Currency = "TRY"
)

// Currency is one of the two supported ISO codes.
type Currency string

var currencyLocales = map[Currency]language.Tag{
	USD: language.AmericanEnglish,
	TRY: language.Turkish,
}

var currencySymbols = map[Currency]string{
	USD: "$",
	TRY: "₺",
}

// ParseCurrency accepts a currency code in any letter case.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
	}
	return c, nil
}

// Valid reports whether c is a supported currency.
func (c Currency) Valid() bool {
	_, ok := currencySymbols[c]
	return ok
}

// Symbol returns the display prefix, or the code itself for unknown currencies.
func (c Currency) Symbol() string {
	if s, ok := currencySymbols[c]; ok {
		return s
	}
	return string(c)
}

func (c Currency) String() string { return string(c) }

// RateAvailable reports whether rate can be used for conversion.
func RateAvailable(rate float64) bool {
	return rate > 0 && !math.IsInf(rate, 0) && !math.IsNaN(rate)
}

// Convert moves amount from one currency to another. rate is TRY per 1 USD.
// A missing rate (zero, negative, NaN) leaves the amount unconverted so that
// display never blocks on the rate fetch.
func Convert(amount float64, from, to Currency, rate float64) float64 {
	if !RateAvailable(rate) || from == to {
		return amount
	}
	switch {
	case from == USD && to == TRY:
		return amount * rate
	case from == TRY && to == USD:
		return amount / rate
	}
	return amount
}

// Format converts amount into display and renders it with no decimals, the
// display currency symbol and the grouping rules of that currency's locale.
// Halves round to even: 2.5 renders as 2 and 3.5 as 4.
func Format(amount float64, from, display Currency, rate float64) string {
	converted := math.RoundToEven(Convert(amount, from, display, rate))
	if converted == 0 {
		// avoid "-0"
		converted = 0
	}

	tag, ok := currencyLocales[display]
	if !ok {
		tag = language.AmericanEnglish
	}
	p := message.NewPrinter(tag)
	return display.Symbol() + p.Sprint(number.Decimal(converted, number.MaxFractionDigits(0)))
}

// Converter carries the session's display currency and exchange rate.
type Converter struct {
	Display Currency
	Rate    float64
}

// Convert converts amount from its own currency into the display currency.
func (c Converter) Convert(amount float64, from Currency) float64 {
	return Convert(amount, from, c.Display, c.Rate)
}

// Format renders amount in the display currency.
func (c Converter) Format(amount float64, from Currency) string {
	return Format(amount, from, c.Display, c.Rate)
}
