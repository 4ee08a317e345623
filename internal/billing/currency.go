package billing

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var currencyLocales = map[Currency]struct {
	tag    language.Tag
	symbol string
}{
	CurrencyBRL: {language.BrazilianPortuguese, "R$"},
	CurrencyUSD: {language.AmericanEnglish, "$"},
	CurrencyEUR: {language.German, "€"},
}

// FormatCurrency renders a monetary value for display using the locale
// conventionally paired with the currency. Presentation only; calculations
// never depend on this.
func FormatCurrency(v decimal.Decimal, c Currency) string {
	loc, ok := currencyLocales[c]
	if !ok {
		loc = currencyLocales[CurrencyBRL]
	}
	p := message.NewPrinter(loc.tag)
	amount, _ := Round2(v).Float64()
	return p.Sprintf("%s %v", loc.symbol, number.Decimal(amount, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
