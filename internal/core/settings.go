package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// DefaultCurrency is the display currency of a fresh ledger.
const DefaultCurrency = "CHF"

// SupportedCurrencies lists the codes offered by the currency selector.
var SupportedCurrencies = []string{"CHF", "EUR", "USD", "GBP"}

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// Settings holds the user preferences. Currency is a display label only:
// amounts are never converted.
type Settings struct {
	Currency string `json:"currency"`
}

func DefaultSettings() Settings {
	return Settings{Currency: DefaultCurrency}
}

// NormalizeCurrency upper-cases and validates a currency code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !slices.Contains(SupportedCurrencies, code) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
	}
	return code, nil
}

func (s Settings) Validate() error {
	_, err := NormalizeCurrency(s.Currency)
	return err
}
