package models

import (
	"fmt"
	"strings"
)

// Trading pairs appear in two spellings: the exchange request form
// "BTC-USD" and the canonical stored form "BTC/USD". Conversions live here
// so the two never mix silently.

// ParsePair validates a user-supplied pair in request form (BASE-QUOTE,
// dash required) and returns it uppercased.
func ParsePair(pair string) (string, error) {
	p := strings.ToUpper(strings.TrimSpace(pair))
	parts := strings.Split(p, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("trading pair must be in format BASE-QUOTE (e.g. BTC-USD), got %q", pair)
	}
	return p, nil
}

// CanonicalSymbol converts a request-form pair to the canonical BASE/QUOTE
// symbol recorded on every candle.
func CanonicalSymbol(pair string) string {
	return strings.ReplaceAll(strings.ToUpper(pair), "-", "/")
}

// PairFromSymbol converts a canonical symbol back to request form, the
// spelling used in file names and API paths.
func PairFromSymbol(symbol string) string {
	return strings.ReplaceAll(strings.ToUpper(symbol), "/", "-")
}
