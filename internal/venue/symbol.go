package venue

import "strings"

// PerpSymbol maps a unified symbol like "ALPACA/USDT:USDT" to the
// venue-native perp symbol "ALPACAUSDT". Already-native symbols pass through.
func PerpSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return strings.ReplaceAll(s, "/", "")
}
