package collector

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMarket is returned for codes no exchange prefix can be derived for.
var ErrUnknownMarket = errors.New("unknown market")

// Market is an A-share exchange.
type Market string

const (
	MarketShanghai Market = "sh"
	MarketShenzhen Market = "sz"
	MarketBeijing  Market = "bj"
)

// MarketOf derives the listing exchange from a six-digit code.
func MarketOf(code string) (Market, error) {
	if len(code) != 6 || strings.Trim(code, "0123456789") != "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownMarket, code)
	}
	switch {
	case strings.HasPrefix(code, "92"):
		return MarketBeijing, nil
	case code[0] == '6' || code[0] == '9' || code[0] == '5':
		return MarketShanghai, nil
	case code[0] == '0' || code[0] == '2' || code[0] == '3' || code[0] == '1':
		return MarketShenzhen, nil
	case code[0] == '4' || code[0] == '8':
		return MarketBeijing, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMarket, code)
}

// PrefixedSymbol translates "600519" into "sh600519".
func PrefixedSymbol(code string) (string, error) {
	m, err := MarketOf(code)
	if err != nil {
		return "", err
	}
	return string(m) + code, nil
}

// StripPrefix translates "sh600519" back into "600519". Plain codes pass through.
func StripPrefix(symbol string) string {
	s := strings.ToLower(symbol)
	for _, m := range []Market{MarketShanghai, MarketShenzhen, MarketBeijing} {
		if strings.HasPrefix(s, string(m)) && len(s) == len(m)+6 {
			return symbol[len(m):]
		}
	}
	return symbol
}

// EastmoneySecID translates "600519" into Eastmoney's "1.600519" (Shanghai = 1, others = 0).
func EastmoneySecID(code string) (string, error) {
	m, err := MarketOf(code)
	if err != nil {
		return "", err
	}
	if m == MarketShanghai {
		return "1." + code, nil
	}
	return "0." + code, nil
}
