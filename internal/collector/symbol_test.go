package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarketOf(t *testing.T) {
	tests := []struct {
		code    string
		want    Market
		wantErr bool
	}{
		{"600519", MarketShanghai, false},
		{"688981", MarketShanghai, false},
		{"000001", MarketShenzhen, false},
		{"300750", MarketShenzhen, false},
		{"002594", MarketShenzhen, false},
		{"430047", MarketBeijing, false},
		{"832000", MarketBeijing, false},
		{"920001", MarketBeijing, false},
		{"900901", MarketShanghai, false},
		{"60051", "", true},
		{"sh600519", "", true},
		{"7x0001", "", true},
		{"700001", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, err := MarketOf(tt.code)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownMarket)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrefixedSymbol(t *testing.T) {
	s, err := PrefixedSymbol("600519")
	assert.NoError(t, err)
	assert.Equal(t, "sh600519", s)

	s, err = PrefixedSymbol("000858")
	assert.NoError(t, err)
	assert.Equal(t, "sz000858", s)

	_, err = PrefixedSymbol("")
	assert.Error(t, err)
}

func TestStripPrefix(t *testing.T) {
	assert.Equal(t, "600519", StripPrefix("sh600519"))
	assert.Equal(t, "000001", StripPrefix("SZ000001"))
	assert.Equal(t, "830799", StripPrefix("bj830799"))
	assert.Equal(t, "600519", StripPrefix("600519"))
	assert.Equal(t, "sh60051", StripPrefix("sh60051"))
}

func TestEastmoneySecID(t *testing.T) {
	id, err := EastmoneySecID("601318")
	assert.NoError(t, err)
	assert.Equal(t, "1.601318", id)

	id, err = EastmoneySecID("300750")
	assert.NoError(t, err)
	assert.Equal(t, "0.300750", id)

	id, err = EastmoneySecID("830799")
	assert.NoError(t, err)
	assert.Equal(t, "0.830799", id)
}

func TestToFloat(t *testing.T) {
	assert.Equal(t, 1.5, toFloat(1.5))
	assert.Equal(t, 2.0, toFloat(2))
	assert.Equal(t, 3.25, toFloat(" 3.25 "))
	assert.Equal(t, 0.0, toFloat("-"))
	assert.Equal(t, 0.0, toFloat(nil))
}
