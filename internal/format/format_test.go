package format_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/noah-isme/toko-cart/internal/format"
)

func TestNumber(t *testing.T) {
	cases := []struct {
		name     string
		value    string
		decimals int
		point    string
		sep      string
		want     string
	}{
		{name: "defaults", value: "1234567.891", decimals: 2, point: ",", sep: ".", want: "1.234.567,89"},
		{name: "rounds half away from zero", value: "2.345", decimals: 2, point: ".", sep: ",", want: "2.35"},
		{name: "negative rounds away from zero", value: "-2.345", decimals: 2, point: ".", sep: ",", want: "-2.35"},
		{name: "no decimals", value: "999.5", decimals: 0, point: ".", sep: ",", want: "1,000"},
		{name: "pads decimals", value: "20", decimals: 2, point: ",", sep: ".", want: "20,00"},
		{name: "small value", value: "0.004", decimals: 2, point: ".", sep: ",", want: "0.00"},
		{name: "negative zero drops sign", value: "-0.001", decimals: 2, point: ".", sep: ",", want: "0.00"},
		{name: "empty separator", value: "1234567", decimals: 1, point: ".", sep: "", want: "1234567.0"},
		{name: "exact thousand", value: "100000", decimals: 0, point: ".", sep: " ", want: "100 000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := format.Number(decimal.RequireFromString(tc.value), tc.decimals, tc.point, tc.sep)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	require.Equal(t, "1.234,50", format.Default().Format(decimal.RequireFromString("1234.5")))
}

func TestLocale(t *testing.T) {
	d := decimal.RequireFromString("1234.5")
	require.Equal(t, "1,234.50", format.Locale(d, 2, language.English))
	require.Equal(t, "1.234,50", format.Locale(d, 2, language.German))
}

func TestParseTagFallsBack(t *testing.T) {
	require.Equal(t, language.English, format.ParseTag("not a tag!"))
	require.Equal(t, language.MustParse("id"), format.ParseTag("id"))
}

func TestOptionsPreferLocale(t *testing.T) {
	opts := format.Options{Decimals: 2, DecimalPoint: ",", ThousandsSeparator: ".", Locale: "en"}
	require.Equal(t, "1,234.50", opts.Format(decimal.RequireFromString("1234.5")))
}
