// Package format renders money amounts for display.
package format

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Options describes a fixed number format. When Locale is set the separators come from the
// locale instead of DecimalPoint and ThousandsSeparator.
type Options struct {
	Decimals           int
	DecimalPoint       string
	ThousandsSeparator string
	Locale             string
}

// Default returns two decimals, a comma as decimal point and a dot between thousands.
func Default() Options {
	return Options{Decimals: 2, DecimalPoint: ",", ThousandsSeparator: "."}
}

// Format renders d with the receiver's settings.
func (o Options) Format(d decimal.Decimal) string {
	if o.Locale != "" {
		return Locale(d, o.Decimals, ParseTag(o.Locale))
	}
	return Number(d, o.Decimals, o.DecimalPoint, o.ThousandsSeparator)
}

// Number rounds d half away from zero to decimals places and groups the integer part in
// thousands. A negative decimals count is treated as zero.
func Number(d decimal.Decimal, decimals int, decimalPoint, thousandsSeparator string) string {
	if decimals < 0 {
		decimals = 0
	}
	fixed := d.Round(int32(decimals)).StringFixed(int32(decimals))

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		fixed = fixed[1:]
		if strings.Trim(fixed, "0.") != "" {
			sign = "-"
		}
	}
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	b.WriteString(sign)
	b.WriteString(group(intPart, thousandsSeparator))
	if decimals > 0 {
		b.WriteString(decimalPoint)
		b.WriteString(fracPart)
	}
	return b.String()
}

func group(digits, sep string) string {
	if sep == "" || len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Locale renders d with the separators of tag, for example 1,234.50 for English and
// 1.234,50 for German. The value goes through float64, so it is meant for display only.
func Locale(d decimal.Decimal, decimals int, tag language.Tag) string {
	if decimals < 0 {
		decimals = 0
	}
	p := message.NewPrinter(tag)
	return p.Sprint(number.Decimal(d.Round(int32(decimals)).InexactFloat64(), number.Scale(decimals)))
}

// ParseTag parses a BCP 47 language tag, falling back to English.
func ParseTag(tag string) language.Tag {
	parsed, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return language.English
	}
	return parsed
}
