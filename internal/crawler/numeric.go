package crawler

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrMalformedNumeric is returned when a price or count is present but does not parse
var ErrMalformedNumeric = errors.New("malformed numeric")

var priceNoise = strings.NewReplacer(
	"VND", "",
	"vnd", "",
	"đ", "",
	"₫", "",
	".", "",
	" ", "",
	"\u00a0", "",
)

// pricePattern is what a price must look like once the noise is stripped
var pricePattern = regexp.MustCompile(`^\d+$`)

var countNoise = strings.NewReplacer(
	".", "",
	",", "",
	" ", "",
	"\u00a0", "",
)

// ParsePrice reads a price such as "1.234.567 đ". Dots are thousands
// separators.
func ParsePrice(raw string) (float64, error) {
	cleaned := priceNoise.Replace(norm.NFC.String(strings.TrimSpace(raw)))
	if !pricePattern.MatchString(cleaned) {
		return 0, fmt.Errorf("%w: price %q", ErrMalformedNumeric, raw)
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("%w: price %q", ErrMalformedNumeric, raw)
	}
	return v, nil
}

// ParseViewCount reads a view counter such as "Đã xem: 1.234". The number is
// the second whitespace-separated token.
func ParseViewCount(raw string) (int64, error) {
	tokens := strings.Fields(raw)
	if len(tokens) < 2 {
		return 0, fmt.Errorf("%w: view count %q", ErrMalformedNumeric, raw)
	}
	return ParseCount(tokens[1])
}

// ParseCount reads a non-negative integer with optional thousands separators
func ParseCount(raw string) (int64, error) {
	cleaned := countNoise.Replace(strings.TrimSpace(raw))
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: count %q", ErrMalformedNumeric, raw)
	}
	return n, nil
}
