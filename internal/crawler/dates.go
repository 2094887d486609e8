package crawler

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ErrUnparseableDate is returned when a date phrase matches no known format
var ErrUnparseableDate = errors.New("unparseable date")

// Unit is a relative-date unit keyword
type Unit int

const (
	UnitYear Unit = iota
	UnitMonth
	UnitWeek
	UnitDay
	UnitHour
	UnitMinute
	UnitSecond
	UnitYesterday
)

const day = 24 * time.Hour

var unitDurations = map[Unit]time.Duration{
	UnitYear:      365 * day,
	UnitMonth:     30 * day,
	UnitWeek:      7 * day,
	UnitDay:       day,
	UnitHour:      time.Hour,
	UnitMinute:    time.Minute,
	UnitSecond:    time.Second,
	UnitYesterday: day,
}

// unitKeywords is checked in order and the first keyword found wins. Yesterday
// goes first so a time of day in the phrase never overrides it.
var unitKeywords = []struct {
	keyword string
	unit    Unit
}{
	{"hôm qua", UnitYesterday},
	{"năm", UnitYear},
	{"tháng", UnitMonth},
	{"tuần", UnitWeek},
	{"ngày", UnitDay},
	{"giờ", UnitHour},
	{"phút", UnitMinute},
	{"giây", UnitSecond},
}

// todayKeyword marks a phrase such as "Hôm nay lúc 10:30"
const todayKeyword = "hôm nay"

var (
	absoluteDatePattern = regexp.MustCompile(`(?:^|\D)(\d{1,2}/\d{1,2}/(?:\d{4}|\d{2}))(?:\D|$)`)
	digitRunPattern     = regexp.MustCompile(`\d+`)
)

// RelativeDuration is a parsed "<quantity> <unit> trước" phrase
type RelativeDuration struct {
	Quantity int
	Unit     Unit
}

// Duration returns how far back the phrase points. Yesterday is always one day.
func (d RelativeDuration) Duration() time.Duration {
	if d.Unit == UnitYesterday {
		return day
	}
	return time.Duration(d.Quantity) * unitDurations[d.Unit]
}

// ParseRelativeDuration reads a relative phrase such as "3 tháng trước".
// The quantity is the first run of digits in the phrase.
func ParseRelativeDuration(raw string) (RelativeDuration, error) {
	s := strings.ToLower(norm.NFC.String(strings.TrimSpace(raw)))

	for _, uk := range unitKeywords {
		if !strings.Contains(s, uk.keyword) {
			continue
		}
		if uk.unit == UnitYesterday {
			return RelativeDuration{Quantity: 1, Unit: UnitYesterday}, nil
		}

		digits := digitRunPattern.FindString(s)
		if digits == "" {
			return RelativeDuration{}, fmt.Errorf("%w: %q has no quantity", ErrUnparseableDate, raw)
		}
		n, err := strconv.Atoi(digits)
		if err != nil || int64(n) > math.MaxInt64/int64(unitDurations[uk.unit]) {
			return RelativeDuration{}, fmt.Errorf("%w: %q is out of range", ErrUnparseableDate, raw)
		}
		return RelativeDuration{Quantity: n, Unit: uk.unit}, nil
	}

	return RelativeDuration{}, fmt.Errorf("%w: %q", ErrUnparseableDate, raw)
}

// ParseRelative resolves a relative phrase against now
func ParseRelative(raw string, now time.Time) (time.Time, error) {
	d, err := ParseRelativeDuration(raw)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-d.Duration()), nil
}

// ParseAbsolute reads a day/month/year date, two or four digit year,
// optionally followed by "at"/"lúc" and a time of day. The time of day is
// discarded and the result is local midnight in loc.
func ParseAbsolute(raw string, loc *time.Location) (time.Time, error) {
	m := absoluteDatePattern.FindStringSubmatch(norm.NFC.String(raw))
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableDate, raw)
	}

	layout := "2/1/06"
	if parts := strings.Split(m[1], "/"); len(parts[2]) == 4 {
		layout = "2/1/2006"
	}

	t, err := time.ParseInLocation(layout, m[1], loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableDate, raw)
	}
	return t, nil
}

// DateNormalizer turns scraped date text into unix timestamps
type DateNormalizer struct {
	Location *time.Location
	Now      func() time.Time
}

// NewDateNormalizer creates a normalizer for loc using the wall clock
func NewDateNormalizer(loc *time.Location) DateNormalizer {
	return DateNormalizer{Location: loc, Now: time.Now}
}

// Normalize tries the absolute format first, then "today" (local midnight of
// now), then a relative phrase
func (n DateNormalizer) Normalize(raw string) (time.Time, error) {
	if t, err := ParseAbsolute(raw, n.location()); err == nil {
		return t, nil
	}
	if strings.Contains(strings.ToLower(norm.NFC.String(raw)), todayKeyword) {
		return n.Today(), nil
	}
	return ParseRelative(raw, n.now())
}

// Today returns local midnight of the current day
func (n DateNormalizer) Today() time.Time {
	now := n.now().In(n.location())
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, n.location())
}

// Absolute parses raw only as an absolute date
func (n DateNormalizer) Absolute(raw string) (time.Time, error) {
	return ParseAbsolute(raw, n.location())
}

func (n DateNormalizer) location() *time.Location {
	if n.Location == nil {
		return time.Local
	}
	return n.Location
}

func (n DateNormalizer) now() time.Time {
	if n.Now == nil {
		return time.Now()
	}
	return n.Now()
}
