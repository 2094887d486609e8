package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"
)

func TestParseAbsolute(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	want := time.Date(2020, time.May, 12, 0, 0, 0, 0, loc)

	tests := []string{
		"12/05/20 at 14:30",
		"12/05/20 lúc 14:30",
		"12/05/20",
		"  12/5/20  ",
		"12/05/2020",
	}
	for _, raw := range tests {
		got, err := ParseAbsolute(raw, loc)
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got), "%q: want %v, got %v", raw, want, got)
	}

	for _, raw := range []string{"", "hôm qua", "31/02/20", "2020-05-12"} {
		_, err := ParseAbsolute(raw, loc)
		assert.ErrorIs(t, err, ErrUnparseableDate, raw)
	}
}

func TestParseRelative(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"3 tháng trước", fixedNow.Add(-90 * day)},
		{"3 tháng", fixedNow.Add(-90 * day)},
		{"1 năm trước", fixedNow.Add(-365 * day)},
		{"2 tuần trước", fixedNow.Add(-14 * day)},
		{"5 ngày trước", fixedNow.Add(-5 * day)},
		{"4 giờ trước", fixedNow.Add(-4 * time.Hour)},
		{"15 phút trước", fixedNow.Add(-15 * time.Minute)},
		{"30 giây trước", fixedNow.Add(-30 * time.Second)},
		{"hôm qua", fixedNow.Add(-24 * time.Hour)},
		{"Hôm qua 9", fixedNow.Add(-24 * time.Hour)},
		{"Hôm qua lúc 10 giờ", fixedNow.Add(-24 * time.Hour)},
		{"Đăng 3 Tháng trước", fixedNow.Add(-90 * day)},
	}
	for _, tt := range tests {
		got, err := ParseRelative(tt.raw, fixedNow)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestParseRelativeDecomposed(t *testing.T) {
	// Same phrase in decomposed form
	raw := norm.NFD.String("2 tháng trước")
	got, err := ParseRelative(raw, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(-60*day), got)
}

func TestParseRelativeErrors(t *testing.T) {
	for _, raw := range []string{"", "vừa xong", "tháng trước", "300 năm trước", "99999999999 giờ trước"} {
		_, err := ParseRelative(raw, fixedNow)
		assert.ErrorIs(t, err, ErrUnparseableDate, raw)
	}
}

func TestParseRelativeDuration(t *testing.T) {
	d, err := ParseRelativeDuration("12 giờ trước")
	require.NoError(t, err)
	assert.Equal(t, RelativeDuration{Quantity: 12, Unit: UnitHour}, d)
	assert.Equal(t, 12*time.Hour, d.Duration())

	d, err = ParseRelativeDuration("hôm qua")
	require.NoError(t, err)
	assert.Equal(t, UnitYesterday, d.Unit)
	assert.Equal(t, day, d.Duration())
}

func TestDateNormalizer(t *testing.T) {
	n := testDates()

	got, err := n.Normalize("12/05/20 at 14:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, time.May, 12, 0, 0, 0, 0, n.Location).Unix(), got.Unix())

	got, err = n.Normalize("3 ngày trước")
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(-3*day), got)

	_, err = n.Normalize("không rõ")
	assert.ErrorIs(t, err, ErrUnparseableDate)

	// Absolute only
	_, err = n.Absolute("3 ngày trước")
	assert.ErrorIs(t, err, ErrUnparseableDate)
}

func TestDateNormalizerToday(t *testing.T) {
	n := testDates()
	midnight := time.Date(2020, time.June, 1, 0, 0, 0, 0, n.Location)

	for _, raw := range []string{"Hôm nay lúc 10:30", "hôm nay", norm.NFD.String("Hôm nay")} {
		got, err := n.Normalize(raw)
		require.NoError(t, err, raw)
		assert.True(t, midnight.Equal(got), "%q: want %v, got %v", raw, midnight, got)
	}
}

func TestParseRelativeNeverInFuture(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	got, err := ParseRelative("292 năm trước", now)
	require.NoError(t, err)
	assert.True(t, got.Before(now))

	_, err = ParseRelative("300 năm trước", now)
	assert.ErrorIs(t, err, ErrUnparseableDate)
}
