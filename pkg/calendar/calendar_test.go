package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Date
	}{
		{"bare date", "2024-03-15", NewDate(2024, time.March, 15)},
		{"utc midnight", "2024-03-15T00:00:00.000Z", NewDate(2024, time.March, 15)},
		{"late evening with offset", "2024-03-15T23:30:00-03:00", NewDate(2024, time.March, 15)},
		{"space separated", "2024-03-15 10:00:00", NewDate(2024, time.March, 15)},
		{"empty", "", Date{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}

	_, err := ParseDate("15/03/2024")
	assert.Error(t, err)

	// Mistyped years are rejected instead of producing absurd day counts.
	for _, input := range []string{"0024-03-10", "1899-12-31", "3024-03-10"} {
		_, err := ParseDate(input)
		assert.Error(t, err, input)
	}
}

func TestDaysUntilLongSpans(t *testing.T) {
	start := MustParseDate("1900-01-01")

	assert.Equal(t, 45359, DaysUntil(MustParseDate("2024-03-10"), start))
	assert.Equal(t, 401766, DaysUntil(MustParseDate("2999-12-31"), start))
	assert.Equal(t, -401766, DaysUntil(start, MustParseDate("2999-12-31")))
	assert.Equal(t, 2, DaysUntil(MustParseDate("2024-03-01"), MustParseDate("2024-02-28")))
	assert.Equal(t, 401766, DaysOverdue(start, MustParseDate("2999-12-31")))
}

func TestTodayUsesBrasilia(t *testing.T) {
	// 02:00 UTC is still the previous evening in Brasília.
	now := time.Date(2024, time.June, 10, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-06-09", Today(now).String())

	now = time.Date(2024, time.June, 10, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-06-10", Today(now).String())

	tokyo := time.FixedZone("JST", 9*60*60)
	now = time.Date(2024, time.June, 10, 8, 0, 0, 0, tokyo)
	assert.Equal(t, "2024-06-09", Today(now).String())
}

func TestDaysOverdue(t *testing.T) {
	due := MustParseDate("2024-01-10")

	assert.Equal(t, 0, DaysOverdue(due, MustParseDate("2024-01-05")))
	assert.Equal(t, 0, DaysOverdue(due, due))
	assert.Equal(t, 1, DaysOverdue(due, MustParseDate("2024-01-11")))
	assert.Equal(t, 31, DaysOverdue(due, MustParseDate("2024-02-10")))
	assert.Equal(t, 0, DaysOverdue(Date{}, MustParseDate("2024-02-10")))

	// Time of day in the stored value never leaks into the count.
	assert.Equal(t, 10, DaysOverdue(MustParseDate("2024-01-10T23:59:00Z"), MustParseDate("2024-01-20T00:01:00Z")))
}

func TestAddMonthsClampsMonthEnd(t *testing.T) {
	start := MustParseDate("2023-01-31")
	want := []string{"2023-01-31", "2023-02-28", "2023-03-31", "2023-04-30"}
	for i, w := range want {
		assert.Equal(t, w, start.AddMonths(i).String())
	}

	assert.Equal(t, "2024-02-29", MustParseDate("2024-01-31").AddMonths(1).String())
	assert.Equal(t, "2025-01-15", MustParseDate("2024-12-15").AddMonths(1).String())
	assert.Equal(t, "2024-11-30", MustParseDate("2024-12-31").AddMonths(-1).String())
}

func TestFormatDisplayDate(t *testing.T) {
	assert.Equal(t, "01/03/2024", FormatDisplayDate("2024-03-01T00:00:00.000Z"))
	assert.Equal(t, "31/12/2024", FormatDisplayDate("2024-12-31"))
	assert.Equal(t, "-", FormatDisplayDate(""))
	assert.Equal(t, "garbage", FormatDisplayDate("garbage"))
}

func TestDateJSON(t *testing.T) {
	var payload struct {
		Due  Date `json:"due"`
		Paid Date `json:"paid"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2024-05-01T12:00:00Z","paid":null}`), &payload))
	assert.Equal(t, "2024-05-01", payload.Due.String())
	assert.True(t, payload.Paid.IsZero())

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":"2024-05-01","paid":null}`, string(out))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2024-07-04"))
	assert.Equal(t, "2024-07-04", d.String())

	require.NoError(t, d.Scan([]byte("2024-07-05")))
	assert.Equal(t, "2024-07-05", d.String())

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	v, err := NewDate(2024, time.July, 6).Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-07-06", v)
}
