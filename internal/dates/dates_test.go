package dates

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFieldPriority(t *testing.T) {
	r := Default()

	got, err := r.ResolveField([]string{"Date", "meantemp", "timestamp"})
	require.NoError(t, err)
	assert.Equal(t, "timestamp", got, "timestamp outranks Date")

	got, err = r.ResolveField([]string{"humidity", "date", "Date"})
	require.NoError(t, err)
	assert.Equal(t, "date", got)

	_, err = r.ResolveField([]string{"when", "value"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoDateField))
}

func TestResolveFieldCustomCandidates(t *testing.T) {
	r := Resolver{Candidates: []string{"day"}, Formats: DefaultFormats()}
	got, err := r.ResolveField([]string{"date", "day"})
	require.NoError(t, err)
	assert.Equal(t, "day", got)
}

func TestParseDefaultFormats(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"1/10/2017 16:00:00", time.Date(2017, 1, 10, 16, 0, 0, 0, time.UTC)},
		{"1/10/2017 16:00", time.Date(2017, 1, 10, 16, 0, 0, 0, time.UTC)},
		{"2023-01-25 10:30:00", time.Date(2023, 1, 25, 10, 30, 0, 0, time.UTC)},
		{"2023-01-25 10:30", time.Date(2023, 1, 25, 10, 30, 0, 0, time.UTC)},
		{"2023-01-25T10:30:00", time.Date(2023, 1, 25, 10, 30, 0, 0, time.UTC)},
		{"2023-01-25T10:30:00Z", time.Date(2023, 1, 25, 10, 30, 0, 0, time.UTC)},
		{"2023-01-25", time.Date(2023, 1, 25, 0, 0, 0, 0, time.UTC)},
		{"01/25/2023", time.Date(2023, 1, 25, 0, 0, 0, 0, time.UTC)},
		{"25-01-2023", time.Date(2023, 1, 25, 0, 0, 0, 0, time.UTC)},
		{"Jan 25 2023 10:30:00", time.Date(2023, 1, 25, 10, 30, 0, 0, time.UTC)},
		{"25 Jan 2023 10:30:00", time.Date(2023, 1, 25, 10, 30, 0, 0, time.UTC)},
		{"Wednesday, January 25, 2023 10:30:00", time.Date(2023, 1, 25, 10, 30, 0, 0, time.UTC)},
		{"  2013-01-01 ", time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	r := Default()
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := r.Parse(c.in)
			require.NoError(t, err)
			assert.True(t, c.want.Equal(got), "got %s want %s", got, c.want)
		})
	}
}

func TestParseUnparsedIsTyped(t *testing.T) {
	r := Default()
	for _, in := range []string{"", "yesterday", "2023/13/45", "13/45/2023"} {
		_, err := r.Parse(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrUnparsed), in)
		var pe *ParseError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, in, pe.Value)
	}
}

func TestParseNarrowFormats(t *testing.T) {
	r := Resolver{Candidates: DefaultCandidates(), Formats: []string{"2006-01-02"}}
	_, err := r.Parse("01/25/2023")
	assert.ErrorIs(t, err, ErrUnparsed)
	assert.True(t, r.CanParse("2023-01-25"))
}

func TestParseDeterministic(t *testing.T) {
	r := Default()
	a, errA := r.Parse("3/4/2015")
	b, errB := r.Parse("3/4/2015")
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
	assert.Equal(t, time.March, a.Month())
}

func TestYearsBetween(t *testing.T) {
	d := func(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, time.UTC) }
	assert.Equal(t, 4, YearsBetween(d(2013, 1, 1), d(2017, 12, 31)))
	assert.Equal(t, 4, YearsBetween(d(2013, 1, 1), d(2017, 1, 1)))
	assert.Equal(t, 3, YearsBetween(d(2013, 1, 2), d(2017, 1, 1)))
	assert.Equal(t, 1, YearsBetween(d(2020, 2, 29), d(2021, 2, 28)), "Feb 29 clamps to Feb 28")
	assert.Equal(t, 0, YearsBetween(d(2020, 2, 29), d(2021, 2, 27)))
	assert.Equal(t, 3, YearsBetween(d(2020, 2, 29), d(2024, 2, 28)))
	assert.Equal(t, 4, YearsBetween(d(2020, 2, 29), d(2024, 2, 29)))
	assert.Equal(t, 0, YearsBetween(d(2015, 1, 31), d(2015, 2, 28)))
	assert.Equal(t, -1, YearsBetween(d(2021, 2, 28), d(2020, 2, 29)))
	assert.Equal(t, 0, YearsBetween(time.Date(2015, 5, 5, 12, 0, 0, 0, time.UTC), time.Date(2016, 5, 5, 11, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, YearsBetween(d(2020, 2, 29), d(2021, 3, 1)))
	assert.Equal(t, 0, YearsBetween(d(2015, 5, 5), d(2015, 5, 5)))
}
