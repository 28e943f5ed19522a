package convert

import (
	"database/sql/driver"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-03-09 was a Saturday, so weekday and day-of-month differ.
var moment = time.Date(2024, time.March, 9, 14, 5, 6, 789_000_000, time.UTC)

func TestConvertDate(t *testing.T) {
	got := Convert(moment, "DATE")
	assert.Equal(t, Date{Day: 9, Month: 3, Year: 2024}, got)

	v, err := got.(driver.Valuer).Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", v)
}

func TestConvertDateTime(t *testing.T) {
	want := DateTime{
		Date:              Date{Day: 9, Month: 3, Year: 2024},
		Hours:             14,
		Minutes:           5,
		Seconds:           6,
		FractionalSeconds: 789,
	}
	for _, typ := range []string{"datetime", "timestamp", "TIMESTAMP WITHOUT TIME ZONE", "smalldatetime"} {
		assert.Equal(t, want, Convert(moment, typ), typ)
	}

	v, err := want.Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09 14:05:06.789", v)
	assert.True(t, moment.Equal(want.Time(time.UTC)))
}

func TestConvertPassThrough(t *testing.T) {
	assert.Equal(t, "Smith", Convert("Smith", "varchar"))
	assert.Equal(t, moment, Convert(moment, "varchar"))
	assert.Equal(t, "2024-03-09", Convert("2024-03-09", "date"))
	assert.Nil(t, Convert(nil, "date"))

	var missing *time.Time
	assert.Nil(t, Convert(missing, "timestamp"))
	assert.Equal(t, DateOf(moment), Convert(&moment, "date"))
}

func TestDateRoundTrip(t *testing.T) {
	d := DateOf(moment)
	assert.Equal(t, time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC), d.Time(time.UTC))
	assert.Equal(t, "2024-03-09", d.String())
}
