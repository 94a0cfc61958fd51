package dimensions

import (
	"context"
	"fmt"
	"time"

	"awdw/internal/storage"
)

// DateTable is the calendar dimension table.
const DateTable = "dim_date"

var dateColumns = []string{"date_key", "full_date", "year", "quarter", "month", "day", "week", "day_of_week", "is_weekend"}

// Day is one calendar row.
type Day struct {
	Key       int64
	Date      time.Time
	Year      int
	Quarter   int
	Month     int
	Day       int
	Week      int // ISO 8601 week
	DayOfWeek int // ISO 8601, Monday = 1
	Weekend   bool
}

// DateKey returns t's yyyymmdd key.
func DateKey(t time.Time) int64 {
	return int64(t.Year()*10000 + int(t.Month())*100 + t.Day())
}

// NewDay builds the calendar row for the date part of t.
func NewDay(t time.Time) Day {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	_, week := d.ISOWeek()
	dow := int(d.Weekday())
	if dow == 0 {
		dow = 7
	}
	return Day{
		Key:       DateKey(d),
		Date:      d,
		Year:      d.Year(),
		Quarter:   (int(d.Month())-1)/3 + 1,
		Month:     int(d.Month()),
		Day:       d.Day(),
		Week:      week,
		DayOfWeek: dow,
		Weekend:   dow >= 6,
	}
}

// Calendar returns one Day per date from start to end inclusive.
func Calendar(start, end time.Time) []Day {
	var out []Day
	for d := NewDay(start).Date; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, NewDay(d))
	}
	return out
}

// LoadDates inserts the calendar from start to end, keeping existing rows.
// It returns the number of days considered.
func (l *Loader) LoadDates(ctx context.Context, start, end time.Time) (int, error) {
	if end.Before(start) {
		return 0, fmt.Errorf("%s: end %s before start %s", DateTable, end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	stmt := l.Sink.Dialect().Upsert(storage.Qualify(l.Schema, DateTable), dateColumns, []string{"date_key"}, storage.DoNothing)
	days := Calendar(start, end)
	for _, d := range days {
		if _, err := l.Sink.Execute(ctx, stmt,
			d.Key, d.Date, d.Year, d.Quarter, d.Month, d.Day, d.Week, d.DayOfWeek, d.Weekend,
		); err != nil {
			return 0, fmt.Errorf("%s: insert %d: %w", DateTable, d.Key, err)
		}
	}
	return len(days), nil
}
