package etl

import (
	"time"

	"github.com/shopmetrics/warehousectl/internal/warehouse"
)

// DateRowFor derives the calendar attributes for one date. Day-of-week is
// ISO numbered (1=Monday .. 7=Sunday); week is the ISO week number.
func DateRowFor(t time.Time) warehouse.DateRow {
	d := warehouse.Day(t)
	month := int(d.Month())
	_, week := d.ISOWeek()

	dow := int(d.Weekday())
	if dow == 0 {
		dow = 7
	}

	return warehouse.DateRow{
		FullDate:   d,
		Year:       d.Year(),
		Quarter:    (month + 2) / 3,
		Month:      month,
		MonthName:  d.Month().String(),
		Week:       week,
		DayOfMonth: d.Day(),
		DayOfWeek:  dow,
		DayName:    d.Weekday().String(),
		IsWeekend:  dow >= 6,
	}
}

// GenerateDateRange produces one date row per calendar day in the inclusive
// [start, end] range. Idempotence is the store's job: EnsureDates skips
// dates already present.
func GenerateDateRange(start, end time.Time) ([]warehouse.DateRow, error) {
	startDay := warehouse.Day(start)
	endDay := warehouse.Day(end)

	if startDay.After(endDay) {
		return nil, &ValidationError{Reason: "date range start is after end"}
	}

	var rows []warehouse.DateRow
	for d := startDay; !d.After(endDay); d = d.AddDate(0, 0, 1) {
		rows = append(rows, DateRowFor(d))
	}
	return rows, nil
}
