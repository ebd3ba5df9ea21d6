package orchestrator

import "time"

// periodRange maps a spoken period keyword onto [from, to) bounds in UTC.
func periodRange(period string, now time.Time) (time.Time, time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch period {
	case "ayer":
		return today.AddDate(0, 0, -1), today
	case "semana":
		return today.AddDate(0, 0, -6), today.AddDate(0, 0, 1)
	case "mes":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
	return today, today.AddDate(0, 0, 1)
}
