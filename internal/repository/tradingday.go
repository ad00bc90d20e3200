package repository

import "time"

// DayCutoff is the UTC offset at which one trading day rolls into the next.
// Treasury history is bucketed by UTC calendar day.
const DayCutoff = 0 * time.Hour

// TradingDay returns the YYYY-MM-DD bucket a trade timestamp falls into.
func TradingDay(ts time.Time) string {
	return TradingDayAt(ts, DayCutoff)
}

// TradingDayAt buckets ts into days that start at cutoff past UTC midnight.
func TradingDayAt(ts time.Time, cutoff time.Duration) string {
	return ts.UTC().Add(-cutoff).Format("2006-01-02")
}

func TradingDayNow() string {
	return TradingDay(time.Now())
}
