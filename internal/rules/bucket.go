// internal/rules/bucket.go
package rules

import "time"

// Floor returns the start of the bucket containing t. t is converted to UTC,
// seconds are dropped and the minute is rounded down to a multiple of the
// bucket length. bucket must be a whole number of minutes dividing an hour.
func Floor(t time.Time, bucket time.Duration) time.Time {
	t = t.UTC()
	m := int(bucket / time.Minute)
	if m <= 0 {
		m = 1
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), (t.Minute()/m)*m, 0, 0, time.UTC)
}

// Window returns the half-open interval [start, start+bucket) containing t.
func Window(t time.Time, bucket time.Duration) (start, end time.Time) {
	start = Floor(t, bucket)
	return start, start.Add(bucket)
}
