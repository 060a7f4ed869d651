package utils

import (
	"time"
)

// UnixTimeToTime converts a Unix timestamp to a UTC time. Zero maps to the
// zero time so missing timestamps stay recognisable.
func UnixTimeToTime(unixTime int64) time.Time {
	if unixTime == 0 {
		return time.Time{}
	}
	return time.Unix(unixTime, 0).UTC()
}
