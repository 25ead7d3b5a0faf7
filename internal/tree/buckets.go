package tree

import (
	"time"

	"github.com/ostehost/command-central-sub001/internal/models"
)

// BucketFor places a millisecond timestamp into exactly one bucket relative
// to now, using calendar days in now's location. Future timestamps count as
// today. A non-positive timestamp is unknown.
func BucketFor(ts int64, now time.Time) models.TimeBucket {
	if ts <= 0 {
		return models.BucketUnknown
	}
	t := time.UnixMilli(ts).In(now.Location())
	y, m, d := now.Date()
	loc := now.Location()
	day := func(offset int) time.Time { return time.Date(y, m, d+offset, 0, 0, 0, 0, loc) }

	switch {
	case !t.Before(day(0)):
		return models.BucketToday
	case !t.Before(day(-1)):
		return models.BucketYesterday
	case !t.Before(day(-6)):
		return models.BucketLast7
	case !t.Before(day(-29)):
		return models.BucketLast30
	case !t.Before(time.Date(y, m, 1, 0, 0, 0, 0, loc)):
		return models.BucketThisMonth
	case !t.Before(time.Date(y, m-1, 1, 0, 0, 0, 0, loc)):
		return models.BucketLastMonth
	default:
		return models.BucketOlder
	}
}
