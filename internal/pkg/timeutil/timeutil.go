package timeutil

import "time"

// NowMilli is the clock used for activity and cache timestamps.
func NowMilli() int64 {
	return time.Now().UnixMilli()
}
