package domain

import (
	"strconv"
	"sync/atomic"
	"time"
)

var lastTaskStamp int64

// nextTaskStamp returns a strictly increasing nanosecond timestamp, so ids
// minted in the same instant never collide.
func nextTaskStamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTaskStamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTaskStamp, last, now) {
			return now
		}
	}
}

// NewTaskID mints a time-based task id. Ids are assigned once at creation and
// never reused.
func NewTaskID() string {
	return strconv.FormatInt(nextTaskStamp(), 36)
}
