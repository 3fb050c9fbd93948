// Package snowflake converts chat-platform snowflake ids to and from
// Unix millisecond timestamps. Snowflakes are 64-bit ids whose top 42
// bits encode milliseconds since the platform epoch
// (2015-01-01T00:00:00Z).
package snowflake

import (
	"fmt"
	"strconv"
	"time"
)

// Epoch is the platform epoch in Unix milliseconds.
const Epoch int64 = 1420070400000

// TimestampMS extracts the Unix millisecond timestamp from a snowflake.
func TimestampMS(id string) (int64, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse snowflake %q: %w", id, err)
	}
	return int64(n>>22) + Epoch, nil
}

// FromTimestampMS builds a snowflake whose timestamp component is ms.
// The worker, process and increment bits are zero, which makes the
// result suitable as an exclusive lower bound for history queries.
func FromTimestampMS(ms int64) string {
	if ms < Epoch {
		ms = Epoch
	}
	return strconv.FormatUint(uint64(ms-Epoch)<<22, 10)
}

// Time converts a snowflake to a UTC time.
func Time(id string) (time.Time, error) {
	ms, err := TimestampMS(id)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
