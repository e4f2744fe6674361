package domain

import (
	"math"
	"strconv"
	"time"
)

// Instant is an event-time timestamp in microseconds since the Unix epoch.
type Instant int64

const (
	// MinInstant is the watermark every node starts from.
	MinInstant Instant = math.MinInt64
	// EndOfTime is the terminal watermark: no further output will be produced.
	EndOfTime Instant = math.MaxInt64
	// MaxInstant is the latest timestamp an element may carry.
	MaxInstant Instant = EndOfTime - 1
)

// InstantFromTime converts a wall-clock time to an Instant.
func InstantFromTime(t time.Time) Instant {
	return Instant(t.UnixMicro())
}

// Time converts the instant back to a time.Time. The sentinels map to the
// extremes representable by UnixMicro.
func (i Instant) Time() time.Time {
	return time.UnixMicro(int64(i)).UTC()
}

// IsTerminal reports whether the instant is the end-of-time sentinel.
func (i Instant) IsTerminal() bool {
	return i == EndOfTime
}

// Before reports whether i is strictly earlier than other.
func (i Instant) Before(other Instant) bool {
	return i < other
}

func (i Instant) String() string {
	switch i {
	case MinInstant:
		return "-inf"
	case EndOfTime:
		return "end-of-time"
	default:
		return strconv.FormatInt(int64(i), 10)
	}
}

// MinOf returns the earliest of the given instants, or EndOfTime when none are given.
func MinOf(instants ...Instant) Instant {
	out := EndOfTime
	for _, i := range instants {
		if i < out {
			out = i
		}
	}
	return out
}
