// Copyright DAQCore Project contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package metering

import (
	"time"
)

// Monotime returns the current time in nanoseconds for latency accounting.
// Wall and monotonic clocks can drift apart inside containers
// (https://github.com/golang/go/issues/27090), so all accumulators are
// computed from differences of this single source.
func Monotime() int64 {
	return time.Now().UnixNano()
}

// Micros converts a nanosecond interval to microseconds, the unit used by
// every latency accumulator reported through monitoring.
func Micros(intervalNs int64) int64 {
	return intervalNs / int64(time.Microsecond)
}
