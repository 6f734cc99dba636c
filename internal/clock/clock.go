// Package clock stamps messages, outcomes and journal records.
package clock

import "time"

// NowFunc returns current time; tests may replace it
var NowFunc = time.Now

// Now returns current time
func Now() time.Time { return NowFunc() }

// Since returns time elapsed since t
func Since(t time.Time) time.Duration { return Now().Sub(t) }
