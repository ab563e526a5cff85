package convo

import (
	"math"
	"time"
)

const (
	// DefaultBufferWindow is the quiet period after the last fragment
	// before a buffered turn is eligible to flush.
	DefaultBufferWindow = 2500 * time.Millisecond

	// DefaultPollTimeout is the long-poll timeout in seconds used when no
	// chat has anything buffered.
	DefaultPollTimeout = 25
)

// SelectPollTimeout picks the long-poll timeout (in seconds) for the next
// blocking wait. While any chat is awaiting a flush the loop must wake up
// within roughly one buffer window to re-check the flush condition, so the
// timeout shrinks to ceil(window) seconds (never below one, never above the
// default). With nothing buffered the transport is free to block for the
// full default to keep request volume down.
func SelectPollTimeout(anyAwaiting bool, defaultTimeout int, window time.Duration) int {
	if !anyAwaiting {
		return defaultTimeout
	}
	short := int(math.Ceil(window.Seconds()))
	if short < 1 {
		short = 1
	}
	if defaultTimeout < short {
		return defaultTimeout
	}
	return short
}
