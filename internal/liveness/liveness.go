// Package liveness decides whether a device is online from the last time
// it was heard from.
package liveness

import "time"

// Threshold is how recent a last-seen timestamp must be for the device to
// count as online.
const Threshold = 60 * time.Second

// Online reports whether lastSeen lies strictly within threshold of now.
// A nil lastSeen means the device was never heard from.
func Online(lastSeen *time.Time, now time.Time, threshold time.Duration) bool {
	if lastSeen == nil {
		return false
	}
	return now.Sub(*lastSeen) < threshold
}

// IsOnline applies the default Threshold.
func IsOnline(lastSeen *time.Time, now time.Time) bool {
	return Online(lastSeen, now, Threshold)
}
