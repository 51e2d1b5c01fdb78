package failuredetector

import "time"

// LivenessWatch is the follower-side record of when the current leader
// was last heard from. Every Heartbeat (and every Coordinator
// announcement, which also counts as proof of life) touches it.
type LivenessWatch struct {
	lastHeartbeat time.Time
}

// NewLivenessWatch starts the watch as of now, so a node that has just
// accepted a leader does not immediately appear to have timed out.
func NewLivenessWatch(now time.Time) *LivenessWatch {
	return &LivenessWatch{lastHeartbeat: now}
}

// Touch records proof of life at now.
func (l *LivenessWatch) Touch(now time.Time) {
	l.lastHeartbeat = now
}

// Expired reports whether more than timeout has elapsed since the last
// Touch.
func (l *LivenessWatch) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(l.lastHeartbeat) > timeout
}

// Since returns how long it has been since the last Touch.
func (l *LivenessWatch) Since(now time.Time) time.Duration {
	return now.Sub(l.lastHeartbeat)
}
