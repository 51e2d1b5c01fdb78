package failuredetector_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clustervote/clustervote/internal/failuredetector"
)

func TestLivenessWatchExpired(t *testing.T) {
	start := time.Unix(1000, 0)
	l := failuredetector.NewLivenessWatch(start)

	assert.False(t, l.Expired(start.Add(1*time.Second), 5*time.Second))
	assert.True(t, l.Expired(start.Add(6*time.Second), 5*time.Second))
}

func TestLivenessWatchTouchResetsClock(t *testing.T) {
	start := time.Unix(1000, 0)
	l := failuredetector.NewLivenessWatch(start)

	touchedAt := start.Add(4 * time.Second)
	l.Touch(touchedAt)

	assert.False(t, l.Expired(touchedAt.Add(4*time.Second), 5*time.Second))
	assert.True(t, l.Expired(touchedAt.Add(6*time.Second), 5*time.Second))
}

func TestLivenessWatchSince(t *testing.T) {
	start := time.Unix(1000, 0)
	l := failuredetector.NewLivenessWatch(start)
	assert.Equal(t, 3*time.Second, l.Since(start.Add(3*time.Second)))
}
