package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(true, threshold, time.Minute, 30*time.Second, nil)
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreakerTripsAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())
	assert.Equal(t, "open", cb.State())
}

func TestCircuitBreakerWindowResetsCount(t *testing.T) {
	cb, clock := newTestBreaker(2)

	cb.RecordFailure()
	clock.advance(2 * time.Minute)
	assert.False(t, cb.RecordFailure())

	count, _, _, _ := cb.GetState()
	assert.Equal(t, 1, count)
}

func TestCircuitBreakerHalfOpensAfterTimeout(t *testing.T) {
	cb, clock := newTestBreaker(1)

	assert.True(t, cb.RecordFailure())
	clock.advance(31 * time.Second)
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreakerSuccessCloses(t *testing.T) {
	cb, _ := newTestBreaker(1)
	cb.RecordFailure()
	cb.RecordSuccess()

	assert.False(t, cb.IsOpen())
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb := NewCircuitBreaker(false, 1, time.Minute, time.Minute, nil)
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
	assert.Equal(t, "disabled", cb.State())
}
