package circuit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newBreaker(c *clock, opts ...Option) *Breaker {
	return New("attribute-store", append([]Option{WithClock(c.now)}, opts...)...)
}

func TestDefaults(t *testing.T) {
	b := New("attribute-store")
	assert.Equal(t, "attribute-store", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 5, b.failureThreshold)
	assert.Equal(t, 2, b.successThreshold)
	assert.Equal(t, 30*time.Second, b.cooldown)
	assert.True(t, b.Allow())
}

func TestOpensOnConsecutiveFailures(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	b := newBreaker(c, WithFailureThreshold(3))

	for i := 0; i < 2; i++ {
		fallback, change := b.RecordFailure()
		assert.False(t, fallback)
		assert.False(t, change.Opened)
	}
	fallback, change := b.RecordFailure()
	assert.True(t, fallback)
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())
	assert.Equal(t, "open", b.State().String())
}

func TestSuccessBreaksTheFailureRun(t *testing.T) {
	b := newBreaker(&clock{}, WithFailureThreshold(2))
	b.RecordFailure()
	b.RecordSuccess()
	_, change := b.RecordFailure()
	assert.False(t, change.Opened, "failures must be consecutive")
	assert.False(t, b.IsOpen())
}

func TestOpenCircuitAllowsProbeAfterCooldown(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	b := newBreaker(c, WithFailureThreshold(1), WithCooldown(time.Minute))
	b.RecordFailure()

	assert.False(t, b.Allow())
	c.advance(59 * time.Second)
	assert.False(t, b.Allow())
	c.advance(time.Second)
	assert.True(t, b.Allow(), "probe once the cooldown has elapsed")
}

func TestFailedProbeRestartsCooldown(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	b := newBreaker(c, WithFailureThreshold(1), WithCooldown(time.Minute))
	b.RecordFailure()
	c.advance(time.Minute)
	require.True(t, b.Allow())

	fallback, change := b.RecordFailure()
	assert.True(t, fallback)
	assert.False(t, change.Opened, "already open")
	assert.False(t, b.Allow())
	c.advance(time.Minute)
	assert.True(t, b.Allow())
}

func TestClosesAfterSuccessfulProbes(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	b := newBreaker(c, WithFailureThreshold(1), WithSuccessThreshold(2), WithCooldown(time.Second))
	b.RecordFailure()
	c.advance(time.Second)

	primary, change := b.RecordSuccess()
	assert.False(t, primary)
	assert.False(t, change.Closed)

	primary, change = b.RecordSuccess()
	assert.True(t, primary)
	assert.True(t, change.Closed)
	assert.Equal(t, StateClosed, b.State())
}

func TestProbeFailureResetsSuccessRun(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	b := newBreaker(c, WithFailureThreshold(1), WithSuccessThreshold(2), WithCooldown(time.Second))
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	_, change := b.RecordSuccess()
	assert.False(t, change.Closed)
	assert.True(t, b.IsOpen())
}

func TestInvalidOptionsKeepDefaults(t *testing.T) {
	b := New("x", WithFailureThreshold(0), WithSuccessThreshold(-1), WithCooldown(0), WithClock(nil))
	assert.Equal(t, 5, b.failureThreshold)
	assert.Equal(t, 2, b.successThreshold)
	assert.Equal(t, 30*time.Second, b.cooldown)
	assert.NotNil(t, b.now)
}

func TestConcurrentFailuresOpenOnce(t *testing.T) {
	b := New("x", WithFailureThreshold(10))
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, change := b.RecordFailure(); change.Opened {
				mu.Lock()
				opened++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, opened)
}
