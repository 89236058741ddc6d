package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := New(cfg)
	b.nowFn = clock.Now
	return b, clock
}

func TestNew_Defaults(t *testing.T) {
	b := New(Config{})
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 5, b.failureThreshold)
	assert.Equal(t, 2, b.successThreshold)
	assert.Equal(t, 30*time.Second, b.openTimeout)
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, OpenTimeout: time.Minute})

	b.RecordFailure()
	b.RecordFailure()
	require.NoError(t, b.Allow(), "should still be closed below threshold")

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	require.NoError(t, b.Allow())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenLifecycle(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Second})

	b.RecordFailure()
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	clock.Advance(2 * time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State(), "not yet at success threshold")
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenReopensOnFailure(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: time.Second})

	b.RecordFailure()
	clock.Advance(2 * time.Second)
	require.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	clock.Advance(500 * time.Millisecond)
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen, "reopening restarts the open period")
}

func TestBreaker_DoCountsOnlyFailures(t *testing.T) {
	terminal := errors.New("invalid abi")
	b, _ := newTestBreaker(Config{
		FailureThreshold: 2,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, terminal) },
	})

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, b.Do(func() error { return terminal }), terminal)
	}
	assert.Equal(t, StateClosed, b.State())

	boom := errors.New("bridge unavailable")
	_ = b.Do(func() error { return boom })
	_ = b.Do(func() error { return boom })
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	var transitions []State
	b, clock := newTestBreaker(Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OpenTimeout:      time.Second,
		OnStateChange:    func(_, to State) { transitions = append(transitions, to) },
	})

	b.RecordFailure()
	b.RecordFailure()
	clock.Advance(2 * time.Second)
	_ = b.Allow()
	b.RecordSuccess()

	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestBreaker_ConcurrentUse(t *testing.T) {
	b := New(Config{FailureThreshold: 10, SuccessThreshold: 5, OpenTimeout: time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				switch id % 4 {
				case 0:
					b.RecordSuccess()
				case 1:
					b.RecordFailure()
				case 2:
					_ = b.Allow()
				case 3:
					_ = b.State()
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Contains(t, []State{StateClosed, StateOpen, StateHalfOpen}, b.State())
}
