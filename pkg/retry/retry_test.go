package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig() Config {
	return Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestDoSucceedsImmediately(t *testing.T) {
	calls := 0
	err := Do(fastConfig(), func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoZeroAttemptsStillCallsOnce(t *testing.T) {
	sentinel := errors.New("down")
	calls := 0
	err := Do(Config{MaxAttempts: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}, func() error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel, "zero attempts must not report success without calling fn")
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("always down")
	calls := 0
	err := Do(fastConfig(), func() error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}
