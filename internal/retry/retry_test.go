package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassOK},
		{"tagged transient", Transient(errors.New("provider hiccup")), ClassTransient},
		{"tagged fatal", Fatal(errors.New("invalid prompt")), ClassFatal},
		{"tag wins over heuristic", Fatal(errors.New("timeout")), ClassFatal},
		{"wrapped tag survives", fmt.Errorf("segment 3: %w", Transient(errors.New("x"))), ClassTransient},
		{"heuristic timeout", errors.New("request timed out"), ClassTransient},
		{"heuristic rate limit", errors.New("Rate Limit exceeded"), ClassTransient},
		{"heuristic 503", errors.New("unexpected status 503"), ClassTransient},
		{"heuristic connection reset", errors.New("read: connection reset by peer"), ClassTransient},
		{"opaque is fatal", errors.New("content policy violation"), ClassFatal},
		{"context canceled", context.Canceled, ClassFatal},
		{"context deadline", context.DeadlineExceeded, ClassFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestPolicyDelay(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, 16*time.Second, p.Delay(4))
	assert.Equal(t, 30*time.Second, p.Delay(5)) // capped
	assert.Equal(t, 30*time.Second, p.Delay(10))
}

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
}

func TestDo_TransientThenSuccess(t *testing.T) {
	calls := 0
	retries := 0

	err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("flaky"))
		}
		return nil
	}, func(attempt int, err error) {
		retries++
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestDo_FatalStopsImmediately(t *testing.T) {
	calls := 0

	err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Fatal(errors.New("bad request"))
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ClassFatal, Classify(err))
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0

	err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Transient(errors.New("still down"))
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour, Multiplier: 2, MaxDelay: time.Hour}
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(ctx context.Context) error {
			return Transient(errors.New("x"))
		}, nil)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancel")
	}
}
