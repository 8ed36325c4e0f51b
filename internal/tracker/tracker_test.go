package tracker

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steem-driver/steem-engine-dex/internal/domain"
	"github.com/steem-driver/steem-engine-dex/internal/engine"
)

// scriptedSource replays one response per poll attempt.
type scriptedSource struct {
	infos []*engine.TransactionInfo
	errs  []error
	polls int
}

func (s *scriptedSource) TransactionInfo(_ context.Context, txID string) (*engine.TransactionInfo, error) {
	i := s.polls
	s.polls++
	var info *engine.TransactionInfo
	if i < len(s.infos) {
		info = s.infos[i]
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return info, err
}

func newTestTracker(source Source, opts ...Option) (*Tracker, *[]time.Duration) {
	waits := &[]time.Duration{}
	base := []Option{
		WithLogger(log.New(io.Discard, "", 0)),
		WithSleep(func(_ context.Context, d time.Duration) error {
			*waits = append(*waits, d)
			return nil
		}),
	}
	return New(source, append(base, opts...)...), waits
}

func TestTrack_NotFoundAfterBudget(t *testing.T) {
	source := &scriptedSource{}
	tr, waits := newTestTracker(source)

	outcome, err := tr.Track(context.Background(), "missing")
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeNotFound, outcome.Status)
	assert.Equal(t, "Transaction not found.", outcome.Reason)
	assert.Equal(t, 3, source.polls, "exactly the budgeted attempts, not more")
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, *waits,
		"fixed delay between attempts, none after the last")
}

func TestTrack_FailedOnSecondAttemptStopsPolling(t *testing.T) {
	source := &scriptedSource{
		infos: []*engine.TransactionInfo{
			nil,
			{TxID: "tx-1", Logs: `{"errors":["insufficient balance"]}`},
		},
	}
	tr, _ := newTestTracker(source)

	outcome, err := tr.Track(context.Background(), "tx-1")
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFailed, outcome.Status)
	assert.Equal(t, "insufficient balance", outcome.Reason)
	assert.Equal(t, 2, source.polls, "terminal outcome must not trigger a 3rd poll")
}

func TestTrack_Confirmed(t *testing.T) {
	source := &scriptedSource{
		infos: []*engine.TransactionInfo{
			{TxID: "tx-2", Logs: `{"events":[{"contract":"tokens"}]}`},
		},
	}
	tr, _ := newTestTracker(source)

	outcome, err := tr.Track(context.Background(), "tx-2")
	require.NoError(t, err)

	assert.True(t, outcome.Confirmed())
	assert.Empty(t, outcome.Reason)
	assert.Equal(t, 1, source.polls)
}

func TestTrack_EmptyLogsConfirm(t *testing.T) {
	source := &scriptedSource{
		infos: []*engine.TransactionInfo{{TxID: "tx-3"}},
	}
	tr, _ := newTestTracker(source)

	outcome, err := tr.Track(context.Background(), "tx-3")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConfirmed, outcome.Status)
}

func TestTrack_ReadErrorsConsumeBudget(t *testing.T) {
	source := &scriptedSource{
		errs: []error{
			errors.New("connection reset"),
			errors.New("connection reset"),
			errors.New("connection reset"),
		},
	}
	tr, _ := newTestTracker(source)

	outcome, err := tr.Track(context.Background(), "tx-4")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNotFound, outcome.Status)
	assert.Equal(t, 3, source.polls)
}

func TestTrack_ContextCancelledDuringWait(t *testing.T) {
	source := &scriptedSource{}
	ctx, cancel := context.WithCancel(context.Background())

	tr := New(source,
		WithLogger(log.New(io.Discard, "", 0)),
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)

	_, err := tr.Track(ctx, "tx-5")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, source.polls, "cancellation must stop the poll loop")
}

func TestFixedPolicy(t *testing.T) {
	p := Fixed{Interval: 5 * time.Second}
	assert.Equal(t, 5*time.Second, p.Delay(1))
	assert.Equal(t, 5*time.Second, p.Delay(7))
}

func TestExponentialPolicy(t *testing.T) {
	p := Exponential{Initial: time.Second, Max: 10 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(4))
	assert.Equal(t, 10*time.Second, p.Delay(6), "delay is capped at Max")
}

func TestJitteredPolicy(t *testing.T) {
	p := Jittered{Base: Fixed{Interval: 10 * time.Second}, Fraction: 0.2}
	for i := 0; i < 50; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 8*time.Second)
		assert.LessOrEqual(t, d, 12*time.Second)
	}
}
