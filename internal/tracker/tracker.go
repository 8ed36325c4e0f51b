// Package tracker resolves the outcome of a submitted side-chain transaction
// by polling the index with a bounded retry budget. One submission id yields
// exactly one terminal outcome.
package tracker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/steem-driver/steem-engine-dex/internal/domain"
	"github.com/steem-driver/steem-engine-dex/internal/engine"
)

// Default retry behavior, matching the side-chain's observed confirmation lag.
const (
	DefaultAttempts = 3
	DefaultDelay    = 5 * time.Second
)

// NotFoundReason is the user-facing reason when the retry budget is exhausted.
const NotFoundReason = "Transaction not found."

// Source looks up a transaction on the side-chain index. A nil info without
// error means the index has not seen the id yet.
type Source interface {
	TransactionInfo(ctx context.Context, txID string) (*engine.TransactionInfo, error)
}

// Tracker polls a Source for transaction outcomes.
type Tracker struct {
	source   Source
	attempts int
	policy   Policy
	logger   *log.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures Tracker.
type Option func(*Tracker)

// WithAttempts sets the poll budget.
func WithAttempts(n int) Option {
	return func(t *Tracker) {
		t.attempts = n
	}
}

// WithPolicy sets the backoff policy between polls.
func WithPolicy(p Policy) Option {
	return func(t *Tracker) {
		t.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithSleep replaces the inter-poll wait, for deterministic tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(t *Tracker) {
		t.sleep = sleep
	}
}

// New creates a Tracker with the default fixed 3×5s budget.
func New(source Source, opts ...Option) *Tracker {
	t := &Tracker{
		source:   source,
		attempts: DefaultAttempts,
		policy:   Fixed{Interval: DefaultDelay},
		logger:   log.Default(),
		sleep:    ctxSleep,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track polls until the transaction resolves or the budget runs out.
// State machine: Pending -> Confirmed | Failed | NotFound. The returned error
// is non-nil only when ctx ends the poll early; every other path produces a
// terminal outcome exactly once.
func (t *Tracker) Track(ctx context.Context, txID string) (domain.TransactionOutcome, error) {
	for attempt := 1; attempt <= t.attempts; attempt++ {
		info, err := t.source.TransactionInfo(ctx, txID)
		if err != nil {
			if ctx.Err() != nil {
				return domain.TransactionOutcome{}, ctx.Err()
			}
			// Transient read failure counts against the budget like a miss.
			t.logger.Printf("tracker: poll %d/%d for %s failed: %v", attempt, t.attempts, txID, err)
		} else if info != nil {
			return classify(txID, info, t.logger), nil
		}

		if attempt < t.attempts {
			if err := t.sleep(ctx, t.policy.Delay(attempt)); err != nil {
				return domain.TransactionOutcome{}, err
			}
		}
	}

	return domain.TransactionOutcome{
		TxID:   txID,
		Status: domain.OutcomeNotFound,
		Reason: NotFoundReason,
	}, nil
}

// transactionLogs is the parsed shape of the info's embedded logs string.
type transactionLogs struct {
	Errors []string `json:"errors"`
}

// classify turns an index record into a terminal outcome: the first logged
// contract error fails the transaction, otherwise it is confirmed.
func classify(txID string, info *engine.TransactionInfo, logger *log.Logger) domain.TransactionOutcome {
	if info.Logs != "" {
		var logs transactionLogs
		if err := json.Unmarshal([]byte(info.Logs), &logs); err != nil {
			// Unreadable logs are not a contract failure.
			logger.Printf("tracker: unparseable logs for %s: %v", txID, err)
		} else if len(logs.Errors) > 0 {
			return domain.TransactionOutcome{
				TxID:   txID,
				Status: domain.OutcomeFailed,
				Reason: logs.Errors[0],
			}
		}
	}

	return domain.TransactionOutcome{
		TxID:   txID,
		Status: domain.OutcomeConfirmed,
	}
}

// ctxSleep waits d or until ctx is cancelled.
func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
