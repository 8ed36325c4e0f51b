package domain

import "time"

// SubmissionHandle identifies a signed action accepted by a signing provider.
// It is owned by the tracker that polls for its outcome; handles are not
// shared between operations.
type SubmissionHandle struct {
	ID          string // provider-assigned transaction id, opaque
	SubmittedAt time.Time
}

// OutcomeStatus classifies the terminal result of a tracked submission.
type OutcomeStatus int

const (
	// OutcomeConfirmed means the side-chain index recorded the transaction
	// with no contract errors.
	OutcomeConfirmed OutcomeStatus = iota

	// OutcomeFailed means the transaction was recorded but a contract error
	// was logged; Reason carries the first error.
	OutcomeFailed

	// OutcomeNotFound means the retry budget was exhausted before the index
	// reported the transaction.
	OutcomeNotFound
)

// String returns the status name.
func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeFailed:
		return "failed"
	case OutcomeNotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// TransactionOutcome is the single terminal result of tracking one submission.
// Once produced it is never re-queried or re-delivered.
type TransactionOutcome struct {
	TxID   string
	Status OutcomeStatus
	Reason string // populated for OutcomeFailed and OutcomeNotFound
}

// Confirmed reports whether the submission was accepted by the side chain.
func (o TransactionOutcome) Confirmed() bool {
	return o.Status == OutcomeConfirmed
}
