// Package signing abstracts the two external signing providers — the local
// keychain extension and the redirect pop-up signer — behind one Gateway
// contract. The package never signs anything itself; it hands an action
// payload to a provider and reports back a submission id or a failure.
package signing

import (
	"context"
	"errors"

	"github.com/steem-driver/steem-engine-dex/internal/domain"
)

// Authority is the signing strength requested for an action. Fund-moving
// actions require active authority; claim-type actions get by with posting.
type Authority string

const (
	AuthorityPosting Authority = "posting"
	AuthorityActive  Authority = "active"
)

// Signing failures. Rejection and a missing identity abort the operation
// immediately; a submit is never retried blindly.
var (
	// ErrRejected means the user cancelled or the provider refused to sign.
	ErrRejected = errors.New("signing request rejected")

	// ErrNotLoggedIn means no identity is available. Callers must force a
	// re-authentication flow rather than proceeding.
	ErrNotLoggedIn = errors.New("no identity available")

	// ErrProviderUnavailable means the provider capability is absent or the
	// hand-off to it failed before anything was signed.
	ErrProviderUnavailable = errors.New("signing provider unavailable")

	// ErrTimeout means the redirect signer never reported completion within
	// the configured wait.
	ErrTimeout = errors.New("signing callback timed out")
)

// Payload is the contract action submitted to the signing layer. Field names
// and nesting are part of the wire contract with the side chain.
type Payload struct {
	ContractName    string `json:"contractName"`
	ContractAction  string `json:"contractAction"`
	ContractPayload any    `json:"contractPayload"`
}

// Request is one signing request: who signs, with what authority, and what
// custom-json operation carries the action.
type Request struct {
	Account   string
	Authority Authority
	ID        string // custom-json operation id (the chain id for contract actions)
	Payload   any    // marshalled into the custom-json body
	Prompt    string // human-readable description shown by the signer
}

// Gateway submits a signing request to whichever provider backs it and
// returns a handle for outcome tracking, or a signing error. Callers never
// branch on provider identity.
type Gateway interface {
	Submit(ctx context.Context, req Request) (*domain.SubmissionHandle, error)
}
