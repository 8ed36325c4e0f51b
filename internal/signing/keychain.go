package signing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/steem-driver/steem-engine-dex/internal/domain"
)

// Keychain is the local signing extension capability. When present it signs
// custom-json operations in place and returns the broadcast result without
// leaving the page.
type Keychain interface {
	// Available reports whether the extension is installed and reachable.
	Available() bool

	// RequestCustomJSON asks the extension to sign and broadcast a
	// custom-json operation. body is the serialized operation payload.
	RequestCustomJSON(ctx context.Context, account, id string, authority Authority, body, prompt string) (*KeychainResponse, error)
}

// KeychainResponse is the extension's structured reply.
type KeychainResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Result  *KeychainResult `json:"result,omitempty"`
}

// KeychainResult carries the broadcast transaction id on success.
type KeychainResult struct {
	ID string `json:"id"`
}

// KeychainGateway is the extension-mediated signing provider.
type KeychainGateway struct {
	keychain Keychain
	now      func() time.Time
}

// NewKeychainGateway creates a Gateway backed by the keychain extension.
func NewKeychainGateway(k Keychain) *KeychainGateway {
	return &KeychainGateway{
		keychain: k,
		now:      time.Now,
	}
}

// WithClock sets a custom clock for deterministic handles in tests.
func (g *KeychainGateway) WithClock(now func() time.Time) *KeychainGateway {
	g.now = now
	return g
}

// Submit implements Gateway.
func (g *KeychainGateway) Submit(ctx context.Context, req Request) (*domain.SubmissionHandle, error) {
	if req.Account == "" {
		return nil, ErrNotLoggedIn
	}
	if g.keychain == nil || !g.keychain.Available() {
		return nil, ErrProviderUnavailable
	}

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := g.keychain.RequestCustomJSON(ctx, req.Account, req.ID, req.Authority, string(body), req.Prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if !resp.Success || resp.Result == nil || resp.Result.ID == "" {
		if resp.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRejected, resp.Error)
		}
		return nil, ErrRejected
	}

	return &domain.SubmissionHandle{
		ID:          resp.Result.ID,
		SubmittedAt: g.now(),
	}, nil
}
