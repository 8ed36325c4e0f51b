package signing

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"github.com/steem-driver/steem-engine-dex/internal/domain"
)

// Pop-up geometry expected by the external signer.
const (
	PopupWidth  = 500
	PopupHeight = 560

	// DefaultCallbackWait bounds how long a submission waits for the
	// out-of-band completion before resolving ErrTimeout.
	DefaultCallbackWait = 10 * time.Second
)

// WindowOpener opens the centered signer pop-up. The correlation id names the
// window so the out-of-band callback channel can route the completion back to
// the submission that is waiting for it.
type WindowOpener interface {
	OpenPopup(targetURL, correlationID string, width, height int) error
}

// completion is the deferred result of one redirect-mediated submission.
type completion struct {
	txID string
	err  error
}

// RedirectGateway is the redirect-mediated signing provider. The action is
// serialized into a signer URL and opened in a pop-up; completion arrives
// later through Complete. Pending completions are keyed by correlation id,
// so concurrent submissions cannot clobber each other's callback.
type RedirectGateway struct {
	signerHost string
	opener     WindowOpener
	wait       time.Duration
	now        func() time.Time

	mu      sync.Mutex
	pending map[string]chan completion
}

// RedirectOption configures RedirectGateway.
type RedirectOption func(*RedirectGateway)

// WithCallbackWait sets the completion wait budget.
func WithCallbackWait(d time.Duration) RedirectOption {
	return func(g *RedirectGateway) {
		g.wait = d
	}
}

// WithRedirectClock sets a custom clock for deterministic handles in tests.
func WithRedirectClock(now func() time.Time) RedirectOption {
	return func(g *RedirectGateway) {
		g.now = now
	}
}

// NewRedirectGateway creates a Gateway that signs through the external
// redirect signer at signerHost.
func NewRedirectGateway(signerHost string, opener WindowOpener, opts ...RedirectOption) *RedirectGateway {
	g := &RedirectGateway{
		signerHost: signerHost,
		opener:     opener,
		wait:       DefaultCallbackWait,
		now:        time.Now,
		pending:    make(map[string]chan completion),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit implements Gateway. It blocks until the out-of-band callback
// resolves the submission, the wait budget runs out, or ctx is cancelled.
func (g *RedirectGateway) Submit(ctx context.Context, req Request) (*domain.SubmissionHandle, error) {
	if req.Account == "" {
		return nil, ErrNotLoggedIn
	}
	if g.opener == nil {
		return nil, ErrProviderUnavailable
	}

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	corrID, err := newCorrelationID()
	if err != nil {
		return nil, fmt.Errorf("correlation id: %w", err)
	}

	ch := make(chan completion, 1)
	g.mu.Lock()
	g.pending[corrID] = ch
	g.mu.Unlock()

	signURL := SignURL(g.signerHost, req.Account, req.Authority, req.ID, body)
	if err := g.opener.OpenPopup(signURL, corrID, PopupWidth, PopupHeight); err != nil {
		g.drop(corrID)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	timer := time.NewTimer(g.wait)
	defer timer.Stop()

	select {
	case c := <-ch:
		if c.err != nil {
			return nil, c.err
		}
		return &domain.SubmissionHandle{ID: c.txID, SubmittedAt: g.now()}, nil
	case <-timer.C:
		g.drop(corrID)
		return nil, ErrTimeout
	case <-ctx.Done():
		g.drop(corrID)
		return nil, ctx.Err()
	}
}

// Complete resolves the submission registered under correlationID. A nil err
// with a transaction id reports successful signing; a non-nil err reports
// rejection or signer failure. Exactly one completion is delivered per
// submission; the return value reports whether a waiter was found.
func (g *RedirectGateway) Complete(correlationID, txID string, err error) bool {
	g.mu.Lock()
	ch, ok := g.pending[correlationID]
	if ok {
		delete(g.pending, correlationID)
	}
	g.mu.Unlock()

	if !ok {
		return false
	}

	ch <- completion{txID: txID, err: err}
	return true
}

// PendingCount reports how many submissions are waiting for their callback.
func (g *RedirectGateway) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

func (g *RedirectGateway) drop(correlationID string) {
	g.mu.Lock()
	delete(g.pending, correlationID)
	g.mu.Unlock()
}

// newCorrelationID returns an opaque random id for pairing a submission with
// its deferred callback.
func newCorrelationID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return base58.Encode(buf[:]), nil
}

// SignURL builds the external signer URL for a custom-json operation.
// Exactly one of the two auth-list parameters carries the account; the other
// is the empty list.
func SignURL(signerHost, account string, authority Authority, id string, payload []byte) string {
	postingAuths := "[]"
	activeAuths := "[]"
	if authority == AuthorityActive {
		activeAuths = `["` + account + `"]`
	} else {
		postingAuths = `["` + account + `"]`
	}

	return signerHost + "/sign/custom-json" +
		"?required_posting_auths=" + url.QueryEscape(postingAuths) +
		"&required_auths=" + url.QueryEscape(activeAuths) +
		"&id=" + url.QueryEscape(id) +
		"&json=" + url.QueryEscape(string(payload))
}
