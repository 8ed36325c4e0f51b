package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrAccountNotFound means the base chain has no account with that name.
// It is distinct from a transport failure, which surfaces as a wrapped error.
var ErrAccountNotFound = errors.New("account not found")

// ChainAccount is the base-chain view of an account, reduced to the fields
// the client cares about.
type ChainAccount struct {
	Name       string `json:"name"`
	Balance    string `json:"balance"`
	SBDBalance string `json:"sbd_balance"`
	MemoKey    string `json:"memo_key"`
}

// ChainClient looks up accounts on the base blockchain's condenser API.
type ChainClient struct {
	endpoint string
	client   *http.Client
}

// NewChainClient creates a base-chain account client.
func NewChainClient(endpoint string) *ChainClient {
	return &ChainClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Lookup fetches one account by name. Missing accounts resolve
// ErrAccountNotFound; transport and decode failures surface as errors.
func (c *ChainClient) Lookup(ctx context.Context, name string) (*ChainAccount, error) {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "condenser_api.get_accounts",
		"params":  []any{[]string{name}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup account %s: %w", name, err)
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lookup account %s: unexpected status %d", name, resp.StatusCode)
	}

	var out struct {
		Result []ChainAccount `json:"result"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(out.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	return &out.Result[0], nil
}
