// Package engine provides read access to the side-chain index: paginated
// contract table queries, transaction info lookups, and a generic fetch for
// external JSON endpoints.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout = 30 * time.Second

	contractsPath  = "/contracts"
	blockchainPath = "/blockchain"
)

// Observed query ceilings per table family.
const (
	RegistryLimit = 1000 // tokens, balances, pendingUnstakes
	BookLimit     = 200  // buyBook, sellBook
	TradesLimit   = 100  // tradesHistory, volume recomputation window
)

// SortField is one element of a query sort specification.
type SortField struct {
	Index      string `json:"index"`
	Descending bool   `json:"descending"`
}

// Client queries the side-chain index over HTTP JSON-RPC 2.0.
type Client struct {
	endpoint  string
	client    *http.Client
	requestID atomic.Uint64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a side-chain index client for the given RPC endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// findParams is the wire shape of a contract table query.
type findParams struct {
	Contract string         `json:"contract"`
	Table    string         `json:"table"`
	Query    map[string]any `json:"query"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
	Indexes  []SortField    `json:"indexes,omitempty"`
}

// call performs one JSON-RPC call against the given endpoint path and decodes
// the result into result when non-nil. Failures surface as *RemoteError.
func (c *Client) call(ctx context.Context, path, method string, params any, result any) error {
	url := c.endpoint + path

	remoteErr := func(err error) error {
		return &RemoteError{Op: method, URL: url, Err: err}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return remoteErr(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return remoteErr(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return remoteErr(fmt.Errorf("http request: %w", err))
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return remoteErr(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return remoteErr(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return remoteErr(fmt.Errorf("unmarshal response: %w", err))
	}

	if rpcResp.Error != nil {
		return remoteErr(rpcResp.Error)
	}

	if result != nil && rpcResp.Result != nil && !bytes.Equal(rpcResp.Result, []byte("null")) {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return remoteErr(fmt.Errorf("unmarshal result: %w", err))
		}
	}

	return nil
}

// Find queries a contract table and decodes the matching records into out,
// which must be a pointer to a slice. An absent result leaves out untouched.
func (c *Client) Find(ctx context.Context, contract, table string, query map[string]any, limit, offset int, sort []SortField, out any) error {
	if query == nil {
		query = map[string]any{}
	}
	params := findParams{
		Contract: contract,
		Table:    table,
		Query:    query,
		Limit:    limit,
		Offset:   offset,
		Indexes:  sort,
	}
	return c.call(ctx, contractsPath, "find", params, out)
}

// FindOne queries a contract table for a single record. The second return
// value reports whether a record was found; absence is not an error.
func (c *Client) FindOne(ctx context.Context, contract, table string, query map[string]any, out any) (bool, error) {
	if query == nil {
		query = map[string]any{}
	}
	params := findParams{
		Contract: contract,
		Table:    table,
		Query:    query,
	}

	var raw json.RawMessage
	if err := c.call(ctx, contractsPath, "findOne", params, &raw); err != nil {
		return false, err
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return false, &RemoteError{Op: "findOne", URL: c.endpoint + contractsPath, Err: fmt.Errorf("unmarshal record: %w", err)}
		}
	}
	return true, nil
}

// TransactionInfo is the side-chain index's record of a submitted transaction.
// Logs is a JSON-encoded string; contract errors live under its "errors" key.
type TransactionInfo struct {
	TxID        string `json:"transactionId"`
	BlockNumber int64  `json:"blockNumber"`
	Sender      string `json:"sender"`
	Contract    string `json:"contract"`
	Action      string `json:"action"`
	Payload     string `json:"payload"`
	Logs        string `json:"logs"`
}

// TransactionInfo looks up a transaction by id. A nil result without error
// means the index has not seen the id yet; the index may lag submission by
// several confirmation intervals.
func (c *Client) TransactionInfo(ctx context.Context, txID string) (*TransactionInfo, error) {
	params := map[string]any{"txid": txID}

	var raw json.RawMessage
	if err := c.call(ctx, blockchainPath, "getTransactionInfo", params, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var info TransactionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, &RemoteError{Op: "getTransactionInfo", URL: c.endpoint + blockchainPath, Err: fmt.Errorf("unmarshal record: %w", err)}
	}
	return &info, nil
}
