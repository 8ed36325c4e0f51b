package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Find(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contracts" {
			t.Errorf("expected path /contracts, got %s", r.URL.Path)
		}

		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		if req.Method != "find" {
			t.Errorf("expected method find, got %s", req.Method)
		}

		params, err := json.Marshal(req.Params)
		if err != nil {
			t.Fatalf("re-marshal params: %v", err)
		}

		var fp findParams
		if err := json.Unmarshal(params, &fp); err != nil {
			t.Fatalf("decode params: %v", err)
		}
		if fp.Contract != "tokens" || fp.Table != "tokens" {
			t.Errorf("expected tokens.tokens, got %s.%s", fp.Contract, fp.Table)
		}
		if fp.Limit != 1000 {
			t.Errorf("expected limit 1000, got %d", fp.Limit)
		}

		resp := map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": []map[string]any{
				{"symbol": "ENG", "precision": 8},
				{"symbol": "PAL", "precision": 3},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var rows []struct {
		Symbol    string `json:"symbol"`
		Precision int    `json:"precision"`
	}
	err := client.Find(context.Background(), "tokens", "tokens", nil, RegistryLimit, 0, nil, &rows)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Symbol != "ENG" || rows[0].Precision != 8 {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
}

func TestClient_FindOne_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		if req.Method != "findOne" {
			t.Errorf("expected method findOne, got %s", req.Method)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  nil,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var record map[string]any
	found, err := client.FindOne(context.Background(), "tokens", "balances", map[string]any{"account": "nobody"}, &record)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if found {
		t.Error("expected found=false for null result")
	}
}

func TestClient_FindOne_Found(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]any{"account": "steem-peg", "symbol": "STEEMP", "balance": "50.0"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var record struct {
		Account string `json:"account"`
		Balance string `json:"balance"`
	}
	found, err := client.FindOne(context.Background(), "tokens", "balances", map[string]any{"account": "steem-peg"}, &record)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if record.Account != "steem-peg" || record.Balance != "50.0" {
		t.Errorf("unexpected record: %+v", record)
	}
}

func TestClient_TransactionInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/blockchain" {
			t.Errorf("expected path /blockchain, got %s", r.URL.Path)
		}

		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		if req.Method != "getTransactionInfo" {
			t.Errorf("expected method getTransactionInfo, got %s", req.Method)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]any{
				"transactionId": "abc123",
				"blockNumber":   42,
				"logs":          `{"errors":["insufficient balance"]}`,
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	info, err := client.TransactionInfo(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("TransactionInfo: %v", err)
	}
	if info == nil {
		t.Fatal("expected info, got nil")
	}
	if info.TxID != "abc123" {
		t.Errorf("expected txID abc123, got %s", info.TxID)
	}
	if info.Logs != `{"errors":["insufficient balance"]}` {
		t.Errorf("unexpected logs: %s", info.Logs)
	}
}

func TestClient_TransactionInfo_Pending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  nil,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	info, err := client.TransactionInfo(context.Background(), "lagging")
	if err != nil {
		t.Fatalf("TransactionInfo: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil for unknown transaction, got %+v", info)
	}
}

func TestClient_RemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var rows []map[string]any
	err := client.Find(context.Background(), "market", "metrics", nil, RegistryLimit, 0, nil, &rows)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}

	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected *RemoteError, got %T", err)
	}
	if remote.Op != "find" {
		t.Errorf("expected op find, got %s", remote.Op)
	}
}
