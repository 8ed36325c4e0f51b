// Package accounts reads per-account state: side-chain balances and pending
// unstakes, chain parameters, the native asset price, and claimable staking
// rewards from the external reward service.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/steem-driver/steem-engine-dex/internal/domain"
	"github.com/steem-driver/steem-engine-dex/internal/engine"
)

// HistoryLimit bounds account history reads.
const HistoryLimit = 100

// Source is the subset of the side-chain index this service reads from.
type Source interface {
	Find(ctx context.Context, contract, table string, query map[string]any, limit, offset int, sort []engine.SortField, out any) error
	FindOne(ctx context.Context, contract, table string, query map[string]any, out any) (bool, error)
}

// Fetcher GETs external JSON endpoints.
type Fetcher interface {
	Fetch(ctx context.Context, url string, params map[string]string, out any) error
}

// PeggedTokenInfo maps a pegged token to its custodial deposit address.
type PeggedTokenInfo struct {
	Symbol  string
	Address string
}

// Options configures a Service.
type Options struct {
	Source       Source
	Fetcher      Fetcher
	PricesURL    string // native asset price endpoint
	RewardsURL   string // staking reward (SCOT) endpoint, account appended as @name
	HistoryURL   string // account history endpoint
	PeggedTokens []PeggedTokenInfo
}

// Service answers account read queries.
type Service struct {
	source       Source
	fetcher      Fetcher
	pricesURL    string
	rewardsURL   string
	historyURL   string
	peggedTokens []PeggedTokenInfo
}

// NewService creates an account read service.
func NewService(opts Options) *Service {
	return &Service{
		source:       opts.Source,
		fetcher:      opts.Fetcher,
		pricesURL:    opts.PricesURL,
		rewardsURL:   opts.RewardsURL,
		historyURL:   opts.HistoryURL,
		peggedTokens: opts.PeggedTokens,
	}
}

// Balances returns all token balances held by account.
func (s *Service) Balances(ctx context.Context, account string) ([]domain.BalanceRecord, error) {
	var balances []domain.BalanceRecord
	err := s.source.Find(ctx, "tokens", "balances", map[string]any{"account": account},
		engine.RegistryLimit, 0, nil, &balances)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	return balances, nil
}

// PendingUnstakes returns account's in-progress unstake operations.
func (s *Service) PendingUnstakes(ctx context.Context, account string) ([]domain.PendingUnstake, error) {
	var unstakes []domain.PendingUnstake
	err := s.source.Find(ctx, "tokens", "pendingUnstakes", map[string]any{"account": account},
		engine.RegistryLimit, 0, nil, &unstakes)
	if err != nil {
		return nil, fmt.Errorf("load pending unstakes: %w", err)
	}
	return unstakes, nil
}

// Params is the merged chain parameter view: store and token contract
// parameters plus the native asset price.
type Params struct {
	Values      map[string]any
	NativePrice float64
}

// Params merges sscstore and tokens contract parameters with the native
// asset price. Partial failures surface in the returned error while the
// successfully loaded parts are still returned.
func (s *Service) Params(ctx context.Context) (*Params, error) {
	params := &Params{Values: map[string]any{}}
	var errs []error

	for _, contract := range []string{"sscstore", "tokens"} {
		var values map[string]any
		found, err := s.source.FindOne(ctx, contract, "params", nil, &values)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s params: %w", contract, err))
			continue
		}
		if found {
			for k, v := range values {
				params.Values[k] = v
			}
		}
	}

	price, err := s.NativePrice(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		params.NativePrice = price
	}

	return params, errors.Join(errs...)
}

// NativePrice fetches the base chain asset's current USD price.
func (s *Service) NativePrice(ctx context.Context) (float64, error) {
	var out struct {
		SteemPrice domain.Float `json:"steem_price"`
	}
	if err := s.fetcher.Fetch(ctx, s.pricesURL, nil, &out); err != nil {
		return 0, fmt.Errorf("load native price: %w", err)
	}
	return float64(out.SteemPrice), nil
}

// RewardBalance is one symbol's claimable staking reward state.
type RewardBalance struct {
	Symbol       string `json:"symbol"`
	PendingToken int64  `json:"pending_token"`
	Precision    int    `json:"precision"`
	StakedTokens int64  `json:"staked_tokens"`
}

// Claimable returns the human-readable pending amount, scaled by precision.
func (r RewardBalance) Claimable() float64 {
	scale := 1.0
	for i := 0; i < r.Precision; i++ {
		scale *= 10
	}
	return float64(r.PendingToken) / scale
}

// StakingRewards fetches account's claimable reward balances, keyed by symbol.
func (s *Service) StakingRewards(ctx context.Context, account string) (map[string]RewardBalance, error) {
	var rewards map[string]RewardBalance
	if err := s.fetcher.Fetch(ctx, s.rewardsURL+"@"+account, nil, &rewards); err != nil {
		return nil, fmt.Errorf("load staking rewards: %w", err)
	}

	for symbol, r := range rewards {
		if r.Symbol == "" {
			r.Symbol = symbol
			rewards[symbol] = r
		}
	}
	return rewards, nil
}

// HistoryEntry is one account history event from the history endpoint.
type HistoryEntry struct {
	TxID      string       `json:"transactionId"`
	Symbol    string       `json:"symbol"`
	Operation string       `json:"operation"`
	From      string       `json:"from"`
	To        string       `json:"to"`
	Quantity  domain.Float `json:"quantity"`
	Timestamp int64        `json:"timestamp"`
}

// History fetches account's recent events for one symbol.
func (s *Service) History(ctx context.Context, account, symbol string) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	err := s.fetcher.Fetch(ctx, s.historyURL, map[string]string{
		"account": account,
		"symbol":  symbol,
		"type":    "user",
		"limit":   strconv.Itoa(HistoryLimit),
		"offset":  "0",
	}, &entries)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}

// DepositAddress returns the custodial deposit address for a pegged token.
func (s *Service) DepositAddress(symbol string) (string, bool) {
	for _, p := range s.peggedTokens {
		if p.Symbol == symbol {
			return p.Address, true
		}
	}
	return "", false
}
