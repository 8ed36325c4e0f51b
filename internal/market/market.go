// Package market reads order books, trade history, and market balances from
// the side-chain index on behalf of the trading views.
package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/steem-driver/steem-engine-dex/internal/domain"
	"github.com/steem-driver/steem-engine-dex/internal/engine"
)

// ErrHiddenFromMarket is returned for tokens whose issuer opted out of
// market views through metadata.
var ErrHiddenFromMarket = errors.New("token is hidden from market")

// HistoryLimit bounds trade history reads for the market view.
const HistoryLimit = 30

// Source is the subset of the side-chain index the market reads from.
type Source interface {
	Find(ctx context.Context, contract, table string, query map[string]any, limit, offset int, sort []engine.SortField, out any) error
}

// TokenLookup resolves a symbol against the current aggregation snapshot.
type TokenLookup interface {
	Token(symbol string) (domain.Token, bool)
}

// Service answers market read queries. The pegged symbol trades as the
// native asset, so it is remapped before querying.
type Service struct {
	source       Source
	tokens       TokenLookup
	peggedSymbol string
	nativeSymbol string
}

// NewService creates a market read service.
func NewService(source Source, tokens TokenLookup, peggedSymbol, nativeSymbol string) *Service {
	return &Service{
		source:       source,
		tokens:       tokens,
		peggedSymbol: peggedSymbol,
		nativeSymbol: nativeSymbol,
	}
}

// BuyBook returns resting buy orders for symbol, highest price first.
// A non-empty account restricts the book to that account's orders.
func (s *Service) BuyBook(ctx context.Context, symbol, account string) ([]domain.OrderBookEntry, error) {
	symbol, err := s.marketSymbol(symbol)
	if err != nil {
		return nil, err
	}

	query := map[string]any{"symbol": symbol}
	if account != "" {
		query["account"] = account
	}

	var book []domain.OrderBookEntry
	err = s.source.Find(ctx, "market", "buyBook", query, engine.BookLimit, 0,
		[]engine.SortField{{Index: "price", Descending: true}}, &book)
	if err != nil {
		return nil, fmt.Errorf("load buy book: %w", err)
	}
	return book, nil
}

// SellBook returns resting sell orders for symbol, lowest price first.
func (s *Service) SellBook(ctx context.Context, symbol, account string) ([]domain.OrderBookEntry, error) {
	symbol, err := s.marketSymbol(symbol)
	if err != nil {
		return nil, err
	}

	query := map[string]any{"symbol": symbol}
	if account != "" {
		query["account"] = account
	}

	var book []domain.OrderBookEntry
	err = s.source.Find(ctx, "market", "sellBook", query, engine.BookLimit, 0,
		[]engine.SortField{{Index: "price", Descending: false}}, &book)
	if err != nil {
		return nil, fmt.Errorf("load sell book: %w", err)
	}
	return book, nil
}

// TradesHistory returns recent executed trades for symbol, oldest first.
func (s *Service) TradesHistory(ctx context.Context, symbol string) ([]domain.TradeEntry, error) {
	symbol, err := s.marketSymbol(symbol)
	if err != nil {
		return nil, err
	}

	var trades []domain.TradeEntry
	err = s.source.Find(ctx, "market", "tradesHistory", map[string]any{"symbol": symbol},
		HistoryLimit, 0,
		[]engine.SortField{{Index: "timestamp", Descending: false}}, &trades)
	if err != nil {
		return nil, fmt.Errorf("load trades history: %w", err)
	}
	return trades, nil
}

// UserBalances returns the account's balances for the traded symbol and the
// pegged settlement token.
func (s *Service) UserBalances(ctx context.Context, symbol, account string) ([]domain.BalanceRecord, error) {
	symbol, err := s.marketSymbol(symbol)
	if err != nil {
		return nil, err
	}

	var balances []domain.BalanceRecord
	err = s.source.Find(ctx, "tokens", "balances", map[string]any{
		"account": account,
		"symbol":  map[string]any{"$in": []string{symbol, s.peggedSymbol}},
	}, 2, 0, nil, &balances)
	if err != nil {
		return nil, fmt.Errorf("load user balances: %w", err)
	}
	return balances, nil
}

// marketSymbol remaps the pegged symbol to the native asset and rejects
// tokens hidden from market views.
func (s *Service) marketSymbol(symbol string) (string, error) {
	if symbol == s.peggedSymbol {
		symbol = s.nativeSymbol
	}

	if token, ok := s.tokens.Token(symbol); ok && token.Metadata.HideInMarket() {
		return "", fmt.Errorf("%w: %s", ErrHiddenFromMarket, symbol)
	}
	return symbol, nil
}
