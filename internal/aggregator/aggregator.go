// Package aggregator maintains the locally cached token view: the side-chain
// token registry merged with live market metrics, supply adjustments, and
// derived fields, published as atomically swapped snapshots.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/steem-driver/steem-engine-dex/internal/domain"
	"github.com/steem-driver/steem-engine-dex/internal/engine"
)

// Designated symbols and accounts of the production side chain.
const (
	// DefaultPeggedSymbol is the pegged-stable token whose price is pinned
	// to 1 regardless of metric data.
	DefaultPeggedSymbol = "STEEMP"

	// DefaultCustodialAccount holds the pegged token's custodial float,
	// excluded from circulating-supply accounting.
	DefaultCustodialAccount = "steem-peg"

	// DefaultHighActivitySymbol is the token whose cached metric volume is
	// unreliable; its volume is recomputed from recent trade history.
	DefaultHighActivitySymbol = "AFIT"
)

// marketCapScale normalizes market cap into volume's typical magnitude for
// the liquidity ranking.
const marketCapScale = 1e9

// Source is the subset of the side-chain index the aggregator reads from.
type Source interface {
	Find(ctx context.Context, contract, table string, query map[string]any, limit, offset int, sort []engine.SortField, out any) error
	FindOne(ctx context.Context, contract, table string, query map[string]any, out any) (bool, error)
}

// Options configures an Aggregator.
type Options struct {
	Source             Source
	DisabledTokens     []string // symbols dropped from the registry snapshot
	PeggedSymbol       string   // default STEEMP
	CustodialAccount   string   // default steem-peg
	HighActivitySymbol string   // default AFIT
	Clock              func() time.Time
	Logger             *log.Logger
}

// Aggregator produces and caches token snapshots. Concurrent Refresh
// calls collapse into one pass; readers keep the previous snapshot until the
// new one is fully built.
type Aggregator struct {
	source             Source
	disabled           map[string]bool
	peggedSymbol       string
	custodialAccount   string
	highActivitySymbol string
	clock              func() time.Time
	logger             *log.Logger

	group singleflight.Group

	mu      sync.RWMutex
	current *Snapshot
}

// New creates an Aggregator.
func New(opts Options) *Aggregator {
	peggedSymbol := opts.PeggedSymbol
	if peggedSymbol == "" {
		peggedSymbol = DefaultPeggedSymbol
	}

	custodialAccount := opts.CustodialAccount
	if custodialAccount == "" {
		custodialAccount = DefaultCustodialAccount
	}

	highActivity := opts.HighActivitySymbol
	if highActivity == "" {
		highActivity = DefaultHighActivitySymbol
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	disabled := make(map[string]bool, len(opts.DisabledTokens))
	for _, s := range opts.DisabledTokens {
		disabled[s] = true
	}

	return &Aggregator{
		source:             opts.Source,
		disabled:           disabled,
		peggedSymbol:       peggedSymbol,
		custodialAccount:   custodialAccount,
		highActivitySymbol: highActivity,
		clock:              clock,
		logger:             logger,
	}
}

// Current returns the last good snapshot, or nil before the first successful
// refresh. Callers rendering the token view should fall back to this when a
// refresh fails rather than showing an empty list.
func (a *Aggregator) Current() *Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// Token looks up a symbol in the current snapshot.
func (a *Aggregator) Token(symbol string) (domain.Token, bool) {
	return a.Current().Token(symbol)
}

// Refresh runs one full aggregation pass and publishes the result. A failed
// pass publishes nothing and leaves the previous snapshot in place.
// Overlapping calls share a single in-flight pass.
func (a *Aggregator) Refresh(ctx context.Context) (*Snapshot, error) {
	v, err, _ := a.group.Do("refresh", func() (any, error) {
		snap, err := a.refresh(ctx)
		if err != nil {
			return nil, err
		}

		a.mu.Lock()
		a.current = snap
		a.mu.Unlock()

		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// registryToken is the wire shape of a tokens.tokens record. Numeric fields
// arrive as quoted strings; metadata is a serialized JSON string.
type registryToken struct {
	Symbol            string       `json:"symbol"`
	Issuer            string       `json:"issuer"`
	Name              string       `json:"name"`
	Precision         int          `json:"precision"`
	MaxSupply         domain.Float `json:"maxSupply"`
	Supply            domain.Float `json:"supply"`
	CirculatingSupply domain.Float `json:"circulatingSupply"`
	StakingEnabled    bool         `json:"stakingEnabled"`
	UnstakingCooldown int          `json:"unstakingCooldown"`
	Metadata          string       `json:"metadata"`

	AuthorizedIssuingAccounts []string `json:"authorizedIssuingAccounts"`
	GroupBy                   []string `json:"groupBy"`
}

func (a *Aggregator) refresh(ctx context.Context) (*Snapshot, error) {
	now := a.clock()

	var registry []registryToken
	if err := a.source.Find(ctx, "tokens", "tokens", nil, engine.RegistryLimit, 0, nil, &registry); err != nil {
		return nil, fmt.Errorf("load token registry: %w", err)
	}

	var metrics []domain.MarketMetric
	if err := a.source.Find(ctx, "market", "metrics", nil, engine.RegistryLimit, 0, nil, &metrics); err != nil {
		return nil, fmt.Errorf("load market metrics: %w", err)
	}

	metricBySymbol := make(map[string]domain.MarketMetric, len(metrics))
	for _, m := range metrics {
		metricBySymbol[m.Symbol] = m
	}

	tokens := make([]domain.Token, 0, len(registry))
	for _, r := range registry {
		if a.disabled[r.Symbol] {
			continue
		}

		token := domain.Token{
			Symbol:                    r.Symbol,
			Issuer:                    r.Issuer,
			Name:                      r.Name,
			Precision:                 r.Precision,
			MaxSupply:                 float64(r.MaxSupply),
			Supply:                    float64(r.Supply),
			CirculatingSupply:         float64(r.CirculatingSupply),
			StakingEnabled:            r.StakingEnabled,
			UnstakingCooldown:         r.UnstakingCooldown,
			Metadata:                  parseMetadata(r.Metadata),
			AuthorizedIssuingAccounts: r.AuthorizedIssuingAccounts,
			GroupBy:                   r.GroupBy,
		}

		if metric, ok := metricBySymbol[token.Symbol]; ok {
			if err := a.applyMetric(ctx, &token, metric, now); err != nil {
				return nil, err
			}
		}

		if token.Symbol == a.peggedSymbol {
			token.LastPrice = 1
		}

		tokens = append(tokens, token)
	}

	sortByLiquidity(tokens)

	if err := a.adjustCustodialFloat(ctx, tokens); err != nil {
		return nil, err
	}

	return &Snapshot{Tokens: tokens, TakenAt: now}, nil
}

// applyMetric merges one market metric into a freshly reset token. Bid, ask,
// price, and cap are applied unconditionally; volume and price-change fields
// only while their validity windows are open.
func (a *Aggregator) applyMetric(ctx context.Context, token *domain.Token, metric domain.MarketMetric, now time.Time) error {
	token.HighestBid = float64(metric.HighestBid)
	token.LastPrice = float64(metric.LastPrice)
	token.LowestAsk = float64(metric.LowestAsk)
	token.MarketCap = token.LastPrice * token.CirculatingSupply

	if now.Unix() < metric.VolumeExpiration {
		token.Volume = float64(metric.Volume)
	}

	if now.Unix() < metric.LastDayPriceExpiration {
		token.PriceChangePercent = float64(metric.PriceChangePercent)
		token.PriceChangeSteem = float64(metric.PriceChangeSteem)
	}

	if token.Symbol == a.highActivitySymbol {
		volume, err := a.tradedVolume(ctx, token.Symbol)
		if err != nil {
			return fmt.Errorf("recompute %s volume: %w", token.Symbol, err)
		}
		token.Volume = volume
	}

	return nil
}

// tradedVolume sums price×quantity over the recent trade window. The cached
// metric volume is unreliable for the high-activity symbol.
func (a *Aggregator) tradedVolume(ctx context.Context, symbol string) (float64, error) {
	var trades []domain.TradeEntry
	err := a.source.Find(ctx, "market", "tradesHistory",
		map[string]any{"symbol": symbol},
		engine.TradesLimit, 0,
		[]engine.SortField{{Index: "timestamp", Descending: false}},
		&trades)
	if err != nil {
		return 0, err
	}

	var volume float64
	for _, trade := range trades {
		volume += float64(trade.Price) * float64(trade.Quantity)
	}
	return volume, nil
}

// adjustCustodialFloat subtracts the custodial account's pegged-token balance
// from the pegged token's supply figures. It runs against the freshly loaded
// registry of this pass only, exactly once, so repeated refreshes never
// double-subtract.
func (a *Aggregator) adjustCustodialFloat(ctx context.Context, tokens []domain.Token) error {
	var balance domain.BalanceRecord
	found, err := a.source.FindOne(ctx, "tokens", "balances", map[string]any{
		"account": a.custodialAccount,
		"symbol":  a.peggedSymbol,
	}, &balance)
	if err != nil {
		return fmt.Errorf("load custodial balance: %w", err)
	}
	if !found || balance.Balance == 0 {
		return nil
	}

	for i := range tokens {
		if tokens[i].Symbol == a.peggedSymbol {
			tokens[i].Supply -= float64(balance.Balance)
			tokens[i].CirculatingSupply -= float64(balance.Balance)
			return nil
		}
	}
	return nil
}

// sortByLiquidity orders tokens descending by a liquidity proxy: traded
// volume when nonzero, otherwise market cap scaled into volume's magnitude.
// Ties break by symbol ascending; the sort is stable.
func sortByLiquidity(tokens []domain.Token) {
	sort.SliceStable(tokens, func(i, j int) bool {
		li, lj := liquidity(tokens[i]), liquidity(tokens[j])
		if li != lj {
			return li > lj
		}
		return tokens[i].Symbol < tokens[j].Symbol
	})
}

func liquidity(t domain.Token) float64 {
	if t.Volume > 0 {
		return t.Volume
	}
	return t.MarketCap / marketCapScale
}

// parseMetadata decodes a token's serialized metadata, tolerating malformed
// or empty input.
func parseMetadata(raw string) domain.Metadata {
	if raw == "" {
		return domain.Metadata{}
	}
	var m domain.Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil || m == nil {
		return domain.Metadata{}
	}
	return m
}
