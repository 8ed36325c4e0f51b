package domain

// Token is one entry of the side-chain token registry, enriched with market
// metrics on every aggregation pass.
type Token struct {
	Symbol            string   // unique identity
	Issuer            string   // account that created the token
	Name              string   // display name
	Precision         int      // decimal places, >= 0
	MaxSupply         float64  // issuance ceiling
	Supply            float64  // issued supply
	CirculatingSupply float64  // supply excluding custodial float
	StakingEnabled    bool     // whether the token supports staking
	UnstakingCooldown int      // days until unstaked funds release
	Metadata          Metadata // parsed from the registry's serialized string

	AuthorizedIssuingAccounts []string // accounts allowed to issue
	GroupBy                   []string // NFT grouping property names, possibly empty

	// Derived market fields. Recomputed wholesale on every aggregation pass;
	// they are never partially carried over from a previous pass.
	HighestBid         float64
	LastPrice          float64
	LowestAsk          float64
	MarketCap          float64
	Volume             float64
	PriceChangePercent float64
	PriceChangeSteem   float64
}

// Metadata is the opaque key-value blob a token issuer attaches to a token.
// Malformed serialized metadata decodes to an empty map, never an error.
type Metadata map[string]any

// HideInMarket reports whether the issuer asked for the token to be kept out
// of market views.
func (m Metadata) HideInMarket() bool {
	v, ok := m["hide_in_market"]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "1"
	default:
		return false
	}
}

// MarketMetric is the side-chain's cached market statistic for one symbol.
// Volume and price-change figures carry validity windows: past the expiration
// timestamp they are stale and must not be applied to a token.
type MarketMetric struct {
	Symbol                 string `json:"symbol"`
	HighestBid             Float  `json:"highestBid"`
	LastPrice              Float  `json:"lastPrice"`
	LowestAsk              Float  `json:"lowestAsk"`
	Volume                 Float  `json:"volume"`
	VolumeExpiration       int64  `json:"volumeExpiration"` // epoch seconds
	PriceChangePercent     Float  `json:"priceChangePercent"`
	PriceChangeSteem       Float  `json:"priceChangeSteem"`
	LastDayPriceExpiration int64  `json:"lastDayPriceExpiration"` // epoch seconds
}
