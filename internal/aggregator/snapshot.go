package aggregator

import (
	"time"

	"github.com/steem-driver/steem-engine-dex/internal/domain"
)

// Snapshot is one fully-built token collection with the timestamp of the
// pass that produced it. Snapshots are immutable once published; a refresh
// builds a new one and swaps it in whole, so readers never observe a
// half-updated token.
type Snapshot struct {
	Tokens  []domain.Token
	TakenAt time.Time
}

// Token returns the token with the given symbol.
func (s *Snapshot) Token(symbol string) (domain.Token, bool) {
	if s == nil {
		return domain.Token{}, false
	}
	for _, t := range s.Tokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return domain.Token{}, false
}
