package domain

// BalanceRecord is one account's holding of one token.
type BalanceRecord struct {
	Account string `json:"account"`
	Symbol  string `json:"symbol"`
	Balance Float  `json:"balance"`
	Stake   Float  `json:"stake"`
}

// PendingUnstake is an in-progress unstake operation awaiting cooldown.
type PendingUnstake struct {
	Account                  string `json:"account"`
	Symbol                   string `json:"symbol"`
	Quantity                 Float  `json:"quantity"`
	QuantityLeft             Float  `json:"quantityLeft"`
	NumberTransactionsLeft   int    `json:"numberTransactionsLeft"`
	NextTransactionTimestamp int64  `json:"nextTransactionTimestamp"`
	TxID                     string `json:"txID"`
}

// OrderBookEntry is one resting order on the market buy or sell book.
type OrderBookEntry struct {
	Account   string `json:"account"`
	Symbol    string `json:"symbol"`
	Price     Float  `json:"price"`
	Quantity  Float  `json:"quantity"`
	Timestamp int64  `json:"timestamp"`
	TxID      string `json:"txId"`
}

// TradeEntry is one executed trade from the market trade history.
type TradeEntry struct {
	Symbol    string `json:"symbol"`
	Type      string `json:"type"` // buy | sell
	Price     Float  `json:"price"`
	Quantity  Float  `json:"quantity"`
	Timestamp int64  `json:"timestamp"`
}
