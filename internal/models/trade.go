package models

import "time"

// Trade is one proposal as persisted in trade_history. Amounts are base-unit
// integers rendered as decimal strings.
type Trade struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	TradingDay   string    `json:"tradingDay"`
	Trader       string    `json:"trader"`
	Kind         string    `json:"kind"` // swap kind, or "buyback"
	AssetIn      string    `json:"assetIn"`
	AssetOut     string    `json:"assetOut"`
	AmountIn     string    `json:"amountIn"`
	AmountOut    string    `json:"amountOut"`
	Burned       *string   `json:"burned,omitempty"`
	Approved     bool      `json:"approved"`
	Rejections   []string  `json:"rejections"`
	IsPaperTrade bool      `json:"isPaperTrade"`
	CreatedAt    time.Time `json:"createdAt"`
}

type TradeStats struct {
	TotalTrades   int64      `json:"totalTrades"`
	ApprovedCount int64      `json:"approvedCount"`
	RejectedCount int64      `json:"rejectedCount"`
	BuybackCount  int64      `json:"buybackCount"`
	FirstTrade    *time.Time `json:"firstTrade"`
	LastTrade     *time.Time `json:"lastTrade"`
}

// RejectionCount is how often one rejection code has fired.
type RejectionCount struct {
	Code  string `json:"code"`
	Count int64  `json:"count"`
}
