package models

import "time"

// ContractData holds the static metadata of a tradable instrument.
// Instances are immutable once published.
type ContractData struct {
	Symbol    string   `json:"symbol"`
	Exchange  Exchange `json:"exchange"`
	Name      string   `json:"name"`
	Size      float64  `json:"size"`
	PriceTick float64  `json:"price_tick"`
	Product   Product  `json:"product"`

	// Option fields, populated only when Product == ProductOption.
	OptionPortfolio  string     `json:"option_portfolio,omitempty"`
	OptionUnderlying string     `json:"option_underlying,omitempty"`
	OptionKind       OptionKind `json:"option_kind,omitempty"`
	OptionStrike     float64    `json:"option_strike,omitempty"`
	OptionIndex      string     `json:"option_index,omitempty"`
	OptionExpiry     time.Time  `json:"option_expiry,omitempty"`
}

// TickData is a single level-1 market snapshot. One instance per update,
// never merged or cached beyond dispatch.
type TickData struct {
	Symbol    string    `json:"symbol"`
	Exchange  Exchange  `json:"exchange"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`

	Volume     float64 `json:"volume"`
	LastPrice  float64 `json:"last_price"`
	OpenPrice  float64 `json:"open_price"`
	HighPrice  float64 `json:"high_price"`
	LowPrice   float64 `json:"low_price"`
	PreClose   float64 `json:"pre_close"`
	LimitUp    float64 `json:"limit_up"`
	LimitDown  float64 `json:"limit_down"`
	BidPrice1  float64 `json:"bid_price_1"`
	AskPrice1  float64 `json:"ask_price_1"`
	BidVolume1 float64 `json:"bid_volume_1"`
	AskVolume1 float64 `json:"ask_volume_1"`
}

// OrderData is the full current state of an order. Later updates for the
// same OrderID replace earlier ones, they are never merged.
type OrderData struct {
	Symbol    string    `json:"symbol"`
	Exchange  Exchange  `json:"exchange"`
	OrderID   string    `json:"order_id"`
	Direction Direction `json:"direction"`
	Offset    Offset    `json:"offset"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Traded    float64   `json:"traded"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// TradeData is a single fill. Immutable once observed; the TradeID is
// vendor-assigned and globally unique within a session.
type TradeData struct {
	Symbol    string    `json:"symbol"`
	Exchange  Exchange  `json:"exchange"`
	OrderID   string    `json:"order_id"`
	TradeID   string    `json:"trade_id"`
	Direction Direction `json:"direction"`
	Offset    Offset    `json:"offset"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// PositionData is a netted position for one (symbol, direction) pair.
type PositionData struct {
	Symbol   string    `json:"symbol"`
	Exchange Exchange  `json:"exchange"`
	Direction Direction `json:"direction"`
	Volume   float64   `json:"volume"`
	YdVolume float64   `json:"yd_volume"`
	Frozen   float64   `json:"frozen"`
	Price    float64   `json:"price"`
}

// AccountData is a funds snapshot for one trading account.
type AccountData struct {
	AccountID string  `json:"account_id"`
	Balance   float64 `json:"balance"`
	Frozen    float64 `json:"frozen"`
}
