package models

// Direction of an order, trade or position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Offset tells whether an order opens a new position or closes an
// existing one, and for closes, whether today's or prior-day lots are hit.
type Offset string

const (
	OffsetNone           Offset = ""
	OffsetOpen           Offset = "OPEN"
	OffsetClose          Offset = "CLOSE"
	OffsetCloseToday     Offset = "CLOSE_TODAY"
	OffsetCloseYesterday Offset = "CLOSE_YESTERDAY"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusSubmitting Status = "SUBMITTING"
	StatusNotTraded  Status = "NOT_TRADED"
	StatusPartTraded Status = "PART_TRADED"
	StatusAllTraded  Status = "ALL_TRADED"
	StatusCancelled  Status = "CANCELLED"
	StatusRejected   Status = "REJECTED"
)

// Finished reports whether the order can no longer change state.
func (s Status) Finished() bool {
	switch s {
	case StatusAllTraded, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// OrderType is the caller-requested execution style.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeFAK    OrderType = "FAK"
	OrderTypeFOK    OrderType = "FOK"
)

// Product classifies an instrument.
type Product string

const (
	ProductFutures Product = "FUTURES"
	ProductOption  Product = "OPTION"
	ProductSpread  Product = "SPREAD"
)

// OptionKind distinguishes calls from puts.
type OptionKind string

const (
	OptionKindCall OptionKind = "CALL"
	OptionKindPut  OptionKind = "PUT"
)

// Exchange identifies one of the futures exchanges reachable through the
// gateway.
type Exchange string

const (
	ExchangeCFFEX Exchange = "CFFEX"
	ExchangeSHFE  Exchange = "SHFE"
	ExchangeCZCE  Exchange = "CZCE"
	ExchangeDCE   Exchange = "DCE"
	ExchangeINE   Exchange = "INE"
)
