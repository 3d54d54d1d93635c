package ustp

// RspError is the error block attached to every response callback.
// Code 0 means success.
type RspError struct {
	Code    int    `json:"error_id"`
	Message string `json:"error_msg"`
}

// OK reports whether the response carried no error.
func (e *RspError) OK() bool {
	return e == nil || e.Code == 0
}

// ReqUserLogin is the login request for both session kinds.
type ReqUserLogin struct {
	BrokerID string `json:"broker_id"`
	UserID   string `json:"user_id"`
	Password string `json:"password"`
	AppID    string `json:"app_id,omitempty"`
}

// RspUserLogin is the login response.
type RspUserLogin struct {
	TradingDay      string `json:"trading_day"`
	BrokerID        string `json:"broker_id"`
	UserID          string `json:"user_id"`
	MaxOrderLocalID string `json:"max_order_local_id"`
}

// ReqUserCertification is the pre-login authentication request of the
// trader session.
type ReqUserCertification struct {
	AppID       string `json:"app_id"`
	AuthCode    string `json:"auth_code"`
	EncryptType string `json:"encrypt_type"`
}

// QryUserInvestor resolves the investor account reachable by this user.
type QryUserInvestor struct {
	BrokerID string `json:"broker_id"`
	UserID   string `json:"user_id"`
}

// RspUserInvestor carries the resolved investor identifier.
type RspUserInvestor struct {
	BrokerID   string `json:"broker_id"`
	UserID     string `json:"user_id"`
	InvestorID string `json:"investor_id"`
}

// QryInstrument requests the full instrument table. An empty filter
// returns every instrument the front knows.
type QryInstrument struct {
	ExchangeID   string `json:"exchange_id,omitempty"`
	InstrumentID string `json:"instrument_id,omitempty"`
}

// InstrumentField is one streamed record of the instrument query.
type InstrumentField struct {
	InstrumentID      string  `json:"instrument_id"`
	InstrumentName    string  `json:"instrument_name"`
	ExchangeID        string  `json:"exchange_id"`
	ProductID         string  `json:"product_id"`
	InstrumentID2     string  `json:"instrument_id_2"`
	UnderlyingInstrID string  `json:"underlying_instr_id"`
	VolumeMultiple    float64 `json:"volume_multiple"`
	PriceTick         float64 `json:"price_tick"`
	OptionsType       byte    `json:"options_type"`
	StrikePrice       float64 `json:"strike_price"`
	ExpireDate        string  `json:"expire_date"`
}

// InputOrder is the order-insert request.
type InputOrder struct {
	InstrumentID     string  `json:"instrument_id"`
	ExchangeID       string  `json:"exchange_id"`
	BrokerID         string  `json:"broker_id"`
	InvestorID       string  `json:"investor_id"`
	UserID           string  `json:"user_id"`
	UserOrderLocalID string  `json:"user_order_local_id"`
	LimitPrice       float64 `json:"limit_price"`
	Volume           int     `json:"volume"`
	MinVolume        int     `json:"min_volume"`
	OrderPriceType   byte    `json:"order_price_type"`
	Direction        byte    `json:"direction"`
	OffsetFlag       byte    `json:"offset_flag"`
	HedgeFlag        byte    `json:"hedge_flag"`
	TimeCondition    byte    `json:"time_condition"`
	VolumeCondition  byte    `json:"volume_condition"`
	ForceCloseReason byte    `json:"force_close_reason"`
	IsAutoSuspend    int     `json:"is_auto_suspend"`
}

// OrderAction is the order-cancel (delete) request.
type OrderAction struct {
	InstrumentID           string `json:"instrument_id"`
	ExchangeID             string `json:"exchange_id"`
	BrokerID               string `json:"broker_id"`
	InvestorID             string `json:"investor_id"`
	UserID                 string `json:"user_id"`
	UserOrderLocalID       string `json:"user_order_local_id"`
	UserOrderActionLocalID string `json:"user_order_action_local_id"`
	ActionFlag             byte   `json:"action_flag"`
}

// OrderField is the authoritative order state pushed by the exchange.
type OrderField struct {
	InstrumentID     string  `json:"instrument_id"`
	ExchangeID       string  `json:"exchange_id"`
	UserOrderLocalID string  `json:"user_order_local_id"`
	Direction        byte    `json:"direction"`
	OffsetFlag       byte    `json:"offset_flag"`
	OrderStatus      byte    `json:"order_status"`
	LimitPrice       float64 `json:"limit_price"`
	Volume           float64 `json:"volume"`
	VolumeTraded     float64 `json:"volume_traded"`
	InsertDate       string  `json:"insert_date"`
	InsertTime       string  `json:"insert_time"`
}

// TradeField is a fill pushed by the exchange.
type TradeField struct {
	InstrumentID     string  `json:"instrument_id"`
	ExchangeID       string  `json:"exchange_id"`
	UserOrderLocalID string  `json:"user_order_local_id"`
	TradeID          string  `json:"trade_id"`
	Direction        byte    `json:"direction"`
	OffsetFlag       byte    `json:"offset_flag"`
	TradePrice       float64 `json:"trade_price"`
	TradeVolume      float64 `json:"trade_volume"`
	TradeDate        string  `json:"trade_date"`
	TradeTime        string  `json:"trade_time"`
}

// QryInvestorPosition requests the position table for the investor.
type QryInvestorPosition struct {
	BrokerID   string `json:"broker_id"`
	InvestorID string `json:"investor_id"`
	UserID     string `json:"user_id"`
}

// InvestorPositionField is one streamed position record. Several records
// may share a (symbol, direction) pair within one response.
type InvestorPositionField struct {
	InstrumentID   string  `json:"instrument_id"`
	Direction      byte    `json:"direction"`
	Position       float64 `json:"position"`
	YdPosition     float64 `json:"yd_position"`
	FrozenPosition float64 `json:"frozen_position"`
	PositionCost   float64 `json:"position_cost"`
}

// QryInvestorAccount requests the funds snapshot.
type QryInvestorAccount struct {
	BrokerID   string `json:"broker_id"`
	InvestorID string `json:"investor_id"`
	UserID     string `json:"user_id"`
}

// InvestorAccountField is the single-record account response.
type InvestorAccountField struct {
	AccountID   string  `json:"account_id"`
	PreBalance  float64 `json:"pre_balance"`
	LongMargin  float64 `json:"long_margin"`
	ShortMargin float64 `json:"short_margin"`
}

// DepthMarketDataField is a level-1 depth quote push.
type DepthMarketDataField struct {
	InstrumentID    string  `json:"instrument_id"`
	TradingDay      string  `json:"trading_day"`
	UpdateTime      string  `json:"update_time"`
	UpdateMillisec  int     `json:"update_millisec"`
	LastPrice       float64 `json:"last_price"`
	OpenPrice       float64 `json:"open_price"`
	HighestPrice    float64 `json:"highest_price"`
	LowestPrice     float64 `json:"lowest_price"`
	PreClosePrice   float64 `json:"pre_close_price"`
	UpperLimitPrice float64 `json:"upper_limit_price"`
	LowerLimitPrice float64 `json:"lower_limit_price"`
	Volume          float64 `json:"volume"`
	BidPrice1       float64 `json:"bid_price_1"`
	AskPrice1       float64 `json:"ask_price_1"`
	BidVolume1      float64 `json:"bid_volume_1"`
	AskVolume1      float64 `json:"ask_volume_1"`
}
