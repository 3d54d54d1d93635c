package ustp

// MarketDataHandler receives the callbacks of a market-data session.
// The SDK delivers them serially per session from its own goroutine.
type MarketDataHandler interface {
	OnFrontConnected()
	OnFrontDisconnected(reason int)
	OnRspUserLogin(rsp *RspUserLogin, err *RspError, requestID int, last bool)
	OnRspSubMarketData(symbol string, err *RspError, requestID int, last bool)
	OnRspError(err *RspError, requestID int, last bool)
	OnRtnDepthMarketData(md *DepthMarketDataField)
}

// MarketDataAPI is the request surface of a market-data session.
type MarketDataAPI interface {
	// Create initialises the underlying channel once. Calling it twice
	// on the same instance is an error.
	Create(flowPath string) error
	SubscribeMarketDataTopic(topicID, resumeType int) error
	RegisterFront(address string)
	Init() error
	Exit() error

	ReqUserLogin(req *ReqUserLogin, requestID int) error
	SubMarketData(symbol string) error
}

// TraderHandler receives the callbacks of a trading session.
type TraderHandler interface {
	OnFrontConnected()
	OnFrontDisconnected(reason int)
	OnRspUserCertification(err *RspError, requestID int, last bool)
	OnRspUserLogin(rsp *RspUserLogin, err *RspError, requestID int, last bool)
	OnRspSettlementInfoConfirm(err *RspError, requestID int, last bool)
	OnRspQryUserInvestor(rsp *RspUserInvestor, err *RspError, requestID int, last bool)
	OnRspQryInstrument(rsp *InstrumentField, err *RspError, requestID int, last bool)
	OnRspOrderInsert(order *InputOrder, err *RspError, requestID int, last bool)
	OnRspOrderAction(action *OrderAction, err *RspError, requestID int, last bool)
	OnRspQryInvestorPosition(rsp *InvestorPositionField, err *RspError, requestID int, last bool)
	OnRspQryInvestorAccount(rsp *InvestorAccountField, err *RspError, requestID int, last bool)
	OnRspError(err *RspError, requestID int, last bool)
	OnRtnOrder(order *OrderField)
	OnRtnTrade(trade *TradeField)
}

// TraderAPI is the request surface of a trading session. Topic
// subscriptions must happen between Create and Init; the front only
// replays queued messages to topics registered before Init.
type TraderAPI interface {
	Create(flowPath string) error
	SubscribePrivateTopic(resumeType int) error
	SubscribePublicTopic(resumeType int) error
	SubscribeUserTopic(resumeType int) error
	RegisterFront(address string)
	Init() error
	Exit() error

	ReqUserCertification(req *ReqUserCertification, requestID int) error
	ReqUserLogin(req *ReqUserLogin, requestID int) error
	ReqQryUserInvestor(req *QryUserInvestor, requestID int) error
	ReqQryInstrument(req *QryInstrument, requestID int) error
	ReqOrderInsert(req *InputOrder, requestID int) error
	ReqOrderAction(req *OrderAction, requestID int) error
	ReqQryInvestorAccount(req *QryInvestorAccount, requestID int) error
	ReqQryInvestorPosition(req *QryInvestorPosition, requestID int) error
}
