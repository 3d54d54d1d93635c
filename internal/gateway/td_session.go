package gateway

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"femasflow/internal/ids"
	"femasflow/internal/metrics"
	"femasflow/internal/models"
	"femasflow/internal/registry"
	"femasflow/internal/ustp"
	"femasflow/logger"
)

// instrumentQueryDelay is the cooldown the protocol mandates between the
// investor query and the instrument query.
const instrumentQueryDelay = time.Second

// TradeSession owns the trading connection lifecycle
// (connect, authenticate, login, investor, instruments), translates
// order/trade/position/account callbacks, and submits orders and
// cancels. It implements ustp.TraderHandler.
type TradeSession struct {
	api       ustp.TraderAPI
	sink      EventSink
	registry  *registry.ContractRegistry
	allocator *ids.OrderIDAllocator
	log       *logger.Entry
	seq       ids.RequestSequencer
	flowPath  string

	// queryLimiter paces the outbound account/position queries against
	// the protocol's flow-control expectations.
	queryLimiter *rate.Limiter

	// afterFunc is swappable so tests can run the instrument query
	// synchronously instead of waiting out the cooldown.
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu            sync.Mutex
	connected     bool
	loggedIn      bool
	authenticated bool
	loginFailed   bool

	userID     string
	password   string
	brokerID   string
	authCode   string
	appID      string
	investorID string

	tradeIDs  map[string]struct{}
	positions map[string]*models.PositionData
}

// NewTradeSession wires a trading session to its transport, sink,
// registry and the shared local-order-id allocator.
func NewTradeSession(api ustp.TraderAPI, sink EventSink, reg *registry.ContractRegistry, alloc *ids.OrderIDAllocator, flowPath string, queriesPerSecond float64) *TradeSession {
	if queriesPerSecond <= 0 {
		queriesPerSecond = 1
	}
	return &TradeSession{
		api:          api,
		sink:         sink,
		registry:     reg,
		allocator:    alloc,
		flowPath:     flowPath,
		log:          logger.GetLogger().WithComponent("td_session"),
		queryLimiter: rate.NewLimiter(rate.Limit(queriesPerSecond), 1),
		afterFunc:    time.AfterFunc,
		tradeIDs:     make(map[string]struct{}),
		positions:    make(map[string]*models.PositionData),
	}
}

// Connect is idempotent. The first call subscribes the private, public
// and user topics before registering the front and initing; the front
// only replays queued messages to topics registered pre-init. Later
// calls restart the authentication sequence.
func (s *TradeSession) Connect(address, userID, password, brokerID, authCode, appID string) error {
	s.mu.Lock()
	s.userID = userID
	s.password = password
	s.brokerID = brokerID
	s.authCode = authCode
	s.appID = appID
	connected := s.connected
	s.mu.Unlock()

	if !connected {
		if err := s.api.Create(s.flowPath); err != nil {
			return fmt.Errorf("create trader channel: %w", err)
		}
		if err := s.api.SubscribePrivateTopic(ustp.TopicResumeRestart); err != nil {
			return fmt.Errorf("subscribe private topic: %w", err)
		}
		if err := s.api.SubscribePublicTopic(ustp.TopicResumeRestart); err != nil {
			return fmt.Errorf("subscribe public topic: %w", err)
		}
		if err := s.api.SubscribeUserTopic(ustp.TopicResumeRestart); err != nil {
			return fmt.Errorf("subscribe user topic: %w", err)
		}
		s.api.RegisterFront(address)
		if err := s.api.Init(); err != nil {
			return fmt.Errorf("init trader channel: %w", err)
		}

		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		return nil
	}

	if authCode != "" {
		s.authenticate()
	} else {
		s.login()
	}
	return nil
}

// Close exits the channel if it was ever created.
func (s *TradeSession) Close() {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if connected {
		if err := s.api.Exit(); err != nil {
			s.log.WithError(err).Warn("trader exit failed")
		}
	}
}

func (s *TradeSession) authenticate() {
	s.mu.Lock()
	req := &ustp.ReqUserCertification{
		AppID:       s.appID,
		AuthCode:    s.authCode,
		EncryptType: "1",
	}
	s.mu.Unlock()

	if err := s.api.ReqUserCertification(req, s.seq.Next()); err != nil {
		s.log.WithError(err).Warn("authentication request failed")
	}
}

// login short-circuits after a permanent failure: a rejected login on
// this protocol means bad credentials, and retrying risks an account
// lockout at the exchange.
func (s *TradeSession) login() {
	s.mu.Lock()
	if s.loginFailed {
		s.mu.Unlock()
		return
	}
	req := &ustp.ReqUserLogin{
		BrokerID: s.brokerID,
		UserID:   s.userID,
		Password: s.password,
		AppID:    s.appID,
	}
	s.mu.Unlock()

	if err := s.api.ReqUserLogin(req, s.seq.Next()); err != nil {
		s.log.WithError(err).Warn("trader login request failed")
	}
}

func (s *TradeSession) queryInvestor() {
	s.mu.Lock()
	req := &ustp.QryUserInvestor{BrokerID: s.brokerID, UserID: s.userID}
	s.mu.Unlock()

	if err := s.api.ReqQryUserInvestor(req, s.seq.Next()); err != nil {
		s.log.WithError(err).Warn("investor query failed")
	}
}

func (s *TradeSession) queryInstruments() {
	if err := s.api.ReqQryInstrument(&ustp.QryInstrument{}, s.seq.Next()); err != nil {
		s.log.WithError(err).Warn("instrument query failed")
	}
}

// OnFrontConnected implements ustp.TraderHandler. Authentication runs
// first when an auth code was supplied; login must not start before it
// completes.
func (s *TradeSession) OnFrontConnected() {
	s.sink.OnLog("trader front connected")

	s.mu.Lock()
	authCode := s.authCode
	s.mu.Unlock()

	if authCode != "" {
		s.authenticate()
	} else {
		s.login()
	}
}

// OnFrontDisconnected clears the login flag only.
func (s *TradeSession) OnFrontDisconnected(reason int) {
	s.mu.Lock()
	s.loggedIn = false
	s.mu.Unlock()
	s.sink.OnLog(fmt.Sprintf("trader front disconnected, reason %d", reason))
}

// OnRspUserCertification proceeds to login on success and halts on
// failure; there is no automatic retry.
func (s *TradeSession) OnRspUserCertification(err *ustp.RspError, requestID int, last bool) {
	if !err.OK() {
		s.sink.OnError("trader authentication failed", err)
		return
	}

	s.mu.Lock()
	s.authenticated = true
	s.mu.Unlock()
	s.sink.OnLog("trader authentication succeeded")
	s.login()
}

// OnRspUserLogin adopts the vendor's last known local order id as the
// allocator floor on success, then resolves the investor. Failure
// latches the permanent login lockout.
func (s *TradeSession) OnRspUserLogin(rsp *ustp.RspUserLogin, err *ustp.RspError, requestID int, last bool) {
	if !err.OK() {
		s.mu.Lock()
		s.loginFailed = true
		s.mu.Unlock()
		s.sink.OnError("trader login failed", err)
		return
	}

	if rsp != nil && rsp.MaxOrderLocalID != "" {
		if floor, perr := ids.ParseLocalID(rsp.MaxOrderLocalID); perr == nil {
			s.allocator.Adopt(floor)
		} else {
			s.log.WithError(perr).Warn("ignoring unparseable max order local id")
		}
	}

	s.mu.Lock()
	s.loggedIn = true
	s.mu.Unlock()
	s.sink.OnLog("trader login succeeded")

	s.queryInvestor()
}

// OnRspSettlementInfoConfirm is the alternate entry into the instrument
// query: fronts that require a settlement confirmation deliver it
// instead of letting the investor query chain proceed.
func (s *TradeSession) OnRspSettlementInfoConfirm(err *ustp.RspError, requestID int, last bool) {
	if !err.OK() {
		s.sink.OnError("settlement confirmation failed", err)
		return
	}
	s.sink.OnLog("settlement information confirmed")
	s.queryInstruments()
}

// OnRspQryUserInvestor captures the investor id, then schedules the
// instrument query after the mandated cooldown. The delay runs on a
// timer so callback delivery stays responsive.
func (s *TradeSession) OnRspQryUserInvestor(rsp *ustp.RspUserInvestor, err *ustp.RspError, requestID int, last bool) {
	if !err.OK() {
		s.sink.OnError("investor query failed", err)
		return
	}
	if rsp == nil {
		return
	}

	s.mu.Lock()
	s.investorID = rsp.InvestorID
	s.mu.Unlock()
	s.sink.OnLog("investor resolved")

	s.afterFunc(instrumentQueryDelay, s.queryInstruments)
}

// OnRspQryInstrument translates one streamed instrument record. Product
// kind is derived from which optional fields are populated; the options
// type code marks an option, a populated second leg marks a spread.
func (s *TradeSession) OnRspQryInstrument(rsp *ustp.InstrumentField, err *ustp.RspError, requestID int, last bool) {
	if !err.OK() {
		s.sink.OnError("instrument query failed", err)
		return
	}
	if rsp == nil {
		return
	}

	exchange, ok := exchangeFromUSTP[rsp.ExchangeID]
	if !ok {
		s.log.WithFields(logger.Fields{"symbol": rsp.InstrumentID, "exchange": rsp.ExchangeID}).Warn("instrument on unknown exchange dropped")
		return
	}

	optionKind, isOption := optionKindFromUSTP[rsp.OptionsType]

	var product models.Product
	switch {
	case isOption:
		product = models.ProductOption
	case rsp.InstrumentID2 != "":
		product = models.ProductSpread
	default:
		product = models.ProductFutures
	}

	contract := models.ContractData{
		Symbol:    rsp.InstrumentID,
		Exchange:  exchange,
		Name:      rsp.InstrumentName,
		Size:      rsp.VolumeMultiple,
		PriceTick: rsp.PriceTick,
		Product:   product,
	}

	if product == models.ProductOption {
		// CZCE codes the call/put side into the product id's last
		// character; strip it to recover the shared portfolio key.
		// Other exchanges keep the product id verbatim.
		if exchange == models.ExchangeCZCE && len(rsp.ProductID) > 0 {
			contract.OptionPortfolio = rsp.ProductID[:len(rsp.ProductID)-1]
		} else {
			contract.OptionPortfolio = rsp.ProductID
		}
		contract.OptionUnderlying = rsp.UnderlyingInstrID
		contract.OptionKind = optionKind
		contract.OptionStrike = rsp.StrikePrice
		contract.OptionIndex = fmt.Sprintf("%v", rsp.StrikePrice)
		if expiry, perr := time.ParseInLocation(dateLayout, rsp.ExpireDate, chinaTZ); perr == nil {
			contract.OptionExpiry = expiry
		}
	}

	s.sink.OnContract(contract)
	s.registry.Put(contract)

	if last {
		s.sink.OnLog("instrument query completed")
	}
}

// OnRspOrderInsert synthesizes a terminal REJECTED order from the echoed
// request before surfacing the error; no SUBMITTING state necessarily
// predates it on this path.
func (s *TradeSession) OnRspOrderInsert(order *ustp.InputOrder, err *ustp.RspError, requestID int, last bool) {
	if err.OK() {
		return
	}

	if order != nil {
		exchange := exchangeFromUSTP[order.ExchangeID]
		if contract, ok := s.registry.Get(order.InstrumentID); ok {
			exchange = contract.Exchange
		}
		s.sink.OnOrder(models.OrderData{
			Symbol:    order.InstrumentID,
			Exchange:  exchange,
			OrderID:   order.UserOrderLocalID,
			Direction: directionFromUSTP[order.Direction],
			Offset:    offsetFromUSTP[order.OffsetFlag],
			Price:     order.LimitPrice,
			Volume:    float64(order.Volume),
			Status:    models.StatusRejected,
		})
	}

	s.sink.OnError("order rejected", err)
}

// OnRspOrderAction surfaces cancel rejections; the original order's
// state is unaffected by a failed cancel, so nothing is synthesized.
func (s *TradeSession) OnRspOrderAction(action *ustp.OrderAction, err *ustp.RspError, requestID int, last bool) {
	if err.OK() {
		return
	}
	s.sink.OnError("order cancel rejected", err)
}

// OnRtnOrder publishes a full-replacement order state and keeps the
// allocator floor above every order id observed on the wire.
func (s *TradeSession) OnRtnOrder(order *ustp.OrderField) {
	status, ok := statusFromUSTP[order.OrderStatus]
	if !ok {
		s.log.WithFields(logger.Fields{"order_id": order.UserOrderLocalID, "status": order.OrderStatus}).Warn("order with unmapped status dropped")
		return
	}

	ts, err := parseExchangeTime(order.InsertDate, order.InsertTime)
	if err != nil {
		ts = time.Time{}
	}

	if n, perr := ids.ParseLocalID(order.UserOrderLocalID); perr == nil {
		s.allocator.Raise(n)
	}

	s.sink.OnOrder(models.OrderData{
		Symbol:    order.InstrumentID,
		Exchange:  exchangeFromUSTP[order.ExchangeID],
		OrderID:   order.UserOrderLocalID,
		Direction: directionFromUSTP[order.Direction],
		Offset:    offsetFromUSTP[order.OffsetFlag],
		Price:     order.LimitPrice,
		Volume:    order.Volume,
		Traded:    order.VolumeTraded,
		Status:    status,
		Timestamp: ts,
	})
	metrics.IncrementOrder(order.ExchangeID)
}

// OnRtnTrade suppresses duplicate deliveries by trade id; the sink sees
// each fill at most once per session lifetime.
func (s *TradeSession) OnRtnTrade(trade *ustp.TradeField) {
	s.mu.Lock()
	if _, seen := s.tradeIDs[trade.TradeID]; seen {
		s.mu.Unlock()
		metrics.IncrementDropped("trade_duplicate")
		return
	}
	s.tradeIDs[trade.TradeID] = struct{}{}
	s.mu.Unlock()

	ts, err := parseExchangeTime(trade.TradeDate, trade.TradeTime)
	if err != nil {
		ts = time.Time{}
	}

	s.sink.OnTrade(models.TradeData{
		Symbol:    trade.InstrumentID,
		Exchange:  exchangeFromUSTP[trade.ExchangeID],
		OrderID:   trade.UserOrderLocalID,
		TradeID:   trade.TradeID,
		Direction: directionFromUSTP[trade.Direction],
		Offset:    offsetFromUSTP[trade.OffsetFlag],
		Price:     trade.TradePrice,
		Volume:    trade.TradeVolume,
		Timestamp: ts,
	})
	metrics.IncrementTrade(trade.ExchangeID)
}

// OnRspQryInvestorPosition accumulates streamed records per
// (symbol, direction), carrying cost forward within the query cycle, and
// flushes the set on the terminal record. Records whose symbol has no
// registered contract cannot be exchange-qualified and are dropped.
func (s *TradeSession) OnRspQryInvestorPosition(rsp *ustp.InvestorPositionField, err *ustp.RspError, requestID int, last bool) {
	if !err.OK() {
		s.sink.OnError("position query failed", err)
		return
	}

	s.mu.Lock()
	if rsp != nil {
		if contract, ok := s.registry.Get(rsp.InstrumentID); ok {
			key := fmt.Sprintf("%s.%c", rsp.InstrumentID, rsp.Direction)
			position, ok := s.positions[key]
			if !ok {
				position = &models.PositionData{
					Symbol:    rsp.InstrumentID,
					Exchange:  contract.Exchange,
					Direction: directionFromUSTP[rsp.Direction],
				}
				s.positions[key] = position
			}

			position.YdVolume = rsp.YdPosition

			cost := position.Price * position.Volume
			position.Volume += rsp.Position
			if position.Volume != 0 {
				cost += rsp.PositionCost
				position.Price = cost / position.Volume
			}

			position.Frozen += rsp.FrozenPosition
		}
	}

	if !last {
		s.mu.Unlock()
		return
	}

	flushed := make([]models.PositionData, 0, len(s.positions))
	for _, p := range s.positions {
		flushed = append(flushed, *p)
	}
	s.positions = make(map[string]*models.PositionData)
	s.mu.Unlock()

	for _, p := range flushed {
		s.sink.OnPosition(p)
	}
}

// OnRspQryInvestorAccount publishes the single-record funds snapshot.
func (s *TradeSession) OnRspQryInvestorAccount(rsp *ustp.InvestorAccountField, err *ustp.RspError, requestID int, last bool) {
	if !err.OK() {
		s.sink.OnError("account query failed", err)
		return
	}
	if rsp == nil {
		return
	}

	s.sink.OnAccount(models.AccountData{
		AccountID: rsp.AccountID,
		Balance:   rsp.PreBalance,
		Frozen:    rsp.LongMargin + rsp.ShortMargin,
	})
}

// OnRspError surfaces request-level rejections.
func (s *TradeSession) OnRspError(err *ustp.RspError, requestID int, last bool) {
	s.sink.OnError("trader request failed", err)
}

// SendOrder submits an order and returns its qualified identifier.
// Offsets without a protocol mapping are rejected locally, before any
// network round-trip, with an empty result. A SUBMITTING order is
// published optimistically; the authoritative update with the same local
// id replaces it.
func (s *TradeSession) SendOrder(req models.OrderRequest) string {
	offsetFlag, ok := offsetToUSTP[req.Offset]
	if !ok {
		s.sink.OnLog(fmt.Sprintf("unsupported offset %q", req.Offset))
		return ""
	}

	orderID := s.allocator.Next()

	s.mu.Lock()
	input := &ustp.InputOrder{
		InstrumentID:     req.Symbol,
		ExchangeID:       string(req.Exchange),
		BrokerID:         s.brokerID,
		InvestorID:       s.investorID,
		UserID:           s.userID,
		UserOrderLocalID: orderID,
		LimitPrice:       req.Price,
		Volume:           int(req.Volume),
		MinVolume:        1,
		OrderPriceType:   orderTypeToUSTP[req.Type],
		Direction:        directionToUSTP[req.Direction],
		OffsetFlag:       offsetFlag,
		HedgeFlag:        ustp.HedgeFlagSpeculation,
		TimeCondition:    ustp.TimeConditionGFD,
		VolumeCondition:  ustp.VolumeConditionAny,
		ForceCloseReason: ustp.ForceCloseReasonNotForced,
		IsAutoSuspend:    0,
	}
	s.mu.Unlock()

	// Immediate order types ride a limit-price order with the matching
	// time/volume conditions, regardless of the declared price type.
	switch req.Type {
	case models.OrderTypeFAK:
		input.OrderPriceType = ustp.PriceTypeLimit
		input.TimeCondition = ustp.TimeConditionIOC
		input.VolumeCondition = ustp.VolumeConditionAny
	case models.OrderTypeFOK:
		input.OrderPriceType = ustp.PriceTypeLimit
		input.TimeCondition = ustp.TimeConditionIOC
		input.VolumeCondition = ustp.VolumeConditionComplete
	}

	if err := s.api.ReqOrderInsert(input, s.seq.Next()); err != nil {
		s.log.WithError(err).WithFields(logger.Fields{"order_id": orderID}).Warn("order insert failed")
	}

	s.sink.OnOrder(req.CreateOrderData(orderID))

	return QualifiedOrderID(orderID)
}

// CancelOrder submits a deletion action. The action carries its own
// local id from the same allocator sequence, distinct from the order id
// being cancelled.
func (s *TradeSession) CancelOrder(req models.CancelRequest) {
	actionID := s.allocator.Next()

	s.mu.Lock()
	action := &ustp.OrderAction{
		InstrumentID:           req.Symbol,
		ExchangeID:             string(req.Exchange),
		BrokerID:               s.brokerID,
		InvestorID:             s.investorID,
		UserID:                 s.userID,
		UserOrderLocalID:       req.OrderID,
		UserOrderActionLocalID: actionID,
		ActionFlag:             ustp.ActionFlagDelete,
	}
	s.mu.Unlock()

	if err := s.api.ReqOrderAction(action, s.seq.Next()); err != nil {
		s.log.WithError(err).WithFields(logger.Fields{"order_id": req.OrderID}).Warn("order cancel failed")
	}
}

// QueryAccount requests the funds snapshot. A missing investor id is a
// precondition not yet met, not an error.
func (s *TradeSession) QueryAccount() {
	s.mu.Lock()
	if s.investorID == "" {
		s.mu.Unlock()
		return
	}
	req := &ustp.QryInvestorAccount{
		BrokerID:   s.brokerID,
		InvestorID: s.investorID,
		UserID:     s.userID,
	}
	s.mu.Unlock()

	if !s.queryLimiter.Allow() {
		return
	}
	if err := s.api.ReqQryInvestorAccount(req, s.seq.Next()); err != nil {
		s.log.WithError(err).Warn("account query failed")
	}
}

// QueryPosition requests the position table. An empty contract registry
// means positions cannot be exchange-qualified yet; skip quietly.
func (s *TradeSession) QueryPosition() {
	if s.registry.Len() == 0 {
		return
	}

	s.mu.Lock()
	req := &ustp.QryInvestorPosition{
		BrokerID:   s.brokerID,
		InvestorID: s.investorID,
		UserID:     s.userID,
	}
	s.mu.Unlock()

	if !s.queryLimiter.Allow() {
		return
	}
	if err := s.api.ReqQryInvestorPosition(req, s.seq.Next()); err != nil {
		s.log.WithError(err).Warn("position query failed")
	}
}

// QualifiedOrderID prefixes a local order id with the gateway name.
func QualifiedOrderID(orderID string) string {
	return strings.Join([]string{GatewayName, orderID}, ".")
}
