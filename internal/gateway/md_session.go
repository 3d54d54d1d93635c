package gateway

import (
	"fmt"
	"sync"
	"time"

	"femasflow/internal/ids"
	"femasflow/internal/metrics"
	"femasflow/internal/models"
	"femasflow/internal/registry"
	"femasflow/internal/ustp"
	"femasflow/logger"
)

// MarketDataSession owns the market-data connection lifecycle
// (connect, login, subscribe) and translates depth quotes into ticks.
// It implements ustp.MarketDataHandler.
type MarketDataSession struct {
	api      ustp.MarketDataAPI
	sink     EventSink
	registry *registry.ContractRegistry
	log      *logger.Entry
	seq      ids.RequestSequencer
	flowPath string

	mu         sync.Mutex
	connected  bool
	loggedIn   bool
	subscribed map[string]struct{}

	userID   string
	password string
	brokerID string
}

// NewMarketDataSession wires a session to its transport, sink and the
// shared contract registry.
func NewMarketDataSession(api ustp.MarketDataAPI, sink EventSink, reg *registry.ContractRegistry, flowPath string) *MarketDataSession {
	return &MarketDataSession{
		api:        api,
		sink:       sink,
		registry:   reg,
		flowPath:   flowPath,
		log:        logger.GetLogger().WithComponent("md_session"),
		subscribed: make(map[string]struct{}),
	}
}

// Connect is idempotent. The first call creates the channel exactly once
// (the vendor layer does not tolerate a repeat), registers the full
// market-data topic range and the front, then inits. Later calls only
// re-issue login when the session is connected but not logged in.
func (s *MarketDataSession) Connect(address, userID, password, brokerID string) error {
	s.mu.Lock()
	s.userID = userID
	s.password = password
	s.brokerID = brokerID
	connected := s.connected
	loggedIn := s.loggedIn
	s.mu.Unlock()

	if !connected {
		if err := s.api.Create(s.flowPath); err != nil {
			return fmt.Errorf("create market-data channel: %w", err)
		}
		if err := s.api.SubscribeMarketDataTopic(ustp.MarketDataTopicID, ustp.ResumeTypeQuick); err != nil {
			return fmt.Errorf("subscribe market-data topic: %w", err)
		}
		s.api.RegisterFront(address)
		if err := s.api.Init(); err != nil {
			return fmt.Errorf("init market-data channel: %w", err)
		}

		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		return nil
	}

	if !loggedIn {
		s.login()
	}
	return nil
}

// Subscribe records the symbol and, when logged in, issues the live
// subscription immediately. Safe in any session state: symbols recorded
// before login are replayed once login succeeds.
func (s *MarketDataSession) Subscribe(req models.SubscribeRequest) {
	s.mu.Lock()
	loggedIn := s.loggedIn
	s.subscribed[req.Symbol] = struct{}{}
	s.mu.Unlock()

	if loggedIn {
		if err := s.api.SubMarketData(req.Symbol); err != nil {
			s.log.WithError(err).WithFields(logger.Fields{"symbol": req.Symbol}).Warn("market-data subscription failed")
		}
	}
}

// Close exits the channel if it was ever created.
func (s *MarketDataSession) Close() {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if connected {
		if err := s.api.Exit(); err != nil {
			s.log.WithError(err).Warn("market-data exit failed")
		}
	}
}

func (s *MarketDataSession) login() {
	s.mu.Lock()
	req := &ustp.ReqUserLogin{
		BrokerID: s.brokerID,
		UserID:   s.userID,
		Password: s.password,
	}
	s.mu.Unlock()

	if err := s.api.ReqUserLogin(req, s.seq.Next()); err != nil {
		s.log.WithError(err).Warn("market-data login request failed")
	}
}

// OnFrontConnected implements ustp.MarketDataHandler.
func (s *MarketDataSession) OnFrontConnected() {
	s.sink.OnLog("market-data front connected")
	s.login()
}

// OnFrontDisconnected clears the login flag. Reconnecting is left to the
// host; the transport reports the next front-connected when it happens.
func (s *MarketDataSession) OnFrontDisconnected(reason int) {
	s.mu.Lock()
	s.loggedIn = false
	s.mu.Unlock()
	s.sink.OnLog(fmt.Sprintf("market-data front disconnected, reason %d", reason))
}

// OnRspUserLogin replays every accumulated subscription on success so
// Subscribe works transparently before and after login.
func (s *MarketDataSession) OnRspUserLogin(rsp *ustp.RspUserLogin, err *ustp.RspError, requestID int, last bool) {
	if !err.OK() {
		s.sink.OnError("market-data login failed", err)
		return
	}

	s.mu.Lock()
	s.loggedIn = true
	symbols := make([]string, 0, len(s.subscribed))
	for sym := range s.subscribed {
		symbols = append(symbols, sym)
	}
	s.mu.Unlock()

	s.sink.OnLog("market-data login succeeded")
	for _, sym := range symbols {
		if subErr := s.api.SubMarketData(sym); subErr != nil {
			s.log.WithError(subErr).WithFields(logger.Fields{"symbol": sym}).Warn("subscription replay failed")
		}
	}
}

// OnRspSubMarketData surfaces subscription rejections only.
func (s *MarketDataSession) OnRspSubMarketData(symbol string, err *ustp.RspError, requestID int, last bool) {
	if err.OK() {
		return
	}
	s.sink.OnError(fmt.Sprintf("market-data subscription failed for %s", symbol), err)
}

// OnRspError surfaces request-level rejections.
func (s *MarketDataSession) OnRspError(err *ustp.RspError, requestID int, last bool) {
	s.sink.OnError("market-data request failed", err)
}

// OnRtnDepthMarketData translates a depth quote into a tick. Quotes for
// symbols without registered contract metadata are not yet actionable
// and are dropped.
func (s *MarketDataSession) OnRtnDepthMarketData(md *ustp.DepthMarketDataField) {
	contract, ok := s.registry.Get(md.InstrumentID)
	if !ok {
		metrics.IncrementDropped("tick_unknown_symbol")
		return
	}

	ts, err := parseExchangeTime(md.TradingDay, md.UpdateTime)
	if err != nil {
		s.log.WithError(err).WithFields(logger.Fields{"symbol": md.InstrumentID}).Warn("unparseable quote timestamp")
		return
	}
	// The sub-second field is in hundredths; keep tenths resolution.
	ts = ts.Add(time.Duration(md.UpdateMillisec/100) * 100 * time.Millisecond)

	s.sink.OnTick(models.TickData{
		Symbol:     md.InstrumentID,
		Exchange:   contract.Exchange,
		Name:       contract.Name,
		Timestamp:  ts,
		Volume:     md.Volume,
		LastPrice:  md.LastPrice,
		OpenPrice:  md.OpenPrice,
		HighPrice:  md.HighestPrice,
		LowPrice:   md.LowestPrice,
		PreClose:   md.PreClosePrice,
		LimitUp:    md.UpperLimitPrice,
		LimitDown:  md.LowerLimitPrice,
		BidPrice1:  md.BidPrice1,
		AskPrice1:  md.AskPrice1,
		BidVolume1: md.BidVolume1,
		AskVolume1: md.AskVolume1,
	})
	metrics.IncrementTick(string(contract.Exchange))
}
