package gateway

import (
	"sync"
	"time"

	"femasflow/config"
	"femasflow/internal/ids"
	"femasflow/internal/models"
	"femasflow/internal/registry"
	"femasflow/internal/ustp"
	"femasflow/logger"
)

// Gateway is the single entry point to the exchange: one market-data
// session, one trading session, a shared contract registry and a shared
// local-order-id allocator, plus the timer-driven query poller.
type Gateway struct {
	cfg      *config.Config
	log      *logger.Entry
	registry *registry.ContractRegistry

	md     *MarketDataSession
	td     *TradeSession
	poller *QueryPoller

	startPolling sync.Once
	stopPolling  chan struct{}
	closeOnce    sync.Once
}

// New assembles the gateway from its two transports and the event sink.
// The transports are built through factories because each one needs its
// session as the callback handler. Nothing connects until Connect is
// called.
func New(cfg *config.Config, newMD func(ustp.MarketDataHandler) ustp.MarketDataAPI, newTD func(ustp.TraderHandler) ustp.TraderAPI, sink EventSink) *Gateway {
	reg := registry.NewContractRegistry()
	alloc := ids.NewOrderIDAllocator()

	td := NewTradeSession(nil, sink, reg, alloc, cfg.Gateway.FlowPath, cfg.Gateway.QueriesPerSecond)
	td.api = newTD(td)
	md := NewMarketDataSession(nil, sink, reg, cfg.Gateway.FlowPath)
	md.api = newMD(md)

	return &Gateway{
		cfg:      cfg,
		log:      logger.GetLogger().WithComponent("gateway"),
		registry: reg,
		md:       md,
		td:       td,
		poller:   NewQueryPoller(td.QueryAccount, td.QueryPosition),
	}
}

// Connect brings up the trading session first, then market data, and
// starts the polling timer once. Safe to call again after a disconnect;
// the sessions re-run only the parts that need re-running.
func (g *Gateway) Connect() error {
	gw := g.cfg.Gateway

	if err := g.td.Connect(
		config.NormalizeAddress(gw.TdAddress),
		gw.UserID, gw.Password, gw.BrokerID, gw.AuthCode, gw.AppID,
	); err != nil {
		return err
	}
	if err := g.md.Connect(
		config.NormalizeAddress(gw.MdAddress),
		gw.UserID, gw.Password, gw.BrokerID,
	); err != nil {
		return err
	}

	g.startPolling.Do(func() {
		g.stopPolling = make(chan struct{})
		go g.pollLoop(g.cfg.Polling.Interval())
	})
	return nil
}

func (g *Gateway) pollLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.poller.OnTimer()
		case <-g.stopPolling:
			return
		}
	}
}

// Subscribe registers interest in a symbol's market data.
func (g *Gateway) Subscribe(req models.SubscribeRequest) {
	g.md.Subscribe(req)
}

// SendOrder submits an order and returns its gateway-qualified id, or
// the empty string when the request is rejected locally.
func (g *Gateway) SendOrder(req models.OrderRequest) string {
	return g.td.SendOrder(req)
}

// CancelOrder submits a cancel for a previously sent order.
func (g *Gateway) CancelOrder(req models.CancelRequest) {
	g.td.CancelOrder(req)
}

// QueryAccount requests a funds snapshot outside the polling cadence.
func (g *Gateway) QueryAccount() {
	g.td.QueryAccount()
}

// QueryPosition requests a position table outside the polling cadence.
func (g *Gateway) QueryPosition() {
	g.td.QueryPosition()
}

// Registry exposes the contract cache for read access.
func (g *Gateway) Registry() *registry.ContractRegistry {
	return g.registry
}

// Close stops polling and tears down both sessions. Idempotent.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		if g.stopPolling != nil {
			close(g.stopPolling)
		}
		g.md.Close()
		g.td.Close()
		g.log.Info("gateway closed")
	})
}
