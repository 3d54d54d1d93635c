// Package channel carries gateway events from session callbacks to the
// consumers (publisher, recorder, application logic) over buffered
// channels. Sends never block a callback: when a consumer falls behind,
// events are dropped and counted.
package channel

import (
	"sync"

	"femasflow/internal/metrics"
	"femasflow/internal/models"
	"femasflow/internal/ustp"
	"femasflow/logger"
)

// LogEvent is a human-readable gateway notice.
type LogEvent struct {
	Message string `json:"message"`
}

// ErrorEvent pairs a gateway notice with the protocol error behind it.
type ErrorEvent struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Detail  string `json:"detail"`
}

// Stats counts traffic through the event channels.
type Stats struct {
	TicksSent        int64
	TicksDropped     int64
	OrdersSent       int64
	OrdersDropped    int64
	TradesSent       int64
	TradesDropped    int64
	PositionsSent    int64
	PositionsDropped int64
	AccountsSent     int64
	AccountsDropped  int64
	ContractsSent    int64
	ContractsDropped int64
}

// Events is a buffered-channel event sink. It implements
// gateway.EventSink.
type Events struct {
	Ticks     chan models.TickData
	Orders    chan models.OrderData
	Trades    chan models.TradeData
	Positions chan models.PositionData
	Accounts  chan models.AccountData
	Contracts chan models.ContractData
	Logs      chan LogEvent
	Errors    chan ErrorEvent

	log       *logger.Entry
	statsMu   sync.Mutex
	stats     Stats
	closeOnce sync.Once
}

// NewEvents sizes every event channel with the same buffer.
func NewEvents(buffer int) *Events {
	if buffer <= 0 {
		buffer = 1000
	}

	e := &Events{
		Ticks:     make(chan models.TickData, buffer),
		Orders:    make(chan models.OrderData, buffer),
		Trades:    make(chan models.TradeData, buffer),
		Positions: make(chan models.PositionData, buffer),
		Accounts:  make(chan models.AccountData, buffer),
		Contracts: make(chan models.ContractData, buffer),
		Logs:      make(chan LogEvent, buffer),
		Errors:    make(chan ErrorEvent, buffer),
		log:       logger.GetLogger().WithComponent("channels"),
	}

	e.log.WithFields(logger.Fields{"buffer": buffer}).Info("event channels initialized")
	return e
}

func (e *Events) OnTick(tick models.TickData) {
	select {
	case e.Ticks <- tick:
		e.count(func(s *Stats) { s.TicksSent++ })
	default:
		e.count(func(s *Stats) { s.TicksDropped++ })
		metrics.IncrementDropped("tick_channel_full")
	}
}

func (e *Events) OnOrder(order models.OrderData) {
	select {
	case e.Orders <- order:
		e.count(func(s *Stats) { s.OrdersSent++ })
	default:
		e.count(func(s *Stats) { s.OrdersDropped++ })
		metrics.IncrementDropped("order_channel_full")
	}
}

func (e *Events) OnTrade(trade models.TradeData) {
	select {
	case e.Trades <- trade:
		e.count(func(s *Stats) { s.TradesSent++ })
	default:
		e.count(func(s *Stats) { s.TradesDropped++ })
		metrics.IncrementDropped("trade_channel_full")
	}
}

func (e *Events) OnPosition(position models.PositionData) {
	select {
	case e.Positions <- position:
		e.count(func(s *Stats) { s.PositionsSent++ })
	default:
		e.count(func(s *Stats) { s.PositionsDropped++ })
		metrics.IncrementDropped("position_channel_full")
	}
}

func (e *Events) OnAccount(account models.AccountData) {
	select {
	case e.Accounts <- account:
		e.count(func(s *Stats) { s.AccountsSent++ })
	default:
		e.count(func(s *Stats) { s.AccountsDropped++ })
		metrics.IncrementDropped("account_channel_full")
	}
}

func (e *Events) OnContract(contract models.ContractData) {
	select {
	case e.Contracts <- contract:
		e.count(func(s *Stats) { s.ContractsSent++ })
	default:
		e.count(func(s *Stats) { s.ContractsDropped++ })
		metrics.IncrementDropped("contract_channel_full")
	}
}

func (e *Events) OnLog(msg string) {
	select {
	case e.Logs <- LogEvent{Message: msg}:
	default:
	}
}

func (e *Events) OnError(msg string, err *ustp.RspError) {
	event := ErrorEvent{Message: msg}
	if err != nil {
		event.Code = err.Code
		event.Detail = err.Message
	}
	select {
	case e.Errors <- event:
	default:
	}
}

func (e *Events) count(f func(*Stats)) {
	e.statsMu.Lock()
	f(&e.stats)
	e.statsMu.Unlock()
}

// GetStats copies the current traffic counters.
func (e *Events) GetStats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// Close shuts every channel so range-based consumers terminate.
// Idempotent; callers must stop producing first.
func (e *Events) Close() {
	e.closeOnce.Do(func() {
		close(e.Ticks)
		close(e.Orders)
		close(e.Trades)
		close(e.Positions)
		close(e.Accounts)
		close(e.Contracts)
		close(e.Logs)
		close(e.Errors)
		e.log.Info("event channels closed")
	})
}
