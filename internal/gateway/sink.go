// Package gateway implements the FEMAS session pair (market data and
// trading), their translation into the normalized domain model, and the
// facade composing them.
package gateway

import (
	"femasflow/internal/models"
	"femasflow/internal/ustp"
)

// GatewayName qualifies identifiers emitted by this gateway.
const GatewayName = "FEMAS"

// EventSink receives the normalized output of both sessions. Callbacks
// arrive from the two session goroutines concurrently; implementations
// must be safe for that.
type EventSink interface {
	OnTick(tick models.TickData)
	OnOrder(order models.OrderData)
	OnTrade(trade models.TradeData)
	OnPosition(position models.PositionData)
	OnAccount(account models.AccountData)
	OnContract(contract models.ContractData)
	OnLog(msg string)
	OnError(msg string, err *ustp.RspError)
}
