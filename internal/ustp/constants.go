// Package ustp defines the boundary to the USTP (FEMAS) vendor SDK:
// the request/callback records exchanged with it, the protocol field
// codes, and a websocket bridge that carries both to an out-of-process
// host for the native library.
package ustp

// Field codes from the USTP data-type headers. Values are single
// characters on the wire.
const (
	DirectionBuy  byte = '0'
	DirectionSell byte = '1'

	OffsetFlagOpen           byte = '0'
	OffsetFlagClose          byte = '1'
	OffsetFlagForceClose     byte = '2'
	OffsetFlagCloseToday     byte = '3'
	OffsetFlagCloseYesterday byte = '4'

	// Command status of an order still inside the exchange gateway.
	OrderSubmitted byte = 'a'
	OrderAccepted  byte = 'b'
	OrderRejected  byte = 'c'

	// Order status once the exchange has it.
	OrderAllTraded           byte = '0'
	OrderPartTradedQueueing  byte = '1'
	OrderPartTradedNotQueue  byte = '2'
	OrderNoTradeQueueing     byte = '3'
	OrderNoTradeNotQueueing  byte = '4'
	OrderCanceled            byte = '5'

	PriceTypeAny   byte = '1'
	PriceTypeLimit byte = '2'

	TimeConditionIOC byte = '1'
	TimeConditionGFD byte = '3'

	VolumeConditionAny      byte = '1'
	VolumeConditionComplete byte = '3'

	ActionFlagDelete byte = '0'

	HedgeFlagSpeculation byte = '1'

	ForceCloseReasonNotForced byte = '0'

	OptionsTypeCall byte = '1'
	OptionsTypePut  byte = '2'
)

// Market-data topic range subscribed on channel creation.
const (
	MarketDataTopicID = 100
	ResumeTypeQuick   = 2
)

// TopicResumeRestart replays all queued messages from the start of the
// trading day; used for the trader private/public/user topics.
const TopicResumeRestart = 0
