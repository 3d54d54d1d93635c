package gateway

import (
	"time"

	"femasflow/internal/models"
	"femasflow/internal/ustp"
)

var statusFromUSTP = map[byte]models.Status{
	ustp.OrderSubmitted:          models.StatusSubmitting,
	ustp.OrderAccepted:           models.StatusSubmitting,
	ustp.OrderRejected:           models.StatusRejected,
	ustp.OrderNoTradeQueueing:    models.StatusNotTraded,
	ustp.OrderPartTradedQueueing: models.StatusPartTraded,
	ustp.OrderAllTraded:          models.StatusAllTraded,
	ustp.OrderCanceled:           models.StatusCancelled,
}

var directionToUSTP = map[models.Direction]byte{
	models.DirectionLong:  ustp.DirectionBuy,
	models.DirectionShort: ustp.DirectionSell,
}

var directionFromUSTP = reverseBytes(directionToUSTP)

// CLOSE_TODAY and CLOSE_YESTERDAY are deliberately cross-wired to the
// opposite protocol codes. Carried over verbatim from the broker-side
// behaviour; do not straighten without confirmation against exchange
// documentation.
var offsetToUSTP = map[models.Offset]byte{
	models.OffsetOpen:           ustp.OffsetFlagOpen,
	models.OffsetClose:          ustp.OffsetFlagClose,
	models.OffsetCloseToday:     ustp.OffsetFlagCloseYesterday,
	models.OffsetCloseYesterday: ustp.OffsetFlagCloseToday,
}

var offsetFromUSTP = reverseOffsets(offsetToUSTP)

var orderTypeToUSTP = map[models.OrderType]byte{
	models.OrderTypeLimit:  ustp.PriceTypeLimit,
	models.OrderTypeMarket: ustp.PriceTypeAny,
}

var exchangeFromUSTP = map[string]models.Exchange{
	"CFFEX": models.ExchangeCFFEX,
	"SHFE":  models.ExchangeSHFE,
	"CZCE":  models.ExchangeCZCE,
	"DCE":   models.ExchangeDCE,
	"INE":   models.ExchangeINE,
}

var optionKindFromUSTP = map[byte]models.OptionKind{
	ustp.OptionsTypeCall: models.OptionKindCall,
	ustp.OptionsTypePut:  models.OptionKindPut,
}

func reverseBytes(m map[models.Direction]byte) map[byte]models.Direction {
	out := make(map[byte]models.Direction, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

func reverseOffsets(m map[models.Offset]byte) map[byte]models.Offset {
	out := make(map[byte]models.Offset, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// chinaTZ is the civil calendar all five exchanges quote in.
var chinaTZ = loadChinaTZ()

func loadChinaTZ() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

const (
	dateLayout     = "20060102"
	dateTimeLayout = "20060102 15:04:05"
)

// parseExchangeTime composes a date ("20060102") and a time of day
// ("15:04:05") into an exchange-local timestamp.
func parseExchangeTime(date, tod string) (time.Time, error) {
	return time.ParseInLocation(dateTimeLayout, date+" "+tod, chinaTZ)
}
