package models

import "time"

// SubscribeRequest asks for live market data on one instrument.
type SubscribeRequest struct {
	Symbol   string
	Exchange Exchange
}

// OrderRequest describes a new order to be submitted.
type OrderRequest struct {
	Symbol    string
	Exchange  Exchange
	Direction Direction
	Offset    Offset
	Type      OrderType
	Price     float64
	Volume    float64
}

// CreateOrderData builds the optimistic SUBMITTING order published right
// after submission; the authoritative update with the same OrderID
// replaces it once the exchange reports back.
func (r OrderRequest) CreateOrderData(orderID string) OrderData {
	return OrderData{
		Symbol:    r.Symbol,
		Exchange:  r.Exchange,
		OrderID:   orderID,
		Direction: r.Direction,
		Offset:    r.Offset,
		Price:     r.Price,
		Volume:    r.Volume,
		Status:    StatusSubmitting,
		Timestamp: time.Now(),
	}
}

// CancelRequest asks for deletion of a previously submitted order.
type CancelRequest struct {
	Symbol   string
	Exchange Exchange
	OrderID  string
}
