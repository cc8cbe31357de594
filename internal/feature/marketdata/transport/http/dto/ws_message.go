package dto

import "market_backend/internal/feature/marketdata/domain/entity"

// Client actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Server message constants.
const (
	StatusConnected      = "connected"
	ConnectedMessage     = "Connected to market data stream"
	TypeSubscribed       = "subscribed"
	TypeUnsubscribed     = "unsubscribed"
	InvalidMessageFormat = "Invalid message format"
)

// ClientMessage is a subscribe/unsubscribe request sent over the websocket.
type ClientMessage struct {
	Action   string `json:"action"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

// ConnectionStatus is sent once right after the upgrade.
type ConnectionStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SubscriptionAck confirms a subscribe or unsubscribe.
type SubscriptionAck struct {
	Type     string `json:"type"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

// PriceUpdateMessage carries one candle update to subscribers.
type PriceUpdateMessage struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Candle   CandleDTO `json:"candle"`
	IsClosed bool      `json:"is_closed"`
}

// NewPriceUpdateMessage maps a domain update to its wire form.
func NewPriceUpdateMessage(u entity.PriceUpdate) PriceUpdateMessage {
	return PriceUpdateMessage{
		Symbol:   u.Key.Symbol,
		Interval: string(u.Key.Interval),
		Candle:   NewCandleDTO(u.Candle),
		IsClosed: u.Closed,
	}
}
