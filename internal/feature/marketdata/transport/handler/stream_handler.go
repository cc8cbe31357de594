package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"market_backend/internal/feature/marketdata/domain/entity"
	"market_backend/internal/feature/marketdata/stream"
	"market_backend/internal/feature/marketdata/transport/http/dto"
	jwtmw "market_backend/internal/platform/jwt"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// StreamSupervisor couples subscription bookkeeping with feed lifecycle.
type StreamSupervisor interface {
	Connect(sub stream.Subscriber)
	Subscribe(sub stream.Subscriber, key entity.SubscriptionKey) bool
	Unsubscribe(sub stream.Subscriber, key entity.SubscriptionKey) bool
	Disconnect(sub stream.Subscriber) []entity.SubscriptionKey
}

// StreamHandler upgrades clients to websockets and relays live candles.
type StreamHandler struct {
	sup      StreamSupervisor
	upgrader websocket.Upgrader
}

// NewStreamHandler returns a handler accepting any origin; CORS is enforced by the router.
func NewStreamHandler(sup StreamSupervisor) *StreamHandler {
	return &StreamHandler{
		sup: sup,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Serve はWebSocketへアップグレードし、購読メッセージを処理します。
//
// エンドポイント例:
// GET /api/v1/market-data/ws
func (h *StreamHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		slog.Warn("websocket upgrade failed", "remote", c.ClientIP(), "error", err)
		return
	}

	client := newWSClient(conn, jwtmw.UserID(c))
	h.sup.Connect(client)
	slog.Info("websocket client connected", "client", client.id, "user", client.userID, "remote", c.ClientIP())

	go client.writePump()
	_ = client.enqueueJSON(dto.ConnectionStatus{Status: dto.StatusConnected, Message: dto.ConnectedMessage})

	h.readPump(client)
}

func (h *StreamHandler) readPump(client *wsClient) {
	defer func() {
		orphaned := h.sup.Disconnect(client)
		_ = client.Close()
		slog.Info("websocket client disconnected", "client", client.id, "orphaned_streams", len(orphaned))
	}()

	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "client", client.id, "error", err)
			}
			return
		}
		h.handleMessage(client, data)
	}
}

func (h *StreamHandler) handleMessage(client *wsClient, data []byte) {
	msg, err := parseClientMessage(data)
	if err != nil {
		slog.Warn("invalid websocket message", "client", client.id, "error", err)
		_ = client.enqueueJSON(dto.ErrorResponse{Error: dto.InvalidMessageFormat, Detail: err.Error()})
		return
	}

	key := entity.NewSubscriptionKey(msg.Symbol, entity.Interval(msg.Interval))
	ack := dto.SubscriptionAck{Symbol: msg.Symbol, Interval: msg.Interval}
	switch msg.Action {
	case dto.ActionSubscribe:
		first := h.sup.Subscribe(client, key)
		slog.Info("client subscribed", "client", client.id, "key", key.String(), "first", first)
		ack.Type = dto.TypeSubscribed
	case dto.ActionUnsubscribe:
		orphaned := h.sup.Unsubscribe(client, key)
		slog.Info("client unsubscribed", "client", client.id, "key", key.String(), "orphaned", orphaned)
		ack.Type = dto.TypeUnsubscribed
	}
	_ = client.enqueueJSON(ack)
}

func parseClientMessage(data []byte) (dto.ClientMessage, error) {
	var msg dto.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	switch msg.Action {
	case dto.ActionSubscribe, dto.ActionUnsubscribe:
	default:
		return msg, fmt.Errorf("unknown action %q", msg.Action)
	}
	if msg.Symbol == "" {
		return msg, errors.New("symbol is required")
	}
	if !entity.Interval(msg.Interval).Valid() {
		return msg, fmt.Errorf("invalid interval %q", msg.Interval)
	}
	return msg, nil
}
