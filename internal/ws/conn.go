package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Conn is one portal session.
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	hub    *Hub
	userID string
	subs   map[string]bool
}

func NewConn(ws *websocket.Conn, hub *Hub, userID string) *Conn {
	return &Conn{
		ws:     ws,
		send:   make(chan []byte, 256),
		hub:    hub,
		userID: userID,
		subs:   make(map[string]bool),
	}
}

// enqueue never blocks. It fails once the session is unregistered.
func (c *Conn) enqueue(msg []byte) bool {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.conns[c] {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// ReadPump reads client messages until the socket closes.
func (c *Conn) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Error("WebSocket error", zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.log.Warn("Failed to parse message", zap.Error(err))
			continue
		}
		c.handle(ctx, msg)
	}
}

// WritePump writes queued messages and keeps the socket alive with pings.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type clientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Seq     int64  `json:"seq"`
	Since   int64  `json:"since"`
}

func (c *Conn) handle(ctx context.Context, msg clientMessage) {
	switch msg.Type {
	case "subscribe":
		if !c.hub.Subscribe(c, msg.Channel) {
			c.sendAck("rejected", msg.Channel)
			return
		}
		c.sendAck("subscribed", msg.Channel)
	case "unsubscribe":
		c.hub.Unsubscribe(c, msg.Channel)
		c.sendAck("unsubscribed", msg.Channel)
	case "ack":
		if msg.Channel != "" && msg.Seq > 0 {
			c.hub.acknowledge(ctx, c, msg.Channel, msg.Seq)
		}
	case "resume":
		if c.subs[msg.Channel] && msg.Since >= 0 {
			c.hub.resume(ctx, c, msg.Channel, msg.Since)
		}
	case "ping":
		c.sendAck("pong", "")
	default:
		c.hub.log.Warn("Unknown message type", zap.String("type", msg.Type))
	}
}

func (c *Conn) sendAck(kind, channel string) {
	ack := map[string]interface{}{"type": "ack", "ack": kind}
	if channel != "" {
		ack["channel"] = channel
	}
	msg, _ := json.Marshal(ack)
	c.enqueue(msg)
}
