package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/juju/collections/set"
	"go.uber.org/zap"

	"adminhub/internal/pubsub"
)

// ReplayLimit caps the events sent back on resume.
const ReplayLimit = 100

// StreamsProvider stores acknowledgements and replays missed events.
type StreamsProvider interface {
	AcknowledgeSequence(ctx context.Context, channel, connectionID string, sequence int64) error
	ReplayEvents(ctx context.Context, channel string, sinceSeq int64, limit int) ([]pubsub.StreamEvent, error)
}

// Hub fans bus events out to portal sessions subscribed to a channel.
// Sessions may only follow the allowed channels.
type Hub struct {
	mu      sync.RWMutex
	conns   map[*Conn]bool
	subs    map[string]map[*Conn]bool
	allowed set.Strings
	publish chan Event
	streams StreamsProvider
	log     *zap.Logger
}

type Event struct {
	Channel string
	Message map[string]interface{}
}

func NewHub(log *zap.Logger, channels ...string) *Hub {
	return &Hub{
		conns:   make(map[*Conn]bool),
		subs:    make(map[string]map[*Conn]bool),
		allowed: set.NewStrings(channels...),
		publish: make(chan Event, 256),
		log:     log,
	}
}

func (h *Hub) SetStreamsProvider(provider StreamsProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams = provider
}

// Run delivers published events until ctx is done. A session whose
// buffer is full is dropped.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-h.publish:
			h.deliver(event)
		}
	}
}

func (h *Hub) deliver(event Event) {
	msg, err := json.Marshal(map[string]interface{}{
		"type":    "event",
		"channel": event.Channel,
		"data":    event.Message,
		"seq":     event.Message["seq"],
	})
	if err != nil {
		h.log.Warn("Failed to marshal event", zap.String("channel", event.Channel), zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*Conn
	for conn := range h.subs[event.Channel] {
		select {
		case conn.send <- msg:
		default:
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range slow {
		h.log.Warn("Dropping slow session", zap.String("user", conn.userID))
		h.unregister(conn)
	}
}

func (h *Hub) Register(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = true
}

func (h *Hub) unregister(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.conns[conn] {
		return
	}
	delete(h.conns, conn)
	close(conn.send)
	for channel := range conn.subs {
		h.removeSub(conn, channel)
	}
}

func (h *Hub) removeSub(conn *Conn, channel string) {
	if subs := h.subs[channel]; subs != nil {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(h.subs, channel)
		}
	}
}

// Subscribe adds conn to channel and reports whether the channel is
// allowed.
func (h *Hub) Subscribe(conn *Conn, channel string) bool {
	if !h.allowed.Contains(channel) {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*Conn]bool)
	}
	h.subs[channel][conn] = true
	conn.subs[channel] = true
	return true
}

func (h *Hub) Unsubscribe(conn *Conn, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeSub(conn, channel)
	delete(conn.subs, channel)
}

// Publish queues an event for delivery. Events are dropped when the queue
// is full.
func (h *Hub) Publish(channel string, message map[string]interface{}) {
	select {
	case h.publish <- Event{Channel: channel, Message: message}:
	default:
		h.log.Warn("Hub publish queue full, dropping event", zap.String("channel", channel))
	}
}

// Subscribers counts the sessions following channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

func (h *Hub) acknowledge(ctx context.Context, conn *Conn, channel string, seq int64) {
	h.mu.RLock()
	streams := h.streams
	h.mu.RUnlock()
	if streams == nil {
		return
	}
	if err := streams.AcknowledgeSequence(ctx, channel, conn.userID, seq); err != nil {
		h.log.Warn("Failed to acknowledge sequence",
			zap.String("channel", channel),
			zap.Int64("sequence", seq),
			zap.Error(err),
		)
	}
}

// resume replays the events of channel newer than sinceSeq to conn.
func (h *Hub) resume(ctx context.Context, conn *Conn, channel string, sinceSeq int64) {
	h.mu.RLock()
	streams := h.streams
	h.mu.RUnlock()
	if streams == nil {
		h.log.Warn("Streams provider not set, cannot resume")
		return
	}

	events, err := streams.ReplayEvents(ctx, channel, sinceSeq, ReplayLimit)
	if err != nil {
		h.log.Error("Failed to replay events", zap.String("channel", channel), zap.Int64("since", sinceSeq), zap.Error(err))
		return
	}
	for _, ev := range events {
		msg, _ := json.Marshal(map[string]interface{}{
			"type":    "event",
			"channel": ev.Channel,
			"seq":     ev.Sequence,
			"data":    ev.Event,
		})
		if !conn.enqueue(msg) {
			h.log.Warn("Session buffer full during replay", zap.String("user", conn.userID))
			return
		}
	}
	h.log.Info("Resumed events",
		zap.String("channel", channel),
		zap.String("user", conn.userID),
		zap.Int64("since", sinceSeq),
		zap.Int("count", len(events)),
	)
}
