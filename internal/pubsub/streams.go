package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamMaxLen bounds each channel stream. Trimming is approximate.
const StreamMaxLen = 10000

// StreamEvent is an event read back from a channel stream.
type StreamEvent struct {
	Channel   string                 `json:"channel"`
	Sequence  int64                  `json:"seq"`
	Event     map[string]interface{} `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
}

// Streams keeps a replayable copy of bus events in Redis Streams so a
// reconnecting portal session can catch up.
type Streams struct {
	rdb *redis.Client
	log *zap.Logger
	now func() time.Time
}

func NewStreams(rdb *redis.Client, log *zap.Logger) *Streams {
	return &Streams{rdb: rdb, log: log, now: time.Now}
}

func streamKey(channel string) string { return "stream:" + channel }
func seqKey(channel string) string { return "seq:" + channel }
func ackKey(channel, conn string) string {
	return fmt.Sprintf("ack:%s:%s", channel, conn)
}

// PublishEvent appends event to the channel stream and returns its
// sequence number.
func (s *Streams) PublishEvent(ctx context.Context, channel string, event map[string]interface{}) (int64, error) {
	seq, err := s.rdb.Incr(ctx, seqKey(channel)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	id, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(channel),
		MaxLen: StreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"seq":       seq,
			"timestamp": s.now().UTC().Format(time.RFC3339),
			"data":      string(data),
		},
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to add to stream: %w", err)
	}

	s.log.Debug("Published event to stream",
		zap.String("channel", channel),
		zap.Int64("sequence", seq),
		zap.String("stream_id", id),
	)
	return seq, nil
}

// GetLastSequence returns the last sequence a connection acknowledged, or
// zero.
func (s *Streams) GetLastSequence(ctx context.Context, channel, connectionID string) (int64, error) {
	v, err := s.rdb.Get(ctx, ackKey(channel, connectionID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last sequence: %w", err)
	}
	seq, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse sequence: %w", err)
	}
	return seq, nil
}

func (s *Streams) AcknowledgeSequence(ctx context.Context, channel, connectionID string, sequence int64) error {
	if err := s.rdb.Set(ctx, ackKey(channel, connectionID), sequence, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge sequence: %w", err)
	}
	return nil
}

// ReplayEvents returns up to limit events of channel with a sequence
// greater than sinceSeq, oldest first.
func (s *Streams) ReplayEvents(ctx context.Context, channel string, sinceSeq int64, limit int) ([]StreamEvent, error) {
	msgs, err := s.rdb.XRange(ctx, streamKey(channel), "-", "+").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	var events []StreamEvent
	for _, msg := range msgs {
		ev, ok := s.decode(channel, msg)
		if !ok || ev.Sequence <= sinceSeq {
			continue
		}
		events = append(events, ev)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *Streams) decode(channel string, msg redis.XMessage) (StreamEvent, bool) {
	raw, _ := msg.Values["data"].(string)
	var event map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		s.log.Warn("Failed to unmarshal stream event", zap.String("stream_id", msg.ID), zap.Error(err))
		return StreamEvent{}, false
	}
	seqStr, _ := msg.Values["seq"].(string)
	seq, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil {
		return StreamEvent{}, false
	}
	ts, _ := msg.Values["timestamp"].(string)
	at, _ := time.Parse(time.RFC3339, ts)
	return StreamEvent{Channel: channel, Sequence: seq, Event: event, Timestamp: at}, true
}
