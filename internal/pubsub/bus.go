package pubsub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channels portal sessions may follow. RuntimeChannel carries hand-overs
// to the bot runtime and is never forwarded to sessions.
const (
	ChannelFlows      = "portal:flows"
	ChannelQuestions  = "portal:questions"
	ChannelGrading    = "portal:grading"
	ChannelBroadcasts = "portal:broadcasts"
	RuntimeChannel    = "runtime:broadcasts"
)

// PortalChannels lists the channels a portal session can subscribe to.
var PortalChannels = []string{ChannelFlows, ChannelQuestions, ChannelGrading, ChannelBroadcasts}

type Bus struct {
	rdb     *redis.Client
	log     *zap.Logger
	wsHub   WSHub
	streams *Streams
}

type WSHub interface {
	Publish(channel string, message map[string]interface{})
}

func New(rdb *redis.Client, log *zap.Logger) *Bus {
	return &Bus{
		rdb:     rdb,
		log:     log,
		streams: NewStreams(rdb, log),
	}
}

// SetWSHub sets the WebSocket hub that receives portal events.
func (b *Bus) SetWSHub(hub WSHub) {
	b.wsHub = hub
}

func (b *Bus) Streams() *Streams {
	return b.streams
}

// PublishPortal publishes an event to portal sessions following channel.
func (b *Bus) PublishPortal(ctx context.Context, channel string, event map[string]interface{}) error {
	return b.Publish(ctx, channel, event)
}

// PublishRuntime hands an event over to the bot runtime.
func (b *Bus) PublishRuntime(ctx context.Context, event map[string]interface{}) error {
	return b.Publish(ctx, RuntimeChannel, event)
}

// Publish sends event over Redis pub/sub, appends it to the channel's
// stream and forwards it to the WebSocket hub with its sequence number.
func (b *Bus) Publish(ctx context.Context, channel string, event map[string]interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		b.log.Error("Failed to publish event", zap.String("channel", channel), zap.Error(err))
		return err
	}

	seq, err := b.streams.PublishEvent(ctx, channel, event)
	if err != nil {
		b.log.Warn("Failed to publish to stream", zap.String("channel", channel), zap.Error(err))
	}

	if b.wsHub != nil && channel != RuntimeChannel {
		withSeq := make(map[string]interface{}, len(event)+1)
		for k, v := range event {
			withSeq[k] = v
		}
		withSeq["seq"] = seq
		b.wsHub.Publish(channel, withSeq)
	}

	b.log.Debug("Published event", zap.String("channel", channel), zap.Int64("seq", seq), zap.ByteString("event", data))
	return nil
}
