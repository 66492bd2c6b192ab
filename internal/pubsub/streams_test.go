package pubsub

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStreams_Decode(t *testing.T) {
	s := NewStreams(nil, zap.NewNop())

	ev, ok := s.decode(ChannelFlows, redis.XMessage{
		ID: "1700000000000-0",
		Values: map[string]interface{}{
			"seq":       "7",
			"timestamp": "2024-05-01T08:00:00Z",
			"data":      `{"type":"flow.created","flowId":"abc"}`,
		},
	})
	require.True(t, ok)
	assert.Equal(t, int64(7), ev.Sequence)
	assert.Equal(t, ChannelFlows, ev.Channel)
	assert.Equal(t, "flow.created", ev.Event["type"])
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), ev.Timestamp)

	_, ok = s.decode(ChannelFlows, redis.XMessage{Values: map[string]interface{}{"seq": "1", "data": "{"}})
	assert.False(t, ok)
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("ADMINHUB_TEST_REDIS_URL")
	if testing.Short() || url == "" {
		t.Skip("ADMINHUB_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestStreams_PublishAndReplay(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	channel := "portal:test:" + time.Now().Format("150405.000000")
	t.Cleanup(func() { rdb.Del(ctx, streamKey(channel), seqKey(channel)) })

	s := NewStreams(rdb, zap.NewNop())
	for i := 0; i < 3; i++ {
		_, err := s.PublishEvent(ctx, channel, map[string]interface{}{"n": i})
		require.NoError(t, err)
	}

	events, err := s.ReplayEvents(ctx, channel, 1, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Sequence)
	assert.Equal(t, float64(2), events[1].Event["n"])

	require.NoError(t, s.AcknowledgeSequence(ctx, channel, "conn-1", 3))
	last, err := s.GetLastSequence(ctx, channel, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}
