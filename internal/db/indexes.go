package db

import (
	"context"
	"fmt"

	"github.com/juju/mgo/v3"
	"go.uber.org/zap"
)

var indexes = map[string][]mgo.Index{
	FlowCollection: {
		{Key: []string{"content_hash", "is_active"}},
		{Key: []string{"is_active", "-updated_at"}},
	},
	QuestionCollection: {
		{Key: []string{"is_active", "topic"}},
		{Key: []string{"answers.flow.flow_id"}},
	},
	MessageCollection: {
		{Key: []string{"handler", "created_at"}},
		{Key: []string{"chatbot.qnid", "created_at"}},
		{Key: []string{"chatbot.convo_id"}},
		{Key: []string{"sender_id", "-created_at"}},
		{Key: []string{"receiver_id", "-created_at"}},
	},
	BotUserCollection: {
		{Key: []string{"is_active", "is_broadcast_subscribed", "tags"}},
		{Key: []string{"-last_active.sent_at"}},
	},
	BroadcastCollection: {
		{Key: []string{"is_active", "-send_at"}},
	},
	BroadcastTemplateCollection: {
		{Key: []string{"is_active", "name"}},
	},
	BotCollection: {
		{Key: []string{"abbreviation"}, Unique: true},
	},
}

// EnsureIndexes creates the indexes the portal queries rely on. Existing
// indexes are left alone.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for name, list := range indexes {
		for _, idx := range list {
			err := s.with(ctx, name, func(c *mgo.Collection) error {
				return c.EnsureIndex(idx)
			})
			if err != nil {
				return fmt.Errorf("failed to ensure index %v on %s: %w", idx.Key, name, err)
			}
			s.log.Info("Ensured index", zap.String("collection", name), zap.Strings("key", idx.Key))
		}
	}
	return nil
}
