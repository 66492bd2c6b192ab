package db

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"

	"adminhub/internal/query"
)

type BotUsers struct{ s *Store }

func (b *BotUsers) Get(ctx context.Context, id bson.ObjectId) (BotUser, error) {
	var user BotUser
	err := b.s.with(ctx, BotUserCollection, func(c *mgo.Collection) error {
		return c.FindId(id).One(&user)
	})
	return user, notFound(err, "bot user %q", id.Hex())
}

// Update replaces the portal-managed fields of a bot user.
func (b *BotUsers) Update(ctx context.Context, id bson.ObjectId, tags []string, note string, at time.Time) error {
	if tags == nil {
		tags = []string{}
	}
	err := b.s.with(ctx, BotUserCollection, func(c *mgo.Collection) error {
		return c.UpdateId(id, bson.M{"$set": bson.M{
			"tags":         tags,
			"chatbot.note": note,
			"updated_at":   at,
		}})
	})
	return notFound(err, "bot user %q", id.Hex())
}

// Tags returns the distinct tags of active subscribed users.
func (b *BotUsers) Tags(ctx context.Context) ([]string, error) {
	var tags []string
	err := b.s.with(ctx, BotUserCollection, func(c *mgo.Collection) error {
		return c.Find(bson.M{"is_active": true, "is_broadcast_subscribed": true}).Distinct("tags", &tags)
	})
	return tags, err
}

// TargetParams selects broadcast recipients. Without SendToAll a user
// needs at least one of Tags.
type TargetParams struct {
	Tags      []string
	Exclude   []string
	SendToAll bool
	Platforms []string
}

func (p TargetParams) filter() bson.M {
	var tags interface{} = query.Omit
	if !p.SendToAll {
		tags = bson.M{"$in": nonNil(p.Tags)}
	}
	return query.BuildFilter(
		query.Field("is_active", true),
		query.Field("is_broadcast_subscribed", true),
		query.Field("tags", tags),
		query.Field("tags", query.NoneOf(p.Exclude)),
		query.Field("platforms", query.OneOf(p.Platforms)),
	)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// TargetIDs returns the ids of the users a broadcast would reach.
func (b *BotUsers) TargetIDs(ctx context.Context, p TargetParams) ([]bson.ObjectId, error) {
	var docs []struct {
		ID bson.ObjectId `bson:"_id"`
	}
	err := b.s.with(ctx, BotUserCollection, func(c *mgo.Collection) error {
		return c.Find(p.filter()).Select(bson.M{"_id": 1}).All(&docs)
	})
	if err != nil {
		return nil, err
	}
	ids := make([]bson.ObjectId, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

type ListConversationsParams struct {
	Name     string
	Tags     []string
	Platform string
	Page     query.Page
}

func (p ListConversationsParams) filter() bson.M {
	var name interface{} = query.Omit
	if rx := query.Regex(p.Name); rx != query.Omit {
		name = []bson.M{{"first_name": rx}, {"last_name": rx}}
	}
	return query.BuildFilter(
		query.Field("last_active", bson.M{"$exists": true}),
		query.Field("$or", name),
		query.Field("tags", query.OneOf(p.Tags)),
		query.Field("platforms", query.Value(p.Platform)),
	)
}

// ListConversations returns bot users with any activity, most recent first.
func (b *BotUsers) ListConversations(ctx context.Context, p ListConversationsParams) ([]BotUser, int, error) {
	filter := p.filter()
	var users []BotUser
	var total int
	err := b.s.with(ctx, BotUserCollection, func(c *mgo.Collection) error {
		q := c.Find(filter)
		n, err := q.Count()
		if err != nil {
			return fmt.Errorf("failed to count bot users: %w", err)
		}
		total = n
		return q.Sort("-last_active.sent_at", "-_id").Skip(p.Page.Skip()).Limit(p.Page.Limit()).All(&users)
	})
	return users, total, err
}
