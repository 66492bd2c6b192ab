package db

import (
	"context"

	"github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"
)

type Bots struct{ s *Store }

// Get looks a bot up by its abbreviation.
func (b *Bots) Get(ctx context.Context, abbreviation string) (Bot, error) {
	var bot Bot
	err := b.s.with(ctx, BotCollection, func(c *mgo.Collection) error {
		return c.Find(bson.M{"abbreviation": abbreviation, "is_active": true}).One(&bot)
	})
	return bot, notFound(err, "bot %q", abbreviation)
}
