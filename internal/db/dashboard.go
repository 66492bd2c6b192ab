package db

import (
	"context"
	"time"

	"github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"

	"adminhub/internal/analytics"
	"adminhub/internal/query"
)

// Dashboard series.
const (
	SeriesMessages      = "messages"
	SeriesUsers         = "users"
	SeriesConversations = "conversations"
)

// Analytics reads dashboard statistics. Days are bucketed in loc.
type Analytics struct {
	s   *Store
	loc *time.Location
}

func (s *Store) Analytics(loc *time.Location) *Analytics {
	if loc == nil {
		loc = time.UTC
	}
	return &Analytics{s: s, loc: loc}
}

type counterFunc func(ctx context.Context, start, end *time.Time) (int, error)

func (f counterFunc) Count(ctx context.Context, start, end *time.Time) (int, error) {
	return f(ctx, start, end)
}

// Counter returns the counter behind one dashboard series, or false for an
// unknown series.
func (a *Analytics) Counter(series string) (analytics.Counter, bool) {
	switch series {
	case SeriesMessages:
		return counterFunc(a.countMessages), true
	case SeriesUsers:
		return counterFunc(a.countUsers), true
	case SeriesConversations:
		return counterFunc(a.countConversations), true
	}
	return nil, false
}

func window(start, end *time.Time) interface{} {
	return query.Between(start, end)
}

func (a *Analytics) count(ctx context.Context, collection string, filter bson.M) (int, error) {
	var n int
	err := a.s.with(ctx, collection, func(c *mgo.Collection) error {
		var err error
		n, err = c.Find(filter).Count()
		return err
	})
	return n, err
}

func (a *Analytics) countMessages(ctx context.Context, start, end *time.Time) (int, error) {
	return a.count(ctx, MessageCollection, query.BuildFilter(
		query.Field("handler", "bot"),
		query.Field("created_at", window(start, end)),
	))
}

func (a *Analytics) countUsers(ctx context.Context, start, end *time.Time) (int, error) {
	return a.count(ctx, BotUserCollection, query.BuildFilter(
		query.Field("is_active", true),
		query.Field("created_at", window(start, end)),
	))
}

func (a *Analytics) countConversations(ctx context.Context, start, end *time.Time) (int, error) {
	pipeline := query.BuildPipeline(
		query.Stage{Name: "$match", Payload: query.BuildFilter(
			query.Field("chatbot.convo_id", bson.M{"$exists": true, "$ne": ""}),
			query.Field("created_at", window(start, end)),
		)},
		query.Stage{Name: "$group", Payload: bson.M{"_id": "$chatbot.convo_id"}},
		query.Stage{Name: "$count", Payload: "n"},
	)
	var res []struct {
		N int `bson:"n"`
	}
	err := a.s.with(ctx, MessageCollection, func(c *mgo.Collection) error {
		return c.Pipe(pipeline).All(&res)
	})
	if err != nil || len(res) == 0 {
		return 0, err
	}
	return res[0].N, nil
}

// QuestionHits counts, per question and day, the messages the bot answered
// with that question.
func (a *Analytics) QuestionHits(ctx context.Context, start, end time.Time) ([]analytics.DailyHits, error) {
	pipeline := query.BuildPipeline(
		query.Stage{Name: "$match", Payload: bson.M{
			"chatbot.qnid": bson.M{"$exists": true},
			"created_at":   bson.M{"$gte": start, "$lte": end},
		}},
		query.Stage{Name: "$group", Payload: bson.M{
			"_id": bson.M{
				"qnid": "$chatbot.qnid",
				"day": bson.M{"$dateToString": bson.M{
					"format":   "%Y-%m-%d",
					"date":     "$created_at",
					"timezone": a.loc.String(),
				}},
			},
			"count": bson.M{"$sum": 1},
		}},
	)
	var rows []struct {
		ID struct {
			QuestionID bson.ObjectId `bson:"qnid"`
			Day        string        `bson:"day"`
		} `bson:"_id"`
		Count int `bson:"count"`
	}
	err := a.s.with(ctx, MessageCollection, func(c *mgo.Collection) error {
		return c.Pipe(pipeline).All(&rows)
	})
	if err != nil {
		return nil, err
	}

	hits := make([]analytics.DailyHits, 0, len(rows))
	for _, r := range rows {
		day, err := time.ParseInLocation("2006-01-02", r.ID.Day, a.loc)
		if err != nil {
			a.s.log.Sugar().Warnw("Skipping malformed hit bucket", "day", r.ID.Day, "error", err)
			continue
		}
		hits = append(hits, analytics.DailyHits{
			QuestionID: r.ID.QuestionID.Hex(),
			Day:        day,
			Count:      r.Count,
		})
	}
	return hits, nil
}

// QuestionTexts resolves hex question ids to their text in lang.
func (a *Analytics) QuestionTexts(ctx context.Context, ids []string, lang string) (map[string]string, error) {
	oids := make([]bson.ObjectId, 0, len(ids))
	for _, id := range ids {
		if bson.IsObjectIdHex(id) {
			oids = append(oids, bson.ObjectIdHex(id))
		}
	}
	texts, err := (&Questions{a.s}).Texts(ctx, oids, lang)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(texts))
	for id, text := range texts {
		out[id.Hex()] = text
	}
	return out, nil
}

// MessageTexts returns the text of user messages sent since the given time.
func (a *Analytics) MessageTexts(ctx context.Context, since *time.Time) ([]string, error) {
	filter := query.BuildFilter(
		query.Field("handler", bson.M{"$ne": "bot"}),
		query.Field("type", bson.M{"$in": []string{"message", "text"}}),
		query.Field("created_at", window(since, nil)),
	)
	var msgs []Message
	err := a.s.with(ctx, MessageCollection, func(c *mgo.Collection) error {
		return c.Find(filter).Select(bson.M{"type": 1, "data": 1}).All(&msgs)
	})
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if t := m.Text("EN"); t != "" {
			texts = append(texts, t)
		}
	}
	return texts, nil
}
