package db

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"

	"adminhub/internal/query"
)

type Messages struct{ s *Store }

// Grading statuses.
const (
	GradingUnanswered = "unanswered"
	GradingAnswered   = "answered"
)

// ListGradingParams filters the incoming messages awaiting grading.
// Accuracy bounds are percentages of the best NLP match score.
type ListGradingParams struct {
	Status      string
	Topic       string
	Text        string
	Language    string
	AccuracyMin *float64
	AccuracyMax *float64
	Created     []time.Time
	Sort        string
	Page        query.Page
}

func (p ListGradingParams) filter() bson.M {
	lang := p.Language
	if lang == "" {
		lang = "EN"
	}
	var unanswered interface{} = query.Omit
	switch p.Status {
	case GradingUnanswered:
		unanswered = true
	case GradingAnswered:
		unanswered = bson.M{"$ne": true}
	}
	return query.BuildFilter(
		query.Field("handler", bson.M{"$ne": "bot"}),
		query.Field("nlp", bson.M{"$exists": true}),
		query.Field("adminportal.graded", bson.M{"$ne": true}),
		query.Field("chatbot.unanswered", unanswered),
		query.Field("nlp.nlp_response.matched_questions.0.question_topic", query.Value(p.Topic)),
		query.Field("nlp.nlp_response.matched_questions.0.score", query.Between(fraction(p.AccuracyMin), fraction(p.AccuracyMax))),
		query.Field("data.text."+lang, query.Regex(p.Text)),
		query.Field("created_at", query.Since(p.Created)),
	)
}

func fraction(percent *float64) *float64 {
	if percent == nil {
		return nil
	}
	f := *percent / 100
	return &f
}

func (m *Messages) Get(ctx context.Context, id bson.ObjectId) (Message, error) {
	var msg Message
	err := m.s.with(ctx, MessageCollection, func(c *mgo.Collection) error {
		return c.FindId(id).One(&msg)
	})
	return msg, notFound(err, "message %q", id.Hex())
}

// ListGrading returns a page of ungraded messages and the match count.
func (m *Messages) ListGrading(ctx context.Context, p ListGradingParams) ([]Message, int, error) {
	sort, err := query.ParseSort(p.Sort, "_id", "created_at")
	if err != nil {
		return nil, 0, err
	}
	filter := p.filter()

	var msgs []Message
	var total int
	err = m.s.with(ctx, MessageCollection, func(c *mgo.Collection) error {
		q := c.Find(filter)
		n, err := q.Count()
		if err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}
		total = n
		return q.Sort(sort).Skip(p.Page.Skip()).Limit(p.Page.Limit()).All(&msgs)
	})
	return msgs, total, err
}

// gradingUpdate sets only the grading fields it names, so a skip keeps an
// answer recorded by an earlier grade.
func gradingUpdate(answer bson.ObjectId, by string, at time.Time) bson.M {
	set := bson.M{
		"adminportal.graded": true,
		"updated_by":         by,
		"updated_at":         at,
	}
	if answer != "" {
		set["adminportal.answer"] = answer
	}
	return bson.M{"$set": set}
}

// SetGrading marks a message graded. An empty answer records a skip.
func (m *Messages) SetGrading(ctx context.Context, id, answer bson.ObjectId, by string, at time.Time) (int, error) {
	var info *mgo.ChangeInfo
	err := m.s.with(ctx, MessageCollection, func(c *mgo.Collection) error {
		var err error
		info, err = c.UpdateAll(bson.M{"_id": id}, gradingUpdate(answer, by, at))
		return err
	})
	if err != nil {
		return 0, err
	}
	return info.Updated, nil
}

// ListConversationParams selects the messages exchanged with one bot user,
// optionally narrowed to one conversation.
type ListConversationParams struct {
	UserID  bson.ObjectId
	ConvoID string
	Created []time.Time
	Page    query.Page
}

// ListConversation returns messages newest first.
func (m *Messages) ListConversation(ctx context.Context, p ListConversationParams) ([]Message, int, error) {
	filter := query.BuildFilter(
		query.Field("$or", []bson.M{{"sender_id": p.UserID}, {"receiver_id": p.UserID}}),
		query.Field("chatbot.convo_id", query.Value(p.ConvoID)),
		query.Field("created_at", query.Since(p.Created)),
	)

	var msgs []Message
	var total int
	err := m.s.with(ctx, MessageCollection, func(c *mgo.Collection) error {
		q := c.Find(filter)
		n, err := q.Count()
		if err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}
		total = n
		return q.Sort("-created_at").Skip(p.Page.Skip()).Limit(p.Page.Limit()).All(&msgs)
	})
	return msgs, total, err
}
