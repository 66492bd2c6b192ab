package db

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"

	"adminhub/internal/query"
)

type Questions struct{ s *Store }

type ListQuestionsParams struct {
	Topic    string
	Text     string
	Language string
	Created  []time.Time
	Sort     string
	Page     query.Page
}

func (p ListQuestionsParams) filter() bson.M {
	lang := p.Language
	if lang == "" {
		lang = "EN"
	}
	return query.BuildFilter(
		query.Field("is_active", true),
		query.Field("topic", query.Value(p.Topic)),
		query.Field("text."+lang, query.Regex(p.Text)),
		query.Field("created_at", query.Since(p.Created)),
	)
}

func (q *Questions) Get(ctx context.Context, id bson.ObjectId) (Question, error) {
	var question Question
	err := q.s.with(ctx, QuestionCollection, func(c *mgo.Collection) error {
		return c.Find(bson.M{"_id": id, "is_active": true}).One(&question)
	})
	return question, notFound(err, "question %q", id.Hex())
}

// GetMany returns the active questions among ids.
func (q *Questions) GetMany(ctx context.Context, ids []bson.ObjectId) ([]Question, error) {
	var questions []Question
	if len(ids) == 0 {
		return questions, nil
	}
	err := q.s.with(ctx, QuestionCollection, func(c *mgo.Collection) error {
		return c.Find(bson.M{"_id": bson.M{"$in": ids}, "is_active": true}).All(&questions)
	})
	return questions, err
}

func (q *Questions) Insert(ctx context.Context, question Question) error {
	return q.s.with(ctx, QuestionCollection, func(c *mgo.Collection) error {
		return c.Insert(question)
	})
}

func (q *Questions) List(ctx context.Context, p ListQuestionsParams) ([]Question, int, error) {
	sort, err := query.ParseSort(p.Sort, "_id", "topic", "created_at", "updated_at")
	if err != nil {
		return nil, 0, err
	}
	filter := p.filter()

	var questions []Question
	var total int
	err = q.s.with(ctx, QuestionCollection, func(c *mgo.Collection) error {
		find := c.Find(filter)
		n, err := find.Count()
		if err != nil {
			return fmt.Errorf("failed to count questions: %w", err)
		}
		total = n
		return find.Sort(sort).Skip(p.Page.Skip()).Limit(p.Page.Limit()).All(&questions)
	})
	return questions, total, err
}

// Deactivate soft-deletes questions and reports how many changed.
func (q *Questions) Deactivate(ctx context.Context, ids []bson.ObjectId, by string, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var info *mgo.ChangeInfo
	err := q.s.with(ctx, QuestionCollection, func(c *mgo.Collection) error {
		var err error
		info, err = c.UpdateAll(
			bson.M{"_id": bson.M{"$in": ids}, "is_active": true},
			bson.M{"$set": bson.M{"is_active": false, "updated_by": by, "updated_at": at}},
		)
		return err
	})
	if err != nil {
		return 0, err
	}
	return info.Updated, nil
}

// ReferencedFlowIDs returns the distinct answer flows of active questions
// outside excluding.
func (q *Questions) ReferencedFlowIDs(ctx context.Context, excluding []bson.ObjectId) ([]bson.ObjectId, error) {
	filter := query.BuildFilter(
		query.Field("is_active", true),
		query.Field("_id", query.NoneOf(excluding)),
	)
	var ids []bson.ObjectId
	err := q.s.with(ctx, QuestionCollection, func(c *mgo.Collection) error {
		return c.Find(filter).Distinct("answers.flow.flow_id", &ids)
	})
	return ids, err
}

func exactText(text string) bson.RegEx {
	return bson.RegEx{Pattern: "^" + regexp.QuoteMeta(text) + "$", Options: "i"}
}

// RemoveVariation pulls the variations of a question whose text equals
// text, ignoring case, and reports whether the question changed.
func (q *Questions) RemoveVariation(ctx context.Context, id bson.ObjectId, text string, by string, at time.Time) (int, error) {
	var info *mgo.ChangeInfo
	err := q.s.with(ctx, QuestionCollection, func(c *mgo.Collection) error {
		var err error
		info, err = c.UpdateAll(
			bson.M{"_id": id, "alternate_questions.text": exactText(text)},
			bson.M{
				"$pull": bson.M{"alternate_questions": bson.M{"text": exactText(text)}},
				"$set":  bson.M{"updated_by": by, "updated_at": at},
			},
		)
		return err
	})
	if err != nil {
		return 0, err
	}
	return info.Updated, nil
}

// AddVariation appends a variation unless the question already has one
// with the same text.
func (q *Questions) AddVariation(ctx context.Context, id bson.ObjectId, v Variation, by string, at time.Time) (int, error) {
	var info *mgo.ChangeInfo
	err := q.s.with(ctx, QuestionCollection, func(c *mgo.Collection) error {
		var err error
		info, err = c.UpdateAll(
			bson.M{"_id": id, "is_active": true, "alternate_questions.text": bson.M{"$not": exactText(v.Text)}},
			bson.M{
				"$push": bson.M{"alternate_questions": v},
				"$set":  bson.M{"updated_by": by, "updated_at": at},
			},
		)
		return err
	})
	if err != nil {
		return 0, err
	}
	return info.Updated, nil
}

// Texts maps question ids to their text in lang.
func (q *Questions) Texts(ctx context.Context, ids []bson.ObjectId, lang string) (map[bson.ObjectId]string, error) {
	var docs []struct {
		ID   bson.ObjectId     `bson:"_id"`
		Text map[string]string `bson:"text"`
	}
	err := q.s.with(ctx, QuestionCollection, func(c *mgo.Collection) error {
		return c.Find(bson.M{"_id": bson.M{"$in": ids}}).Select(bson.M{"text": 1}).All(&docs)
	})
	if err != nil {
		return nil, err
	}
	out := make(map[bson.ObjectId]string, len(docs))
	for _, d := range docs {
		out[d.ID] = d.Text[lang]
	}
	return out, nil
}
