package service

import (
	"context"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/mgo/v3/bson"

	"adminhub/internal/auth"
	"adminhub/internal/db"
	"adminhub/internal/model"
)

// EventBus carries portal events to live sessions.
type EventBus interface {
	PublishPortal(ctx context.Context, channel string, event map[string]interface{}) error
}

type FlowStore interface {
	Get(ctx context.Context, id bson.ObjectId) (db.Flow, error)
	GetMany(ctx context.Context, ids []bson.ObjectId) ([]db.Flow, error)
	ActiveIDs(ctx context.Context, ids []bson.ObjectId) ([]bson.ObjectId, error)
	FindInline(ctx context.Context, hash string) (db.Flow, bool, error)
	Insert(ctx context.Context, flow db.Flow) error
	Update(ctx context.Context, id bson.ObjectId, p db.UpdateFlowParams) error
	List(ctx context.Context, p db.ListFlowsParams) ([]db.Flow, int, error)
	Deactivate(ctx context.Context, ids []bson.ObjectId, unnamedOnly bool, by string, at time.Time) (int, error)
}

type QuestionStore interface {
	Get(ctx context.Context, id bson.ObjectId) (db.Question, error)
	GetMany(ctx context.Context, ids []bson.ObjectId) ([]db.Question, error)
	Insert(ctx context.Context, q db.Question) error
	List(ctx context.Context, p db.ListQuestionsParams) ([]db.Question, int, error)
	Deactivate(ctx context.Context, ids []bson.ObjectId, by string, at time.Time) (int, error)
	ReferencedFlowIDs(ctx context.Context, excluding []bson.ObjectId) ([]bson.ObjectId, error)
	RemoveVariation(ctx context.Context, id bson.ObjectId, text string, by string, at time.Time) (int, error)
	AddVariation(ctx context.Context, id bson.ObjectId, v db.Variation, by string, at time.Time) (int, error)
}

type MessageStore interface {
	Get(ctx context.Context, id bson.ObjectId) (db.Message, error)
	ListGrading(ctx context.Context, p db.ListGradingParams) ([]db.Message, int, error)
	SetGrading(ctx context.Context, id, answer bson.ObjectId, by string, at time.Time) (int, error)
	ListConversation(ctx context.Context, p db.ListConversationParams) ([]db.Message, int, error)
}

type BotUserStore interface {
	Get(ctx context.Context, id bson.ObjectId) (db.BotUser, error)
	Update(ctx context.Context, id bson.ObjectId, tags []string, note string, at time.Time) error
	Tags(ctx context.Context) ([]string, error)
	TargetIDs(ctx context.Context, p db.TargetParams) ([]bson.ObjectId, error)
	ListConversations(ctx context.Context, p db.ListConversationsParams) ([]db.BotUser, int, error)
}

type BroadcastStore interface {
	Insert(ctx context.Context, bc db.Broadcast) error
	Get(ctx context.Context, id bson.ObjectId) (db.Broadcast, error)
	List(ctx context.Context, p db.ListBroadcastsParams) ([]db.Broadcast, int, error)
	ReferencedFlowIDs(ctx context.Context) ([]bson.ObjectId, error)
	ListTemplates(ctx context.Context, p db.ListTemplatesParams) ([]db.BroadcastTemplate, int, error)
	GetTemplate(ctx context.Context, id bson.ObjectId) (db.BroadcastTemplate, error)
	InsertTemplate(ctx context.Context, t db.BroadcastTemplate) error
	UpdateTemplate(ctx context.Context, t db.BroadcastTemplate) error
	DeactivateTemplate(ctx context.Context, id bson.ObjectId, by string, at time.Time) error
	TemplateConflict(ctx context.Context, name string, flows []bson.ObjectId, except bson.ObjectId) (db.BroadcastTemplate, bool, error)
}

// NameStore resolves portal user ids to display names.
type NameStore interface {
	Names(ctx context.Context, ids []string) (map[string]string, error)
}

// ObjectID parses a hex document id. Malformed ids are NotValid.
func ObjectID(s, what string) (bson.ObjectId, error) {
	if !bson.IsObjectIdHex(s) {
		return "", errors.NotValidf("%s id %q", what, s)
	}
	return bson.ObjectIdHex(s), nil
}

// ObjectIDs parses and deduplicates hex ids, keeping their order.
func ObjectIDs(hexes []string, what string) ([]bson.ObjectId, error) {
	seen := set.NewStrings()
	ids := make([]bson.ObjectId, 0, len(hexes))
	for _, h := range hexes {
		id, err := ObjectID(h, what)
		if err != nil {
			return nil, err
		}
		if seen.Contains(h) {
			continue
		}
		seen.Add(h)
		ids = append(ids, id)
	}
	return ids, nil
}

func hexes(ids []bson.ObjectId) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}

func idHex(id bson.ObjectId) string {
	if id == "" {
		return ""
	}
	return id.Hex()
}

// actor returns the portal user of the session, recorded in audit fields.
func actor(ctx context.Context) string {
	return auth.GetUserID(ctx)
}

func newAudit(by string, at time.Time) db.Audit {
	return db.Audit{CreatedAt: at, CreatedBy: by, UpdatedAt: at, UpdatedBy: by}
}

func toAudit(a db.Audit) model.Audit {
	return model.Audit{
		CreatedAt: a.CreatedAt,
		CreatedBy: a.CreatedBy,
		UpdatedAt: a.UpdatedAt,
		UpdatedBy: a.UpdatedBy,
	}
}
