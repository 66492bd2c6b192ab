package db

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"

	"adminhub/internal/query"
)

type Broadcasts struct{ s *Store }

type ListBroadcastsParams struct {
	SendAt []time.Time
	Sort   string
	Page   query.Page
}

func (b *Broadcasts) Insert(ctx context.Context, bc Broadcast) error {
	return b.s.with(ctx, BroadcastCollection, func(c *mgo.Collection) error {
		return c.Insert(bc)
	})
}

func (b *Broadcasts) Get(ctx context.Context, id bson.ObjectId) (Broadcast, error) {
	var bc Broadcast
	err := b.s.with(ctx, BroadcastCollection, func(c *mgo.Collection) error {
		return c.Find(bson.M{"_id": id, "is_active": true}).One(&bc)
	})
	return bc, notFound(err, "broadcast %q", id.Hex())
}

func (b *Broadcasts) List(ctx context.Context, p ListBroadcastsParams) ([]Broadcast, int, error) {
	sort, err := query.ParseSort(p.Sort, "_id", "send_at", "created_at", "total")
	if err != nil {
		return nil, 0, err
	}
	filter := query.BuildFilter(
		query.Field("is_active", true),
		query.Field("send_at", query.Since(p.SendAt)),
	)

	var list []Broadcast
	var total int
	err = b.s.with(ctx, BroadcastCollection, func(c *mgo.Collection) error {
		q := c.Find(filter)
		n, err := q.Count()
		if err != nil {
			return fmt.Errorf("failed to count broadcasts: %w", err)
		}
		total = n
		return q.Sort(sort).Skip(p.Page.Skip()).Limit(p.Page.Limit()).All(&list)
	})
	return list, total, err
}

// MarkDispatched records the hand-over to the bot runtime. It reports
// false when the broadcast was already dispatched.
func (b *Broadcasts) MarkDispatched(ctx context.Context, id bson.ObjectId, at time.Time) (bool, error) {
	err := b.s.with(ctx, BroadcastCollection, func(c *mgo.Collection) error {
		return c.Update(
			bson.M{"_id": id, "is_active": true, "dispatched_at": nil},
			bson.M{"$set": bson.M{"dispatched_at": at}},
		)
	})
	if err == mgo.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// ReferencedFlowIDs returns the flows referenced by active broadcasts and
// active broadcast templates.
func (b *Broadcasts) ReferencedFlowIDs(ctx context.Context) ([]bson.ObjectId, error) {
	var fromBroadcasts, fromTemplates []bson.ObjectId
	err := b.s.with(ctx, BroadcastCollection, func(c *mgo.Collection) error {
		return c.Find(bson.M{"is_active": true, "flow_id": bson.M{"$exists": true}}).Distinct("flow_id", &fromBroadcasts)
	})
	if err != nil {
		return nil, err
	}
	err = b.s.with(ctx, BroadcastTemplateCollection, func(c *mgo.Collection) error {
		return c.Find(bson.M{"is_active": true}).Distinct("flow", &fromTemplates)
	})
	if err != nil {
		return nil, err
	}
	return append(fromBroadcasts, fromTemplates...), nil
}

type ListTemplatesParams struct {
	Name string
	Sort string
	Page query.Page
}

func (b *Broadcasts) ListTemplates(ctx context.Context, p ListTemplatesParams) ([]BroadcastTemplate, int, error) {
	sort, err := query.ParseSort(p.Sort, "_id", "name", "created_at", "updated_at")
	if err != nil {
		return nil, 0, err
	}
	filter := query.BuildFilter(
		query.Field("is_active", true),
		query.Field("name", query.Regex(p.Name)),
	)

	var list []BroadcastTemplate
	var total int
	err = b.s.with(ctx, BroadcastTemplateCollection, func(c *mgo.Collection) error {
		q := c.Find(filter)
		n, err := q.Count()
		if err != nil {
			return fmt.Errorf("failed to count broadcast templates: %w", err)
		}
		total = n
		return q.Sort(sort).Skip(p.Page.Skip()).Limit(p.Page.Limit()).All(&list)
	})
	return list, total, err
}

func (b *Broadcasts) GetTemplate(ctx context.Context, id bson.ObjectId) (BroadcastTemplate, error) {
	var t BroadcastTemplate
	err := b.s.with(ctx, BroadcastTemplateCollection, func(c *mgo.Collection) error {
		return c.Find(bson.M{"_id": id, "is_active": true}).One(&t)
	})
	return t, notFound(err, "broadcast template %q", id.Hex())
}

func (b *Broadcasts) InsertTemplate(ctx context.Context, t BroadcastTemplate) error {
	return b.s.with(ctx, BroadcastTemplateCollection, func(c *mgo.Collection) error {
		return c.Insert(t)
	})
}

func (b *Broadcasts) UpdateTemplate(ctx context.Context, t BroadcastTemplate) error {
	err := b.s.with(ctx, BroadcastTemplateCollection, func(c *mgo.Collection) error {
		return c.Update(bson.M{"_id": t.ID, "is_active": true}, bson.M{"$set": bson.M{
			"name":       t.Name,
			"flow":       t.Flow,
			"platforms":  t.Platforms,
			"updated_by": t.UpdatedBy,
			"updated_at": t.UpdatedAt,
		}})
	})
	return notFound(err, "broadcast template %q", t.ID.Hex())
}

func (b *Broadcasts) DeactivateTemplate(ctx context.Context, id bson.ObjectId, by string, at time.Time) error {
	err := b.s.with(ctx, BroadcastTemplateCollection, func(c *mgo.Collection) error {
		return c.Update(bson.M{"_id": id, "is_active": true}, bson.M{"$set": bson.M{
			"is_active":  false,
			"updated_by": by,
			"updated_at": at,
		}})
	})
	return notFound(err, "broadcast template %q", id.Hex())
}

// TemplateConflict finds an active template other than except that has the
// same name or the same set of flows.
func (b *Broadcasts) TemplateConflict(ctx context.Context, name string, flows []bson.ObjectId, except bson.ObjectId) (BroadcastTemplate, bool, error) {
	same := []bson.M{{"name": exactText(name)}}
	if len(flows) > 0 {
		same = append(same, bson.M{"flow": bson.M{"$all": flows, "$size": len(flows)}})
	}
	var exceptID interface{} = query.Omit
	if except != "" {
		exceptID = bson.M{"$ne": except}
	}
	filter := query.BuildFilter(
		query.Field("is_active", true),
		query.Field("_id", exceptID),
		query.Field("$or", same),
	)

	var t BroadcastTemplate
	err := b.s.with(ctx, BroadcastTemplateCollection, func(c *mgo.Collection) error {
		return c.Find(filter).One(&t)
	})
	if err == mgo.ErrNotFound {
		return BroadcastTemplate{}, false, nil
	}
	if err != nil {
		return BroadcastTemplate{}, false, err
	}
	return t, true, nil
}
