package db

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"

	"adminhub/internal/component"
	"adminhub/internal/query"
)

type Flows struct{ s *Store }

// ListFlowsParams are the flow table filters. Only named flows are listed.
type ListFlowsParams struct {
	Name         string
	Topic        string
	TriggeredMin *int
	TriggeredMax *int
	Updated      []time.Time
	Sort         string
	Page         query.Page
}

func (p ListFlowsParams) filter() bson.M {
	return query.BuildFilter(
		query.Field("name", bson.M{"$ne": nil}),
		query.Field("name", query.Regex(p.Name)),
		query.Field("topic", query.Value(p.Topic)),
		query.Field("triggered_count", query.Between(p.TriggeredMin, p.TriggeredMax)),
		query.Field("is_active", true),
		query.Field("updated_at", query.Since(p.Updated)),
	)
}

// Get returns an active flow.
func (f *Flows) Get(ctx context.Context, id bson.ObjectId) (Flow, error) {
	var flow Flow
	err := f.s.with(ctx, FlowCollection, func(c *mgo.Collection) error {
		return c.Find(bson.M{"_id": id, "is_active": true}).One(&flow)
	})
	return flow, notFound(err, "flow %q", id.Hex())
}

// GetMany returns the active flows among ids.
func (f *Flows) GetMany(ctx context.Context, ids []bson.ObjectId) ([]Flow, error) {
	var flows []Flow
	if len(ids) == 0 {
		return flows, nil
	}
	err := f.s.with(ctx, FlowCollection, func(c *mgo.Collection) error {
		return c.Find(bson.M{"_id": bson.M{"$in": ids}, "is_active": true}).All(&flows)
	})
	return flows, err
}

// ActiveIDs returns which of ids belong to active flows.
func (f *Flows) ActiveIDs(ctx context.Context, ids []bson.ObjectId) ([]bson.ObjectId, error) {
	var docs []struct {
		ID bson.ObjectId `bson:"_id"`
	}
	if len(ids) == 0 {
		return nil, nil
	}
	err := f.s.with(ctx, FlowCollection, func(c *mgo.Collection) error {
		return c.Find(bson.M{"_id": bson.M{"$in": ids}, "is_active": true}).Select(bson.M{"_id": 1}).All(&docs)
	})
	if err != nil {
		return nil, err
	}
	out := make([]bson.ObjectId, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out, nil
}

// FindInline returns the active unnamed flow with the given content hash.
func (f *Flows) FindInline(ctx context.Context, hash string) (Flow, bool, error) {
	var flow Flow
	err := f.s.with(ctx, FlowCollection, func(c *mgo.Collection) error {
		return c.Find(bson.M{"content_hash": hash, "name": nil, "is_active": true}).One(&flow)
	})
	if err == mgo.ErrNotFound {
		return Flow{}, false, nil
	}
	if err != nil {
		return Flow{}, false, err
	}
	return flow, true, nil
}

func (f *Flows) Insert(ctx context.Context, flow Flow) error {
	return f.s.with(ctx, FlowCollection, func(c *mgo.Collection) error {
		return c.Insert(flow)
	})
}

// UpdateFlowParams replaces the editable fields of a named flow.
type UpdateFlowParams struct {
	Name       string
	Topic      *string
	Components []component.Component
	Platforms  []string
	Params     []string
	UpdatedBy  string
	UpdatedAt  time.Time
}

func (f *Flows) Update(ctx context.Context, id bson.ObjectId, p UpdateFlowParams) error {
	err := f.s.with(ctx, FlowCollection, func(c *mgo.Collection) error {
		return c.Update(bson.M{"_id": id, "is_active": true}, bson.M{"$set": bson.M{
			"name":       p.Name,
			"topic":      p.Topic,
			"flow":       p.Components,
			"platforms":  p.Platforms,
			"params":     p.Params,
			"updated_by": p.UpdatedBy,
			"updated_at": p.UpdatedAt,
		}})
	})
	return notFound(err, "flow %q", id.Hex())
}

// List returns a page of named active flows and the total match count.
func (f *Flows) List(ctx context.Context, p ListFlowsParams) ([]Flow, int, error) {
	sort, err := query.ParseSort(p.Sort, "_id", "name", "topic", "triggered_count", "created_at", "updated_at")
	if err != nil {
		return nil, 0, err
	}
	filter := p.filter()

	var flows []Flow
	var total int
	err = f.s.with(ctx, FlowCollection, func(c *mgo.Collection) error {
		q := c.Find(filter)
		if total, err = q.Count(); err != nil {
			return fmt.Errorf("failed to count flows: %w", err)
		}
		return q.Sort(sort).Skip(p.Page.Skip()).Limit(p.Page.Limit()).All(&flows)
	})
	return flows, total, err
}

// Deactivate soft-deletes active flows. With unnamedOnly set, named flows
// among ids are left alone.
func (f *Flows) Deactivate(ctx context.Context, ids []bson.ObjectId, unnamedOnly bool, by string, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	filter := query.BuildFilter(
		query.Field("_id", bson.M{"$in": ids}),
		query.Field("is_active", true),
		query.Field("name", nilIf(unnamedOnly)),
	)
	var info *mgo.ChangeInfo
	err := f.s.with(ctx, FlowCollection, func(c *mgo.Collection) error {
		var err error
		info, err = c.UpdateAll(filter, bson.M{"$set": bson.M{
			"is_active":  false,
			"updated_by": by,
			"updated_at": at,
		}})
		return err
	})
	if err != nil {
		return 0, err
	}
	return info.Updated, nil
}

// nilIf matches a null field when on is set.
func nilIf(on bool) interface{} {
	if on {
		return nil
	}
	return query.Omit
}
