package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/mgo/v3/bson"
	"go.uber.org/zap"

	"adminhub/internal/db"
	"adminhub/internal/model"
	"adminhub/internal/pubsub"
)

// Scheduler queues a broadcast for dispatch at sendAt.
type Scheduler interface {
	ScheduleBroadcast(ctx context.Context, broadcastID string, sendAt time.Time) error
}

type BroadcastService struct {
	broadcasts BroadcastStore
	flows      FlowStore
	users      BotUserStore
	names      NameStore
	scheduler  Scheduler
	bus        EventBus
	clock      clock.Clock
	log        *zap.Logger
}

func NewBroadcastService(broadcasts BroadcastStore, flows FlowStore, users BotUserStore, names NameStore, scheduler Scheduler, bus EventBus, clk clock.Clock, log *zap.Logger) *BroadcastService {
	return &BroadcastService{
		broadcasts: broadcasts,
		flows:      flows,
		users:      users,
		names:      names,
		scheduler:  scheduler,
		bus:        bus,
		clock:      clk,
		log:        log,
	}
}

// BroadcastStatus derives the delivery status from the counters.
func BroadcastStatus(total, sent, processed int) string {
	switch {
	case processed == 0 && sent == 0:
		return model.BroadcastScheduled
	case total > processed && processed >= sent && sent > 0:
		return model.BroadcastSending
	case total == processed && processed > 0:
		return model.BroadcastCompleted
	}
	return model.BroadcastFailed
}

func toBroadcast(b db.Broadcast, names map[string]string) model.Broadcast {
	out := model.Broadcast{
		ID:          b.ID.Hex(),
		FlowID:      idHex(b.FlowID),
		Tags:        b.Tags,
		Exclude:     b.Exclude,
		SendToAll:   b.SendToAll,
		Platforms:   b.Platforms,
		SendAt:      b.SendAt,
		Total:       b.Total,
		Sent:        b.Sent,
		Processed:   b.Processed,
		Failed:      len(b.Failed),
		Status:      BroadcastStatus(b.Total, b.Sent, b.Processed),
		CreatorName: names[b.CreatedBy],
		Audit:       toAudit(b.Audit),
	}
	if b.Flow != nil {
		out.Flow = b.Flow.Components
	}
	return out
}

func (s *BroadcastService) creatorNames(ctx context.Context, broadcasts ...db.Broadcast) (map[string]string, error) {
	ids := set.NewStrings()
	for _, b := range broadcasts {
		if b.CreatedBy != "" {
			ids.Add(b.CreatedBy)
		}
	}
	names, err := s.names.Names(ctx, ids.SortedValues())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve creator names: %w", err)
	}
	return names, nil
}

func (s *BroadcastService) ListBroadcasts(ctx context.Context, p db.ListBroadcastsParams) ([]model.Broadcast, int, error) {
	list, total, err := s.broadcasts.List(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	names, err := s.creatorNames(ctx, list...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.Broadcast, len(list))
	for i, b := range list {
		out[i] = toBroadcast(b, names)
	}
	return out, total, nil
}

func (s *BroadcastService) GetBroadcast(ctx context.Context, id string) (*model.Broadcast, error) {
	oid, err := ObjectID(id, "broadcast")
	if err != nil {
		return nil, err
	}
	b, err := s.broadcasts.Get(ctx, oid)
	if err != nil {
		return nil, err
	}
	names, err := s.creatorNames(ctx, b)
	if err != nil {
		return nil, err
	}
	out := toBroadcast(b, names)
	return &out, nil
}

// BroadcastTags lists the tags of users that can receive broadcasts.
func (s *BroadcastService) BroadcastTags(ctx context.Context) ([]string, error) {
	tags, err := s.users.Tags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	sort.Strings(tags)
	return tags, nil
}

// targets resolves recipients, dropping duplicate ids.
func (s *BroadcastService) targets(ctx context.Context, p db.TargetParams) ([]bson.ObjectId, error) {
	ids, err := s.users.TargetIDs(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve broadcast targets: %w", err)
	}
	seen := set.NewStrings()
	out := make([]bson.ObjectId, 0, len(ids))
	for _, id := range ids {
		if seen.Contains(string(id)) {
			continue
		}
		seen.Add(string(id))
		out = append(out, id)
	}
	return out, nil
}

// BroadcastTargets previews how many users a broadcast would reach.
func (s *BroadcastService) BroadcastTargets(ctx context.Context, in model.TargetsInput) (*model.TargetsPreview, error) {
	ids, err := s.targets(ctx, db.TargetParams{
		Tags:      in.Tags,
		Exclude:   in.Exclude,
		SendToAll: in.SendToAll,
		Platforms: in.Platforms,
	})
	if err != nil {
		return nil, err
	}
	return &model.TargetsPreview{Total: len(ids)}, nil
}

// SendBroadcast stores a broadcast and schedules its dispatch. A missing
// sendAt sends immediately.
func (s *BroadcastService) SendBroadcast(ctx context.Context, in model.BroadcastInput) (*model.Broadcast, error) {
	if (in.FlowID == "") == (len(in.Flow) == 0) {
		return nil, errors.NotValidf("broadcast needs exactly one of flowId or flow")
	}
	if !in.SendToAll && len(in.Tags) == 0 {
		return nil, errors.NotValidf("broadcast without tags or sendToAll")
	}

	now := s.clock.Now()
	b := db.Broadcast{
		ID:        bson.NewObjectId(),
		Tags:      nonNilStrings(in.Tags),
		Exclude:   nonNilStrings(in.Exclude),
		SendToAll: in.SendToAll,
		Platforms: in.Platforms,
		SendAt:    now,
		IsActive:  true,
		Audit:     newAudit(actor(ctx), now),
	}
	if in.SendAt != nil && in.SendAt.After(now) {
		b.SendAt = *in.SendAt
		b.Scheduled = true
	}

	if in.FlowID != "" {
		oid, err := ObjectID(in.FlowID, "flow")
		if err != nil {
			return nil, err
		}
		if _, err := s.flows.Get(ctx, oid); err != nil {
			return nil, err
		}
		b.FlowID = oid
	} else {
		if err := checkFlowRefs(ctx, s.flows, in.Flow); err != nil {
			return nil, err
		}
		b.Flow = &db.BroadcastFlow{Components: in.Flow}
	}

	targets, err := s.targets(ctx, db.TargetParams{
		Tags:      in.Tags,
		Exclude:   in.Exclude,
		SendToAll: in.SendToAll,
		Platforms: in.Platforms,
	})
	if err != nil {
		return nil, err
	}
	b.Targets = targets
	b.Total = len(targets)

	if err := s.broadcasts.Insert(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to insert broadcast: %w", err)
	}
	if err := s.scheduler.ScheduleBroadcast(ctx, b.ID.Hex(), b.SendAt); err != nil {
		return nil, fmt.Errorf("failed to schedule broadcast: %w", err)
	}

	s.log.Info("Broadcast scheduled",
		zap.String("broadcastId", b.ID.Hex()),
		zap.Int("targets", b.Total),
		zap.Time("sendAt", b.SendAt))
	_ = s.bus.PublishPortal(ctx, pubsub.ChannelBroadcasts, map[string]interface{}{
		"type":        "broadcast.created",
		"broadcastId": b.ID.Hex(),
		"total":       b.Total,
		"sendAt":      b.SendAt,
	})

	names, err := s.creatorNames(ctx, b)
	if err != nil {
		return nil, err
	}
	out := toBroadcast(b, names)
	return &out, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toTemplate(t db.BroadcastTemplate) model.BroadcastTemplate {
	return model.BroadcastTemplate{
		ID:        t.ID.Hex(),
		Name:      t.Name,
		Flow:      hexes(t.Flow),
		Platforms: t.Platforms,
		Audit:     toAudit(t.Audit),
	}
}

func (s *BroadcastService) ListTemplates(ctx context.Context, p db.ListTemplatesParams) ([]model.BroadcastTemplate, int, error) {
	list, total, err := s.broadcasts.ListTemplates(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.BroadcastTemplate, len(list))
	for i, t := range list {
		out[i] = toTemplate(t)
	}
	return out, total, nil
}

func (s *BroadcastService) GetTemplate(ctx context.Context, id string) (*model.BroadcastTemplate, error) {
	oid, err := ObjectID(id, "broadcast template")
	if err != nil {
		return nil, err
	}
	t, err := s.broadcasts.GetTemplate(ctx, oid)
	if err != nil {
		return nil, err
	}
	out := toTemplate(t)
	return &out, nil
}

// checkTemplate validates a template and rejects a duplicate of another
// active template, by name or by flow set.
func (s *BroadcastService) checkTemplate(ctx context.Context, in model.TemplateInput, except bson.ObjectId) (string, []bson.ObjectId, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", nil, errors.NotValidf("empty template name")
	}
	if len(in.Flow) == 0 {
		return "", nil, errors.NotValidf("template %q without flows", name)
	}
	flows, err := ObjectIDs(in.Flow, "flow")
	if err != nil {
		return "", nil, err
	}
	active, err := s.flows.ActiveIDs(ctx, flows)
	if err != nil {
		return "", nil, fmt.Errorf("failed to check template flows: %w", err)
	}
	found := set.NewStrings(hexes(active)...)
	for _, f := range flows {
		if !found.Contains(f.Hex()) {
			return "", nil, errors.NotFoundf("flow %q", f.Hex())
		}
	}

	other, ok, err := s.broadcasts.TemplateConflict(ctx, name, flows, except)
	if err != nil {
		return "", nil, fmt.Errorf("failed to check template conflicts: %w", err)
	}
	if ok {
		if strings.EqualFold(other.Name, name) {
			return "", nil, errors.AlreadyExistsf("broadcast template named %q", other.Name)
		}
		return "", nil, errors.AlreadyExistsf("broadcast template %q with the same flows", other.Name)
	}
	return name, flows, nil
}

func (s *BroadcastService) CreateTemplate(ctx context.Context, in model.TemplateInput) (*model.BroadcastTemplate, error) {
	name, flows, err := s.checkTemplate(ctx, in, "")
	if err != nil {
		return nil, err
	}
	t := db.BroadcastTemplate{
		ID:        bson.NewObjectId(),
		Name:      name,
		Flow:      flows,
		Platforms: in.Platforms,
		IsActive:  true,
		Audit:     newAudit(actor(ctx), s.clock.Now()),
	}
	if err := s.broadcasts.InsertTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to insert broadcast template: %w", err)
	}
	_ = s.bus.PublishPortal(ctx, pubsub.ChannelBroadcasts, map[string]interface{}{
		"type":       "template.created",
		"templateId": t.ID.Hex(),
	})
	out := toTemplate(t)
	return &out, nil
}

func (s *BroadcastService) UpdateTemplate(ctx context.Context, id string, in model.TemplateInput) (*model.BroadcastTemplate, error) {
	oid, err := ObjectID(id, "broadcast template")
	if err != nil {
		return nil, err
	}
	t, err := s.broadcasts.GetTemplate(ctx, oid)
	if err != nil {
		return nil, err
	}
	name, flows, err := s.checkTemplate(ctx, in, oid)
	if err != nil {
		return nil, err
	}

	t.Name = name
	t.Flow = flows
	t.Platforms = in.Platforms
	t.UpdatedBy = actor(ctx)
	t.UpdatedAt = s.clock.Now()
	if err := s.broadcasts.UpdateTemplate(ctx, t); err != nil {
		return nil, err
	}
	_ = s.bus.PublishPortal(ctx, pubsub.ChannelBroadcasts, map[string]interface{}{
		"type":       "template.updated",
		"templateId": id,
	})
	out := toTemplate(t)
	return &out, nil
}

func (s *BroadcastService) DeleteTemplate(ctx context.Context, id string) error {
	oid, err := ObjectID(id, "broadcast template")
	if err != nil {
		return err
	}
	if err := s.broadcasts.DeactivateTemplate(ctx, oid, actor(ctx), s.clock.Now()); err != nil {
		return err
	}
	_ = s.bus.PublishPortal(ctx, pubsub.ChannelBroadcasts, map[string]interface{}{
		"type":       "template.deleted",
		"templateId": id,
	})
	return nil
}
