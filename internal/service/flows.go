package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/mgo/v3/bson"
	"go.uber.org/zap"

	"adminhub/internal/component"
	"adminhub/internal/db"
	"adminhub/internal/model"
	"adminhub/internal/pubsub"
)

// FlowService owns the flow and question aggregates.
type FlowService struct {
	flows      FlowStore
	questions  QuestionStore
	broadcasts BroadcastStore
	bus        EventBus
	clock      clock.Clock
	log        *zap.Logger
	lang       string
}

func NewFlowService(flows FlowStore, questions QuestionStore, broadcasts BroadcastStore, bus EventBus, clk clock.Clock, lang string, log *zap.Logger) *FlowService {
	if lang == "" {
		lang = "EN"
	}
	return &FlowService{
		flows:      flows,
		questions:  questions,
		broadcasts: broadcasts,
		bus:        bus,
		clock:      clk,
		log:        log,
		lang:       lang,
	}
}

func toFlow(f db.Flow) model.Flow {
	components := f.Components
	if components == nil {
		components = []component.Component{}
	}
	return model.Flow{
		ID:             f.ID.Hex(),
		Name:           f.Name,
		Topic:          f.Topic,
		Flow:           components,
		Type:           f.Type,
		Platforms:      f.Platforms,
		Params:         f.Params,
		TriggeredCount: f.TriggeredCount,
		Audit:          toAudit(f.Audit),
	}
}

// checkFlowRefs fails with NotFound when a component jumps to a flow that
// is missing or inactive.
func checkFlowRefs(ctx context.Context, flows FlowStore, components []component.Component) error {
	refs := set.NewStrings()
	for i, c := range components {
		if err := c.Validate(); err != nil {
			return errors.Annotatef(err, "component %d", i)
		}
		for _, ref := range c.FlowRefs() {
			refs.Add(string(ref))
		}
	}
	if refs.IsEmpty() {
		return nil
	}

	wanted := make([]bson.ObjectId, 0, refs.Size())
	for _, ref := range refs.SortedValues() {
		wanted = append(wanted, bson.ObjectIdHex(ref))
	}
	active, err := flows.ActiveIDs(ctx, wanted)
	if err != nil {
		return fmt.Errorf("failed to check flow references: %w", err)
	}
	found := set.NewStrings(hexes(active)...)
	for _, ref := range refs.SortedValues() {
		if !found.Contains(ref) {
			return errors.NotFoundf("referenced flow %q", ref)
		}
	}
	return nil
}

// AssembleFlow loads an active flow with its components.
func (s *FlowService) AssembleFlow(ctx context.Context, id string) (*model.Flow, error) {
	oid, err := ObjectID(id, "flow")
	if err != nil {
		return nil, err
	}
	f, err := s.flows.Get(ctx, oid)
	if err != nil {
		return nil, err
	}
	flow := toFlow(f)
	return &flow, nil
}

func validateFlowInput(in model.FlowInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return errors.NotValidf("empty flow name")
	}
	if len(in.Flow) == 0 {
		return errors.NotValidf("flow %q without components", in.Name)
	}
	return nil
}

// CreateFlow stores a named storyboard flow.
func (s *FlowService) CreateFlow(ctx context.Context, in model.FlowInput) (*model.Flow, error) {
	if err := validateFlowInput(in); err != nil {
		return nil, err
	}
	if err := checkFlowRefs(ctx, s.flows, in.Flow); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	f := db.Flow{
		ID:         bson.NewObjectId(),
		Name:       &name,
		Topic:      in.Topic,
		Components: in.Flow,
		Type:       db.FlowTypeStoryboard,
		IsActive:   true,
		Platforms:  in.Platforms,
		Params:     in.Params,
		Audit:      newAudit(actor(ctx), s.clock.Now()),
	}
	if err := s.flows.Insert(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to insert flow: %w", err)
	}

	_ = s.bus.PublishPortal(ctx, pubsub.ChannelFlows, map[string]interface{}{
		"type":   "flow.created",
		"flowId": f.ID.Hex(),
		"name":   name,
	})

	flow := toFlow(f)
	return &flow, nil
}

// UpdateFlow replaces the editable fields of a named flow.
func (s *FlowService) UpdateFlow(ctx context.Context, id string, in model.FlowInput) (*model.Flow, error) {
	oid, err := ObjectID(id, "flow")
	if err != nil {
		return nil, err
	}
	if err := validateFlowInput(in); err != nil {
		return nil, err
	}
	if err := checkFlowRefs(ctx, s.flows, in.Flow); err != nil {
		return nil, err
	}

	err = s.flows.Update(ctx, oid, db.UpdateFlowParams{
		Name:       strings.TrimSpace(in.Name),
		Topic:      in.Topic,
		Components: in.Flow,
		Platforms:  in.Platforms,
		Params:     in.Params,
		UpdatedBy:  actor(ctx),
		UpdatedAt:  s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	_ = s.bus.PublishPortal(ctx, pubsub.ChannelFlows, map[string]interface{}{
		"type":   "flow.updated",
		"flowId": id,
	})
	return s.AssembleFlow(ctx, id)
}

func (s *FlowService) ListFlows(ctx context.Context, p db.ListFlowsParams) ([]model.Flow, int, error) {
	flows, total, err := s.flows.List(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.Flow, len(flows))
	for i, f := range flows {
		out[i] = toFlow(f)
	}
	return out, total, nil
}

// DeleteFlows soft-deletes flows and reports how many were active.
func (s *FlowService) DeleteFlows(ctx context.Context, ids []string) (int, error) {
	oids, err := ObjectIDs(ids, "flow")
	if err != nil {
		return 0, err
	}
	n, err := s.flows.Deactivate(ctx, oids, false, actor(ctx), s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete flows: %w", err)
	}
	if n > 0 {
		_ = s.bus.PublishPortal(ctx, pubsub.ChannelFlows, map[string]interface{}{
			"type":    "flow.deleted",
			"flowIds": ids,
		})
	}
	return n, nil
}

// contentHash keys an inline flow by its language, topic and text.
func contentHash(lang, topic, text string) string {
	sum := sha256.Sum256([]byte(lang + "\x00" + topic + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
