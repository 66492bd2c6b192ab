package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/mgo/v3/bson"
	"go.uber.org/zap"

	"adminhub/internal/component"
	"adminhub/internal/db"
	"adminhub/internal/model"
	"adminhub/internal/pubsub"
)

func toQuestion(q db.Question, flows map[bson.ObjectId]db.Flow) model.Question {
	out := model.Question{
		ID:                 q.ID.Hex(),
		Text:               q.Text,
		AlternateQuestions: make([]model.Variation, len(q.AlternateQuestions)),
		Answers:            make([]model.Answer, len(q.Answers)),
		Topic:              q.Topic,
		Tags:               q.Tags,
		ActiveAt:           q.ActiveAt,
		ExpireAt:           q.ExpireAt,
		Audit:              toAudit(q.Audit),
	}
	for i, v := range q.AlternateQuestions {
		out.AlternateQuestions[i] = model.Variation{ID: v.ID, Text: v.Text, Language: v.Language, Internal: v.Internal}
	}
	for i, a := range q.Answers {
		answer := model.Answer{ID: a.ID, FlowID: idHex(a.Flow.FlowID), BotUserGroup: a.BotUserGroup}
		if f, ok := flows[a.Flow.FlowID]; ok {
			flow := toFlow(f)
			answer.Flow = &flow
		}
		out.Answers[i] = answer
	}
	return out
}

// answerFlows loads the active flows answering questions, keyed by id.
func (s *FlowService) answerFlows(ctx context.Context, questions ...db.Question) (map[bson.ObjectId]db.Flow, error) {
	var ids []bson.ObjectId
	for _, q := range questions {
		ids = append(ids, answerFlowIDs(q)...)
	}
	flows, err := s.flows.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load answer flows: %w", err)
	}
	byID := make(map[bson.ObjectId]db.Flow, len(flows))
	for _, f := range flows {
		byID[f.ID] = f
	}
	return byID, nil
}

func answerFlowIDs(q db.Question) []bson.ObjectId {
	var ids []bson.ObjectId
	for _, a := range q.Answers {
		if a.Flow.FlowID != "" {
			ids = append(ids, a.Flow.FlowID)
		}
	}
	return ids
}

func (s *FlowService) GetQuestion(ctx context.Context, id string) (*model.Question, error) {
	oid, err := ObjectID(id, "question")
	if err != nil {
		return nil, err
	}
	q, err := s.questions.Get(ctx, oid)
	if err != nil {
		return nil, err
	}
	flows, err := s.answerFlows(ctx, q)
	if err != nil {
		return nil, err
	}
	out := toQuestion(q, flows)
	return &out, nil
}

func (s *FlowService) ListQuestions(ctx context.Context, p db.ListQuestionsParams) ([]model.Question, int, error) {
	if p.Language == "" {
		p.Language = s.lang
	}
	questions, total, err := s.questions.List(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	flows, err := s.answerFlows(ctx, questions...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.Question, len(questions))
	for i, q := range questions {
		out[i] = toQuestion(q, flows)
	}
	return out, total, nil
}

func validateQuestionInput(in model.QuestionInput) error {
	if strings.TrimSpace(in.Text) == "" {
		return errors.NotValidf("empty question text")
	}
	hasText := strings.TrimSpace(in.Response.Text) != ""
	hasFlow := in.Response.FlowID != ""
	if hasText == hasFlow {
		return errors.NotValidf("response needs exactly one of text or flowId")
	}
	if in.ActiveAt != nil && in.ExpireAt != nil && !in.ExpireAt.After(*in.ActiveAt) {
		return errors.NotValidf("expireAt not after activeAt")
	}
	for i, v := range in.AlternateQuestions {
		if strings.TrimSpace(v.Text) == "" {
			return errors.NotValidf("empty alternate question %d", i)
		}
	}
	return nil
}

// responseFlow resolves the flow answering a new question. Free text is
// wrapped in an unnamed flow, reusing an active one with the same
// language, topic and text.
func (s *FlowService) responseFlow(ctx context.Context, in model.QuestionInput, lang string) (db.Flow, bool, error) {
	if in.Response.FlowID != "" {
		oid, err := ObjectID(in.Response.FlowID, "flow")
		if err != nil {
			return db.Flow{}, false, err
		}
		f, err := s.flows.Get(ctx, oid)
		return f, false, err
	}

	text := strings.TrimSpace(in.Response.Text)
	hash := contentHash(lang, in.Topic, text)
	f, ok, err := s.flows.FindInline(ctx, hash)
	if err != nil {
		return db.Flow{}, false, fmt.Errorf("failed to look up inline flow: %w", err)
	}
	if ok {
		return f, false, nil
	}

	var topic *string
	if in.Topic != "" {
		topic = &in.Topic
	}
	f = db.Flow{
		ID:          bson.NewObjectId(),
		Topic:       topic,
		Components:  []component.Component{component.Message(lang, text)},
		Type:        db.FlowTypeInline,
		IsActive:    true,
		ContentHash: hash,
		Audit:       newAudit(actor(ctx), s.clock.Now()),
	}
	if err := s.flows.Insert(ctx, f); err != nil {
		return db.Flow{}, false, fmt.Errorf("failed to insert inline flow: %w", err)
	}
	return f, true, nil
}

// CreateQuestion stores a question answered by one flow.
func (s *FlowService) CreateQuestion(ctx context.Context, in model.QuestionInput) (*model.CreateQuestionResult, error) {
	if err := validateQuestionInput(in); err != nil {
		return nil, err
	}
	lang := in.Language
	if lang == "" {
		lang = s.lang
	}

	flow, created, err := s.responseFlow(ctx, in, lang)
	if err != nil {
		return nil, err
	}

	variations := make([]db.Variation, len(in.AlternateQuestions))
	for i, v := range in.AlternateQuestions {
		vlang := v.Language
		if vlang == "" {
			vlang = lang
		}
		variations[i] = db.Variation{
			ID:       uuid.NewString(),
			Text:     strings.TrimSpace(v.Text),
			Language: vlang,
			Internal: v.Internal,
		}
	}

	q := db.Question{
		ID:                 bson.NewObjectId(),
		Text:               map[string]string{lang: strings.TrimSpace(in.Text)},
		AlternateQuestions: variations,
		Answers: []db.Answer{{
			ID:           uuid.NewString(),
			Flow:         db.AnswerFlow{FlowID: flow.ID},
			BotUserGroup: in.BotUserGroup,
		}},
		Topic:    in.Topic,
		Tags:     in.Tags,
		ActiveAt: in.ActiveAt,
		ExpireAt: in.ExpireAt,
		IsActive: true,
		Audit:    newAudit(actor(ctx), s.clock.Now()),
	}
	if err := s.questions.Insert(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to insert question: %w", err)
	}

	_ = s.bus.PublishPortal(ctx, pubsub.ChannelQuestions, map[string]interface{}{
		"type":        "question.created",
		"questionId":  q.ID.Hex(),
		"flowId":      flow.ID.Hex(),
		"flowCreated": created,
	})

	return &model.CreateQuestionResult{
		QuestionID:  q.ID.Hex(),
		Flow:        toFlow(flow),
		FlowCreated: created,
	}, nil
}

// DeleteQuestions soft-deletes questions and the unnamed flows nothing
// else still references. References from remaining questions, broadcasts
// and broadcast templates are collected before any flag is flipped.
func (s *FlowService) DeleteQuestions(ctx context.Context, ids []string) (*model.DeleteSummary, error) {
	oids, err := ObjectIDs(ids, "question")
	if err != nil {
		return nil, err
	}
	questions, err := s.questions.GetMany(ctx, oids)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}

	candidates := set.NewStrings()
	for _, q := range questions {
		for _, id := range hexes(answerFlowIDs(q)) {
			candidates.Add(id)
		}
	}

	var orphans []bson.ObjectId
	if !candidates.IsEmpty() {
		fromQuestions, err := s.questions.ReferencedFlowIDs(ctx, oids)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question references: %w", err)
		}
		fromBroadcasts, err := s.broadcasts.ReferencedFlowIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan broadcast references: %w", err)
		}
		referenced := set.NewStrings(hexes(fromQuestions)...).Union(set.NewStrings(hexes(fromBroadcasts)...))
		for _, h := range candidates.Difference(referenced).SortedValues() {
			orphans = append(orphans, bson.ObjectIdHex(h))
		}
	}

	by, now := actor(ctx), s.clock.Now()
	summary := &model.DeleteSummary{}
	summary.Questions, err = s.questions.Deactivate(ctx, oids, by, now)
	if err != nil {
		return nil, fmt.Errorf("failed to delete questions: %w", err)
	}
	summary.Flows, err = s.flows.Deactivate(ctx, orphans, true, by, now)
	if err != nil {
		s.log.Error("Failed to delete orphaned flows",
			zap.Strings("flowIds", hexes(orphans)), zap.Error(err))
		return summary, fmt.Errorf("failed to delete orphaned flows: %w", err)
	}

	_ = s.bus.PublishPortal(ctx, pubsub.ChannelQuestions, map[string]interface{}{
		"type":        "question.deleted",
		"questionIds": ids,
		"questions":   summary.Questions,
		"flows":       summary.Flows,
	})
	return summary, nil
}
