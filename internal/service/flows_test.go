package service

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/mgo/v3/bson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adminhub/internal/auth"
	"adminhub/internal/component"
	"adminhub/internal/db"
	"adminhub/internal/model"
)

var epoch = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type flowFixture struct {
	svc        *FlowService
	flows      *fakeFlows
	questions  *fakeQuestions
	broadcasts *fakeBroadcasts
	bus        *fakeBus
}

func newFlowFixture(flows []db.Flow, questions []db.Question) flowFixture {
	fx := flowFixture{
		flows:      newFakeFlows(flows...),
		questions:  newFakeQuestions(questions...),
		broadcasts: newFakeBroadcasts(),
		bus:        &fakeBus{},
	}
	fx.svc = NewFlowService(fx.flows, fx.questions, fx.broadcasts, fx.bus, testclock.NewClock(epoch), "EN", zap.NewNop())
	return fx
}

func sessionContext() context.Context {
	return auth.WithClaims(context.Background(), &auth.Claims{UserID: "01HZX3", Username: "ann", IsActive: true})
}

func inlineFlow(topic, text string) db.Flow {
	return db.Flow{
		ID:          bson.NewObjectId(),
		Topic:       &topic,
		Components:  []component.Component{component.Message("EN", text)},
		Type:        db.FlowTypeInline,
		IsActive:    true,
		ContentHash: contentHash("EN", topic, text),
	}
}

func namedFlow(name string) db.Flow {
	return db.Flow{
		ID:         bson.NewObjectId(),
		Name:       &name,
		Components: []component.Component{component.Message("EN", "hello")},
		Type:       db.FlowTypeStoryboard,
		IsActive:   true,
	}
}

func questionAnsweredBy(flow bson.ObjectId) db.Question {
	return db.Question{
		ID:       bson.NewObjectId(),
		Text:     map[string]string{"EN": "how do I pay"},
		Answers:  []db.Answer{{ID: "a1", Flow: db.AnswerFlow{FlowID: flow}}},
		IsActive: true,
	}
}

func jumpTo(id string) component.Component {
	return component.Component{Kind: component.KindFlow, Data: &component.FlowJumpData{FlowID: component.FlowRef(id)}}
}

func TestCreateQuestion_ReusesInlineFlow(t *testing.T) {
	fx := newFlowFixture(nil, nil)
	ctx := sessionContext()
	in := model.QuestionInput{
		Text:     "How do I get a refund?",
		Topic:    "Billing",
		Response: model.ResponseInput{Text: "Contact support"},
	}

	first, err := fx.svc.CreateQuestion(ctx, in)
	require.NoError(t, err)
	assert.True(t, first.FlowCreated)
	assert.Nil(t, first.Flow.Name)
	require.NotNil(t, first.Flow.Topic)
	assert.Equal(t, "Billing", *first.Flow.Topic)
	require.Len(t, first.Flow.Flow, 1)
	assert.Equal(t, component.KindMessage, first.Flow.Flow[0].Kind)
	assert.Equal(t, "Contact support", first.Flow.Flow[0].Text("EN"))
	assert.Equal(t, "01HZX3", first.Flow.CreatedBy)

	second, err := fx.svc.CreateQuestion(ctx, in)
	require.NoError(t, err)
	assert.False(t, second.FlowCreated)
	assert.Equal(t, first.Flow.ID, second.Flow.ID)
	assert.NotEqual(t, first.QuestionID, second.QuestionID)
	assert.Equal(t, 1, fx.flows.inserts)

	q, err := fx.svc.GetQuestion(ctx, second.QuestionID)
	require.NoError(t, err)
	require.Len(t, q.Answers, 1)
	assert.Equal(t, first.Flow.ID, q.Answers[0].FlowID)
	require.NotNil(t, q.Answers[0].Flow)
	assert.Equal(t, []string{"question.created", "question.created"}, fx.bus.types())
}

func TestCreateQuestion_DifferentTopicCreatesFlow(t *testing.T) {
	fx := newFlowFixture(nil, nil)
	ctx := sessionContext()

	a, err := fx.svc.CreateQuestion(ctx, model.QuestionInput{Text: "refund", Topic: "Billing", Response: model.ResponseInput{Text: "Contact support"}})
	require.NoError(t, err)
	b, err := fx.svc.CreateQuestion(ctx, model.QuestionInput{Text: "login", Topic: "Account", Response: model.ResponseInput{Text: "Contact support"}})
	require.NoError(t, err)
	assert.NotEqual(t, a.Flow.ID, b.Flow.ID)
	assert.True(t, b.FlowCreated)
}

func TestCreateQuestion_DifferentLanguageCreatesFlow(t *testing.T) {
	fx := newFlowFixture(nil, nil)
	ctx := sessionContext()

	en, err := fx.svc.CreateQuestion(ctx, model.QuestionInput{Text: "refund", Topic: "Billing", Response: model.ResponseInput{Text: "Contact support"}})
	require.NoError(t, err)
	zh, err := fx.svc.CreateQuestion(ctx, model.QuestionInput{Text: "refund", Language: "ZH", Topic: "Billing", Response: model.ResponseInput{Text: "Contact support"}})
	require.NoError(t, err)

	assert.True(t, zh.FlowCreated)
	assert.NotEqual(t, en.Flow.ID, zh.Flow.ID)
	require.Len(t, zh.Flow.Flow, 1)
	assert.Equal(t, "Contact support", zh.Flow.Flow[0].Text("ZH"))
}

func TestCreateQuestion_FlowResponse(t *testing.T) {
	named := namedFlow("Refunds")
	fx := newFlowFixture([]db.Flow{named}, nil)
	ctx := sessionContext()

	res, err := fx.svc.CreateQuestion(ctx, model.QuestionInput{
		Text:               "refund please",
		Topic:              "Billing",
		Response:           model.ResponseInput{FlowID: named.ID.Hex()},
		AlternateQuestions: []model.VariationInput{{Text: "money back"}, {Text: "rembourser", Language: "FR"}},
	})
	require.NoError(t, err)
	assert.False(t, res.FlowCreated)
	assert.Equal(t, named.ID.Hex(), res.Flow.ID)

	stored := fx.questions.questions[bson.ObjectIdHex(res.QuestionID)]
	require.Len(t, stored.AlternateQuestions, 2)
	assert.Equal(t, "EN", stored.AlternateQuestions[0].Language)
	assert.Equal(t, "FR", stored.AlternateQuestions[1].Language)
	assert.NotEmpty(t, stored.AlternateQuestions[0].ID)
	assert.NotEqual(t, stored.AlternateQuestions[0].ID, stored.AlternateQuestions[1].ID)

	_, err = fx.svc.CreateQuestion(ctx, model.QuestionInput{Text: "x", Response: model.ResponseInput{FlowID: bson.NewObjectId().Hex()}})
	assert.True(t, errors.Is(err, errors.NotFound))

	_, err = fx.svc.CreateQuestion(ctx, model.QuestionInput{Text: "x", Response: model.ResponseInput{FlowID: "nope"}})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestCreateQuestion_Invalid(t *testing.T) {
	fx := newFlowFixture(nil, nil)
	ctx := sessionContext()
	active := epoch.Add(time.Hour)

	for name, in := range map[string]model.QuestionInput{
		"no text":     {Response: model.ResponseInput{Text: "hi"}},
		"no response": {Text: "hi"},
		"both":        {Text: "hi", Response: model.ResponseInput{Text: "hi", FlowID: bson.NewObjectId().Hex()}},
		"window":      {Text: "hi", Response: model.ResponseInput{Text: "hi"}, ActiveAt: &active, ExpireAt: &epoch},
	} {
		_, err := fx.svc.CreateQuestion(ctx, in)
		assert.True(t, errors.Is(err, errors.NotValid), name)
	}
	assert.Zero(t, fx.questions.writes)
}

func TestDeleteQuestions_SoleOwnerCascades(t *testing.T) {
	flow := inlineFlow("Billing", "Contact support")
	q := questionAnsweredBy(flow.ID)
	fx := newFlowFixture([]db.Flow{flow}, []db.Question{q})

	summary, err := fx.svc.DeleteQuestions(sessionContext(), []string{q.ID.Hex()})
	require.NoError(t, err)
	assert.Equal(t, &model.DeleteSummary{Questions: 1, Flows: 1}, summary)
	assert.False(t, fx.flows.flows[flow.ID].IsActive)
	assert.False(t, fx.questions.questions[q.ID].IsActive)
	assert.Equal(t, "01HZX3", fx.flows.flows[flow.ID].UpdatedBy)
}

func TestDeleteQuestions_SharedFlowSurvives(t *testing.T) {
	flow := inlineFlow("Billing", "Contact support")
	q1, q2 := questionAnsweredBy(flow.ID), questionAnsweredBy(flow.ID)
	fx := newFlowFixture([]db.Flow{flow}, []db.Question{q1, q2})

	summary, err := fx.svc.DeleteQuestions(sessionContext(), []string{q1.ID.Hex()})
	require.NoError(t, err)
	assert.Equal(t, &model.DeleteSummary{Questions: 1, Flows: 0}, summary)
	assert.True(t, fx.flows.flows[flow.ID].IsActive)

	summary, err = fx.svc.DeleteQuestions(sessionContext(), []string{q2.ID.Hex()})
	require.NoError(t, err)
	assert.Equal(t, &model.DeleteSummary{Questions: 1, Flows: 1}, summary)
}

func TestDeleteQuestions_BothSharersAtOnce(t *testing.T) {
	flow := inlineFlow("Billing", "Contact support")
	q1, q2 := questionAnsweredBy(flow.ID), questionAnsweredBy(flow.ID)
	fx := newFlowFixture([]db.Flow{flow}, []db.Question{q1, q2})

	summary, err := fx.svc.DeleteQuestions(sessionContext(), []string{q1.ID.Hex(), q2.ID.Hex(), q1.ID.Hex()})
	require.NoError(t, err)
	assert.Equal(t, &model.DeleteSummary{Questions: 2, Flows: 1}, summary)
}

func TestDeleteQuestions_KeepsNamedAndBroadcastFlows(t *testing.T) {
	named := namedFlow("Refunds")
	sent := inlineFlow("Promo", "Sale today")
	q1, q2 := questionAnsweredBy(named.ID), questionAnsweredBy(sent.ID)
	fx := newFlowFixture([]db.Flow{named, sent}, []db.Question{q1, q2})
	fx.broadcasts.refs = []bson.ObjectId{sent.ID}

	summary, err := fx.svc.DeleteQuestions(sessionContext(), []string{q1.ID.Hex(), q2.ID.Hex()})
	require.NoError(t, err)
	assert.Equal(t, &model.DeleteSummary{Questions: 2, Flows: 0}, summary)
	assert.True(t, fx.flows.flows[named.ID].IsActive)
	assert.True(t, fx.flows.flows[sent.ID].IsActive)
}

func TestDeleteQuestions_Unknown(t *testing.T) {
	fx := newFlowFixture(nil, nil)

	summary, err := fx.svc.DeleteQuestions(sessionContext(), []string{bson.NewObjectId().Hex()})
	require.NoError(t, err)
	assert.Equal(t, &model.DeleteSummary{}, summary)

	_, err = fx.svc.DeleteQuestions(sessionContext(), []string{"zz"})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestCreateFlow_ChecksReferences(t *testing.T) {
	target := namedFlow("Target")
	fx := newFlowFixture([]db.Flow{target}, nil)
	ctx := sessionContext()

	_, err := fx.svc.CreateFlow(ctx, model.FlowInput{Name: "Jumper", Flow: []component.Component{jumpTo(bson.NewObjectId().Hex())}})
	assert.True(t, errors.Is(err, errors.NotFound))

	flow, err := fx.svc.CreateFlow(ctx, model.FlowInput{Name: " Jumper ", Flow: []component.Component{jumpTo(target.ID.Hex())}})
	require.NoError(t, err)
	require.NotNil(t, flow.Name)
	assert.Equal(t, "Jumper", *flow.Name)
	assert.Equal(t, db.FlowTypeStoryboard, flow.Type)

	_, err = fx.svc.CreateFlow(ctx, model.FlowInput{Name: "", Flow: []component.Component{component.Message("EN", "x")}})
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = fx.svc.CreateFlow(ctx, model.FlowInput{Name: "Empty"})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestUpdateAndDeleteFlow(t *testing.T) {
	f := namedFlow("Greeting")
	fx := newFlowFixture([]db.Flow{f}, nil)
	ctx := sessionContext()

	updated, err := fx.svc.UpdateFlow(ctx, f.ID.Hex(), model.FlowInput{
		Name: "Welcome",
		Flow: []component.Component{component.Message("EN", "Welcome!")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Welcome", *updated.Name)
	assert.Equal(t, "Welcome!", updated.Flow[0].Text("EN"))

	n, err := fx.svc.DeleteFlows(ctx, []string{f.ID.Hex()})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = fx.svc.AssembleFlow(ctx, f.ID.Hex())
	assert.True(t, errors.Is(err, errors.NotFound))
	_, err = fx.svc.UpdateFlow(ctx, f.ID.Hex(), model.FlowInput{Name: "Again", Flow: []component.Component{component.Message("EN", "x")}})
	assert.True(t, errors.Is(err, errors.NotFound))

	assert.Equal(t, []string{"flow.updated", "flow.deleted"}, fx.bus.types())
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, contentHash("EN", "Billing", "Contact support"), contentHash("EN", "Billing", "Contact support"))
	assert.NotEqual(t, contentHash("EN", "Billing", "Contact support"), contentHash("EN", "Billing ", "Contact support"))
	assert.NotEqual(t, contentHash("EN", "Billing", "Contact support"), contentHash("ZH", "Billing", "Contact support"))
	assert.NotEqual(t, contentHash("EN", "a", "bc"), contentHash("EN", "ab", "c"))
}
