package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/juju/mgo/v3/bson"

	"adminhub/internal/auth"
	"adminhub/internal/db"
)

type fakeBus struct {
	mu     sync.Mutex
	events []map[string]interface{}
}

func (b *fakeBus) PublishPortal(_ context.Context, channel string, event map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *fakeBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e["type"].(string))
	}
	return out
}

type fakeFlows struct {
	flows   map[bson.ObjectId]db.Flow
	inserts int
}

func newFakeFlows(flows ...db.Flow) *fakeFlows {
	f := &fakeFlows{flows: map[bson.ObjectId]db.Flow{}}
	for _, flow := range flows {
		f.flows[flow.ID] = flow
	}
	return f
}

func (f *fakeFlows) Get(_ context.Context, id bson.ObjectId) (db.Flow, error) {
	flow, ok := f.flows[id]
	if !ok || !flow.IsActive {
		return db.Flow{}, errors.NotFoundf("flow %q", id.Hex())
	}
	return flow, nil
}

func (f *fakeFlows) GetMany(_ context.Context, ids []bson.ObjectId) ([]db.Flow, error) {
	var out []db.Flow
	for _, id := range ids {
		if flow, ok := f.flows[id]; ok && flow.IsActive {
			out = append(out, flow)
		}
	}
	return out, nil
}

func (f *fakeFlows) ActiveIDs(_ context.Context, ids []bson.ObjectId) ([]bson.ObjectId, error) {
	var out []bson.ObjectId
	for _, id := range ids {
		if flow, ok := f.flows[id]; ok && flow.IsActive {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeFlows) FindInline(_ context.Context, hash string) (db.Flow, bool, error) {
	for _, flow := range f.flows {
		if flow.ContentHash == hash && flow.Name == nil && flow.IsActive {
			return flow, true, nil
		}
	}
	return db.Flow{}, false, nil
}

func (f *fakeFlows) Insert(_ context.Context, flow db.Flow) error {
	f.inserts++
	f.flows[flow.ID] = flow
	return nil
}

func (f *fakeFlows) Update(_ context.Context, id bson.ObjectId, p db.UpdateFlowParams) error {
	flow, ok := f.flows[id]
	if !ok || !flow.IsActive {
		return errors.NotFoundf("flow %q", id.Hex())
	}
	flow.Name = &p.Name
	flow.Topic = p.Topic
	flow.Components = p.Components
	flow.Platforms = p.Platforms
	flow.Params = p.Params
	flow.UpdatedBy = p.UpdatedBy
	flow.UpdatedAt = p.UpdatedAt
	f.flows[id] = flow
	return nil
}

func (f *fakeFlows) List(_ context.Context, p db.ListFlowsParams) ([]db.Flow, int, error) {
	var out []db.Flow
	for _, flow := range f.flows {
		if flow.IsActive && flow.Name != nil {
			out = append(out, flow)
		}
	}
	return out, len(out), nil
}

func (f *fakeFlows) Deactivate(_ context.Context, ids []bson.ObjectId, unnamedOnly bool, by string, at time.Time) (int, error) {
	n := 0
	for _, id := range ids {
		flow, ok := f.flows[id]
		if !ok || !flow.IsActive || (unnamedOnly && flow.Name != nil) {
			continue
		}
		flow.IsActive = false
		flow.UpdatedBy, flow.UpdatedAt = by, at
		f.flows[id] = flow
		n++
	}
	return n, nil
}

type fakeQuestions struct {
	questions map[bson.ObjectId]db.Question
	writes    int
}

func newFakeQuestions(questions ...db.Question) *fakeQuestions {
	f := &fakeQuestions{questions: map[bson.ObjectId]db.Question{}}
	for _, q := range questions {
		f.questions[q.ID] = q
	}
	return f
}

func (f *fakeQuestions) Get(_ context.Context, id bson.ObjectId) (db.Question, error) {
	q, ok := f.questions[id]
	if !ok || !q.IsActive {
		return db.Question{}, errors.NotFoundf("question %q", id.Hex())
	}
	return q, nil
}

func (f *fakeQuestions) GetMany(_ context.Context, ids []bson.ObjectId) ([]db.Question, error) {
	var out []db.Question
	for _, id := range ids {
		if q, ok := f.questions[id]; ok && q.IsActive {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeQuestions) Insert(_ context.Context, q db.Question) error {
	f.writes++
	f.questions[q.ID] = q
	return nil
}

func (f *fakeQuestions) List(_ context.Context, p db.ListQuestionsParams) ([]db.Question, int, error) {
	var out []db.Question
	for _, q := range f.questions {
		if q.IsActive {
			out = append(out, q)
		}
	}
	return out, len(out), nil
}

func (f *fakeQuestions) Deactivate(_ context.Context, ids []bson.ObjectId, by string, at time.Time) (int, error) {
	n := 0
	for _, id := range ids {
		q, ok := f.questions[id]
		if !ok || !q.IsActive {
			continue
		}
		q.IsActive = false
		q.UpdatedBy, q.UpdatedAt = by, at
		f.questions[id] = q
		n++
	}
	f.writes += n
	return n, nil
}

func (f *fakeQuestions) ReferencedFlowIDs(_ context.Context, excluding []bson.ObjectId) ([]bson.ObjectId, error) {
	skip := map[bson.ObjectId]bool{}
	for _, id := range excluding {
		skip[id] = true
	}
	var out []bson.ObjectId
	for _, q := range f.questions {
		if !q.IsActive || skip[q.ID] {
			continue
		}
		out = append(out, answerFlowIDs(q)...)
	}
	return out, nil
}

func (f *fakeQuestions) RemoveVariation(_ context.Context, id bson.ObjectId, text string, by string, at time.Time) (int, error) {
	q, ok := f.questions[id]
	if !ok {
		return 0, nil
	}
	kept := q.AlternateQuestions[:0:0]
	for _, v := range q.AlternateQuestions {
		if !strings.EqualFold(v.Text, text) {
			kept = append(kept, v)
		}
	}
	if len(kept) == len(q.AlternateQuestions) {
		return 0, nil
	}
	q.AlternateQuestions = kept
	f.questions[id] = q
	f.writes++
	return 1, nil
}

func (f *fakeQuestions) AddVariation(_ context.Context, id bson.ObjectId, v db.Variation, by string, at time.Time) (int, error) {
	q, ok := f.questions[id]
	if !ok || !q.IsActive {
		return 0, nil
	}
	for _, existing := range q.AlternateQuestions {
		if strings.EqualFold(existing.Text, v.Text) {
			return 0, nil
		}
	}
	q.AlternateQuestions = append(q.AlternateQuestions, v)
	f.questions[id] = q
	f.writes++
	return 1, nil
}

type fakeMessages struct {
	messages map[bson.ObjectId]db.Message
	writes   int
}

func (f *fakeMessages) Get(_ context.Context, id bson.ObjectId) (db.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return db.Message{}, errors.NotFoundf("message %q", id.Hex())
	}
	return m, nil
}

func (f *fakeMessages) ListGrading(_ context.Context, p db.ListGradingParams) ([]db.Message, int, error) {
	var out []db.Message
	for _, m := range f.messages {
		if m.AdminPortal == nil || !m.AdminPortal.Graded {
			out = append(out, m)
		}
	}
	return out, len(out), nil
}

func (f *fakeMessages) SetGrading(_ context.Context, id, answer bson.ObjectId, by string, at time.Time) (int, error) {
	m, ok := f.messages[id]
	if !ok {
		return 0, nil
	}
	grading := db.Grading{}
	if m.AdminPortal != nil {
		grading = *m.AdminPortal
	}
	grading.Graded = true
	if answer != "" {
		grading.Answer = answer
	}
	m.AdminPortal = &grading
	m.UpdatedBy, m.UpdatedAt = by, &at
	f.messages[id] = m
	f.writes++
	return 1, nil
}

func (f *fakeMessages) ListConversation(_ context.Context, p db.ListConversationParams) ([]db.Message, int, error) {
	var out []db.Message
	for _, m := range f.messages {
		if m.SenderID == p.UserID || m.ReceiverID == p.UserID {
			out = append(out, m)
		}
	}
	return out, len(out), nil
}

type fakeBotUsers struct {
	users   map[bson.ObjectId]db.BotUser
	targets []bson.ObjectId
	params  db.TargetParams
}

func (f *fakeBotUsers) Get(_ context.Context, id bson.ObjectId) (db.BotUser, error) {
	u, ok := f.users[id]
	if !ok {
		return db.BotUser{}, errors.NotFoundf("bot user %q", id.Hex())
	}
	return u, nil
}

func (f *fakeBotUsers) Update(_ context.Context, id bson.ObjectId, tags []string, note string, at time.Time) error {
	u, ok := f.users[id]
	if !ok {
		return errors.NotFoundf("bot user %q", id.Hex())
	}
	u.Tags = tags
	u.Chatbot = &db.BotUserChatbot{Note: note}
	u.UpdatedAt = at
	f.users[id] = u
	return nil
}

func (f *fakeBotUsers) Tags(_ context.Context) ([]string, error) {
	return []string{"vip", "billing"}, nil
}

func (f *fakeBotUsers) TargetIDs(_ context.Context, p db.TargetParams) ([]bson.ObjectId, error) {
	f.params = p
	return f.targets, nil
}

func (f *fakeBotUsers) ListConversations(_ context.Context, p db.ListConversationsParams) ([]db.BotUser, int, error) {
	var out []db.BotUser
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

type fakeBroadcasts struct {
	broadcasts map[bson.ObjectId]db.Broadcast
	templates  map[bson.ObjectId]db.BroadcastTemplate
	refs       []bson.ObjectId
}

func newFakeBroadcasts() *fakeBroadcasts {
	return &fakeBroadcasts{
		broadcasts: map[bson.ObjectId]db.Broadcast{},
		templates:  map[bson.ObjectId]db.BroadcastTemplate{},
	}
}

func (f *fakeBroadcasts) Insert(_ context.Context, bc db.Broadcast) error {
	f.broadcasts[bc.ID] = bc
	return nil
}

func (f *fakeBroadcasts) Get(_ context.Context, id bson.ObjectId) (db.Broadcast, error) {
	bc, ok := f.broadcasts[id]
	if !ok || !bc.IsActive {
		return db.Broadcast{}, errors.NotFoundf("broadcast %q", id.Hex())
	}
	return bc, nil
}

func (f *fakeBroadcasts) List(_ context.Context, p db.ListBroadcastsParams) ([]db.Broadcast, int, error) {
	var out []db.Broadcast
	for _, bc := range f.broadcasts {
		out = append(out, bc)
	}
	return out, len(out), nil
}

func (f *fakeBroadcasts) ReferencedFlowIDs(_ context.Context) ([]bson.ObjectId, error) {
	return f.refs, nil
}

func (f *fakeBroadcasts) ListTemplates(_ context.Context, p db.ListTemplatesParams) ([]db.BroadcastTemplate, int, error) {
	var out []db.BroadcastTemplate
	for _, t := range f.templates {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, len(out), nil
}

func (f *fakeBroadcasts) GetTemplate(_ context.Context, id bson.ObjectId) (db.BroadcastTemplate, error) {
	t, ok := f.templates[id]
	if !ok || !t.IsActive {
		return db.BroadcastTemplate{}, errors.NotFoundf("broadcast template %q", id.Hex())
	}
	return t, nil
}

func (f *fakeBroadcasts) InsertTemplate(_ context.Context, t db.BroadcastTemplate) error {
	f.templates[t.ID] = t
	return nil
}

func (f *fakeBroadcasts) UpdateTemplate(_ context.Context, t db.BroadcastTemplate) error {
	if _, ok := f.templates[t.ID]; !ok {
		return errors.NotFoundf("broadcast template %q", t.ID.Hex())
	}
	f.templates[t.ID] = t
	return nil
}

func (f *fakeBroadcasts) DeactivateTemplate(_ context.Context, id bson.ObjectId, by string, at time.Time) error {
	t, ok := f.templates[id]
	if !ok || !t.IsActive {
		return errors.NotFoundf("broadcast template %q", id.Hex())
	}
	t.IsActive = false
	f.templates[id] = t
	return nil
}

func sameFlows(a, b []bson.ObjectId) bool {
	if len(a) != len(b) {
		return false
	}
	in := map[bson.ObjectId]bool{}
	for _, id := range a {
		in[id] = true
	}
	for _, id := range b {
		if !in[id] {
			return false
		}
	}
	return true
}

func (f *fakeBroadcasts) TemplateConflict(_ context.Context, name string, flows []bson.ObjectId, except bson.ObjectId) (db.BroadcastTemplate, bool, error) {
	for _, t := range f.templates {
		if !t.IsActive || t.ID == except {
			continue
		}
		if strings.EqualFold(t.Name, name) || sameFlows(t.Flow, flows) {
			return t, true, nil
		}
	}
	return db.BroadcastTemplate{}, false, nil
}

type fakeNames map[string]string

func (f fakeNames) Names(_ context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		if name, ok := f[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

type scheduled struct {
	id     string
	sendAt time.Time
}

type fakeScheduler struct {
	calls []scheduled
}

func (f *fakeScheduler) ScheduleBroadcast(_ context.Context, id string, sendAt time.Time) error {
	f.calls = append(f.calls, scheduled{id, sendAt})
	return nil
}

type fakeAccounts struct {
	users map[string]db.PortalUser
	perms map[int][]string
}

func (f *fakeAccounts) GetUser(_ context.Context, id string) (db.PortalUser, error) {
	u, ok := f.users[id]
	if !ok {
		return db.PortalUser{}, errors.NotFoundf("portal user %q", id)
	}
	return u, nil
}

func (f *fakeAccounts) GetUserByUsername(_ context.Context, username string) (db.PortalUser, error) {
	for _, u := range f.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return db.PortalUser{}, errors.NotFoundf("portal user %q", username)
}

func (f *fakeAccounts) CreateUser(_ context.Context, p db.CreateUserParams) (db.PortalUser, error) {
	u := db.PortalUser{
		ID:           p.ID,
		Username:     p.Username,
		Name:         p.Name,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		Group:        p.Group,
		IsActive:     true,
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeAccounts) Permissions(_ context.Context, groupID int) ([]string, error) {
	return f.perms[groupID], nil
}

func (f *fakeAccounts) RecordLoginFailure(_ context.Context, id string, lockAfter int) (int, bool, error) {
	u := f.users[id]
	u.InvalidLoginAttempts++
	u.IsLocked = u.IsLocked || u.InvalidLoginAttempts >= lockAfter
	f.users[id] = u
	return u.InvalidLoginAttempts, u.IsLocked, nil
}

func (f *fakeAccounts) ResetLoginFailures(_ context.Context, id string) error {
	u := f.users[id]
	u.InvalidLoginAttempts = 0
	f.users[id] = u
	return nil
}

type fakeTokens struct {
	issued []auth.Claims
}

func (f *fakeTokens) Issue(claims auth.Claims) (string, time.Time, error) {
	f.issued = append(f.issued, claims)
	return "token-" + claims.UserID, time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC), nil
}
