package service

import (
	"context"
	"testing"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/mgo/v3/bson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adminhub/internal/db"
	"adminhub/internal/model"
)

func TestUpdateBotUser(t *testing.T) {
	id := bson.NewObjectId()
	users := &fakeBotUsers{users: map[bson.ObjectId]db.BotUser{
		id: {ID: id, FirstName: "Kim", LastName: "Tan", Tags: []string{"old"}, CreatedAt: epoch},
	}}
	svc := NewBotUserService(users, &fakeMessages{}, testclock.NewClock(epoch), zap.NewNop())

	out, err := svc.UpdateBotUser(context.Background(), id.Hex(), model.BotUserInput{Tags: []string{" vip", "vip", "", "billing"}, Note: "called twice"})
	require.NoError(t, err)
	assert.Equal(t, "Kim Tan", out.Name)
	assert.Equal(t, []string{"billing", "vip"}, out.Tags)
	assert.Equal(t, "called twice", out.Note)

	_, err = svc.GetBotUser(context.Background(), bson.NewObjectId().Hex())
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestListMessages(t *testing.T) {
	user := bson.NewObjectId()
	in := textMessage(t, "hello")
	in.SenderID = user
	in.Chatbot = &db.Chatbot{ConvoID: "c9"}
	out := textMessage(t, "hi there")
	out.SenderID = ""
	out.ReceiverID = user
	out.Type = "text"
	broken := db.Message{ID: bson.NewObjectId(), Type: "hologram", SenderID: user, CreatedAt: epoch}

	msgs := &fakeMessages{messages: map[bson.ObjectId]db.Message{in.ID: in, out.ID: out, broken.ID: broken}}
	svc := NewBotUserService(&fakeBotUsers{}, msgs, testclock.NewClock(epoch), zap.NewNop())

	list, total, err := svc.ListMessages(context.Background(), user.Hex(), db.ListConversationParams{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	byID := map[string]int{}
	for i, m := range list {
		byID[m.ID] = i
	}
	got := list[byID[in.ID.Hex()]]
	assert.True(t, got.FromUser)
	assert.Equal(t, "message", got.Type)
	assert.Equal(t, "c9", got.ConvoID)
	require.NotNil(t, got.Data)
	assert.Equal(t, "hello", got.Data.Text("EN"))

	got = list[byID[out.ID.Hex()]]
	assert.False(t, got.FromUser)
	assert.Equal(t, "message", got.Type, "legacy text folds into message")

	got = list[byID[broken.ID.Hex()]]
	assert.Equal(t, "hologram", got.Type)
	assert.Nil(t, got.Data)
}
