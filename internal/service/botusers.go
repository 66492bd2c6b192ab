package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"go.uber.org/zap"

	"adminhub/internal/db"
	"adminhub/internal/model"
)

// BotUserService serves bot user profiles and their conversations.
type BotUserService struct {
	users    BotUserStore
	messages MessageStore
	clock    clock.Clock
	log      *zap.Logger
}

func NewBotUserService(users BotUserStore, messages MessageStore, clk clock.Clock, log *zap.Logger) *BotUserService {
	return &BotUserService{users: users, messages: messages, clock: clk, log: log}
}

func toBotUser(u db.BotUser) model.BotUser {
	out := model.BotUser{
		ID:                    u.ID.Hex(),
		Name:                  u.FullName(),
		FirstName:             u.FirstName,
		LastName:              u.LastName,
		Email:                 u.Email,
		Gender:                u.Gender,
		ProfilePicURL:         u.ProfilePicURL,
		Platforms:             nonNilStrings(u.Platforms),
		Tags:                  nonNilStrings(u.Tags),
		IsActive:              u.IsActive,
		IsBroadcastSubscribed: u.IsBroadcastSubscribed,
		CreatedAt:             u.CreatedAt,
	}
	if u.Chatbot != nil {
		out.Note = u.Chatbot.Note
		out.RegisteredAt = u.Chatbot.RegistrationDate
	}
	if u.LastActive != nil {
		out.LastActive = &model.LastActive{
			ReceivedAt: u.LastActive.ReceivedAt,
			SentAt:     u.LastActive.SentAt,
		}
	}
	return out
}

func (s *BotUserService) GetBotUser(ctx context.Context, id string) (*model.BotUser, error) {
	oid, err := ObjectID(id, "bot user")
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, oid)
	if err != nil {
		return nil, err
	}
	out := toBotUser(u)
	return &out, nil
}

// UpdateBotUser replaces the tags and note of a bot user. Tags are trimmed
// and deduplicated.
func (s *BotUserService) UpdateBotUser(ctx context.Context, id string, in model.BotUserInput) (*model.BotUser, error) {
	oid, err := ObjectID(id, "bot user")
	if err != nil {
		return nil, err
	}
	tags := set.NewStrings()
	for _, t := range in.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags.Add(t)
		}
	}
	if err := s.users.Update(ctx, oid, tags.SortedValues(), in.Note, s.clock.Now()); err != nil {
		return nil, err
	}
	return s.GetBotUser(ctx, id)
}

// ListConversations lists bot users by most recent activity.
func (s *BotUserService) ListConversations(ctx context.Context, p db.ListConversationsParams) ([]model.BotUser, int, error) {
	users, total, err := s.users.ListConversations(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.BotUser, len(users))
	for i, u := range users {
		out[i] = toBotUser(u)
	}
	return out, total, nil
}

// ListMessages returns the messages exchanged with a bot user, newest
// first. Messages whose payload cannot be decoded keep their stored type
// and carry no content.
func (s *BotUserService) ListMessages(ctx context.Context, userID string, p db.ListConversationParams) ([]model.ConversationMessage, int, error) {
	oid, err := ObjectID(userID, "bot user")
	if err != nil {
		return nil, 0, err
	}
	p.UserID = oid
	msgs, total, err := s.messages.ListConversation(ctx, p)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}

	out := make([]model.ConversationMessage, len(msgs))
	for i, m := range msgs {
		cm := model.ConversationMessage{
			ID:         m.ID.Hex(),
			Type:       m.Type,
			FromUser:   m.SenderID == oid,
			Platform:   m.Platform,
			QuestionID: idHex(m.MatchedQuestion()),
			CreatedAt:  m.CreatedAt,
		}
		if m.Chatbot != nil {
			cm.ConvoID = m.Chatbot.ConvoID
		}
		c, err := m.Component()
		if err != nil {
			s.log.Warn("Undecodable message payload",
				zap.String("messageId", m.ID.Hex()),
				zap.String("type", m.Type),
				zap.Error(err))
		} else {
			cm.Type = c.Kind.Display()
			cm.Data = &c
		}
		out[i] = cm
	}
	return out, total, nil
}
