package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"go.uber.org/zap"

	"adminhub/internal/db"
	"adminhub/internal/model"
	"adminhub/internal/pubsub"
)

// GradingService reviews how the bot matched incoming messages.
type GradingService struct {
	messages  MessageStore
	questions QuestionStore
	bus       EventBus
	clock     clock.Clock
	log       *zap.Logger
	lang      string
}

func NewGradingService(messages MessageStore, questions QuestionStore, bus EventBus, clk clock.Clock, lang string, log *zap.Logger) *GradingService {
	if lang == "" {
		lang = "EN"
	}
	return &GradingService{
		messages:  messages,
		questions: questions,
		bus:       bus,
		clock:     clk,
		log:       log,
		lang:      lang,
	}
}

func (s *GradingService) toGradingMessage(m db.Message) model.GradingMessage {
	out := model.GradingMessage{
		ID:        m.ID.Hex(),
		Text:      m.Text(s.lang),
		Platform:  m.Platform,
		SenderID:  idHex(m.SenderID),
		CreatedAt: m.CreatedAt,
	}
	if m.Chatbot != nil {
		out.ConvoID = m.Chatbot.ConvoID
		out.Unanswered = m.Chatbot.Unanswered
	}
	if m.NLP != nil && len(m.NLP.Response.MatchedQuestions) > 0 {
		best := m.NLP.Response.MatchedQuestions[0]
		out.Matched = &model.MatchedQuestion{
			ID:       idHex(best.QuestionID),
			Text:     best.QuestionText,
			Topic:    best.QuestionTopic,
			Accuracy: best.Score * 100,
		}
	}
	if m.AdminPortal != nil {
		out.Answer = idHex(m.AdminPortal.Answer)
	}
	return out
}

func (s *GradingService) ListGradingMessages(ctx context.Context, p db.ListGradingParams) ([]model.GradingMessage, int, error) {
	if p.Language == "" {
		p.Language = s.lang
	}
	msgs, total, err := s.messages.ListGrading(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.GradingMessage, len(msgs))
	for i, m := range msgs {
		out[i] = s.toGradingMessage(m)
	}
	return out, total, nil
}

// GradeMessage records that a message should have resolved to the chosen
// question. The override is written first; then the message text moves
// from the previous question's variations to the chosen question's. The
// variation steps are best effort and reported by count.
func (s *GradingService) GradeMessage(ctx context.Context, messageID, questionID string) (*model.GradeResult, error) {
	mid, err := ObjectID(messageID, "message")
	if err != nil {
		return nil, err
	}
	chosen, err := ObjectID(questionID, "question")
	if err != nil {
		return nil, err
	}

	msg, err := s.messages.Get(ctx, mid)
	if err != nil {
		return nil, err
	}
	previous := msg.CurrentAnswer()
	if previous == chosen {
		return &model.GradeResult{}, nil
	}
	if _, err := s.questions.Get(ctx, chosen); err != nil {
		return nil, err
	}

	by, now := actor(ctx), s.clock.Now()
	result := &model.GradeResult{Updated: true}
	result.Graded, err = s.messages.SetGrading(ctx, mid, chosen, by, now)
	if err != nil {
		return nil, fmt.Errorf("failed to grade message: %w", err)
	}

	text := msg.Text(s.lang)
	if text != "" && previous != "" {
		result.VariationsRemoved, err = s.questions.RemoveVariation(ctx, previous, text, by, now)
		if err != nil {
			s.log.Warn("Failed to remove variation from previous question",
				zap.String("messageId", messageID),
				zap.String("questionId", previous.Hex()),
				zap.Error(err))
		}
	}
	if result.VariationsRemoved > 0 {
		result.VariationsAdded, err = s.questions.AddVariation(ctx, chosen, db.Variation{
			ID:       uuid.NewString(),
			Text:     text,
			Language: s.lang,
		}, by, now)
		if err != nil {
			s.log.Warn("Failed to add variation to chosen question",
				zap.String("messageId", messageID),
				zap.String("questionId", questionID),
				zap.Error(err))
		}
	}

	_ = s.bus.PublishPortal(ctx, pubsub.ChannelGrading, map[string]interface{}{
		"type":       "message.graded",
		"messageId":  messageID,
		"questionId": questionID,
	})
	return result, nil
}

// SkipMessage marks a message graded without changing its answer.
func (s *GradingService) SkipMessage(ctx context.Context, messageID string) (*model.GradeResult, error) {
	mid, err := ObjectID(messageID, "message")
	if err != nil {
		return nil, err
	}
	if _, err := s.messages.Get(ctx, mid); err != nil {
		return nil, err
	}
	graded, err := s.messages.SetGrading(ctx, mid, "", actor(ctx), s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to skip message: %w", err)
	}

	_ = s.bus.PublishPortal(ctx, pubsub.ChannelGrading, map[string]interface{}{
		"type":      "message.skipped",
		"messageId": messageID,
	})
	return &model.GradeResult{Updated: graded > 0, Graded: graded}, nil
}
