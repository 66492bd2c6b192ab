package service

import (
	"context"

	"adminhub/internal/db"
	"adminhub/internal/model"
)

type BotStore interface {
	Get(ctx context.Context, abbreviation string) (db.Bot, error)
}

// BotService reads the profile of the administered bot.
type BotService struct {
	bots         BotStore
	abbreviation string
}

func NewBotService(bots BotStore, abbreviation string) *BotService {
	return &BotService{bots: bots, abbreviation: abbreviation}
}

// GetBot returns the configured bot.
func (s *BotService) GetBot(ctx context.Context) (*model.Bot, error) {
	b, err := s.bots.Get(ctx, s.abbreviation)
	if err != nil {
		return nil, err
	}
	return &model.Bot{
		ID:            idHex(b.ID),
		Name:          b.Name,
		Abbreviation:  b.Abbreviation,
		AllowedOrigin: nonNilStrings(b.Portal.AllowedOrigin),
		Region:        b.Portal.Region,
	}, nil
}
