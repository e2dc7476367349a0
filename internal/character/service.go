package character

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/character/entity"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/character/repo"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/sso"
)

// Service keeps the character table in step with logins, refreshes and
// logouts. It satisfies sso.CharacterSink.
type Service struct {
	repo   *repo.CharacterRepo
	logger *zap.SugaredLogger
	now    func() time.Time
}

var _ sso.CharacterSink = (*Service)(nil)

func NewService(r *repo.CharacterRepo, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{repo: r, logger: logger, now: time.Now}
}

// Record stores a freshly authenticated character with its tokens.
func (s *Service) Record(ctx context.Context, id *sso.Identity, tokens *sso.TokenSet) error {
	c := &entity.Character{
		CharacterID:   id.CharacterID,
		CharacterName: id.CharacterName,
		OwnerHash:     id.OwnerHash,
		AccessToken:   tokens.AccessToken,
		RefreshToken:  tokens.RefreshToken,
		ExpiresAt:     tokens.ExpiresAt,
		UpdatedAt:     s.now().UTC(),
	}
	if err := s.repo.Upsert(ctx, c); err != nil {
		return err
	}
	s.logger.Debugw("character saved", "character_id", c.CharacterID)
	return nil
}

func (s *Service) UpdateTokens(ctx context.Context, characterID string, tokens *sso.TokenSet) error {
	return s.repo.UpdateTokens(ctx, characterID, tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt)
}

func (s *Service) Forget(ctx context.Context, characterID string) error {
	return s.repo.ClearTokens(ctx, characterID)
}

func (s *Service) Get(ctx context.Context, characterID string) (*entity.Character, error) {
	return s.repo.Get(ctx, characterID)
}

func (s *Service) List(ctx context.Context) ([]*entity.Character, error) {
	return s.repo.List(ctx)
}
