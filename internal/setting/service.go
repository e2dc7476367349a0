package setting

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/setting/entity"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/setting/repo"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/sso"
)

// EnvConfig is the SSO registration as given in the environment. Empty
// fields mean "not provided".
type EnvConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
}

func ConfigFromEnv() EnvConfig {
	return EnvConfig{
		ClientID:     strings.TrimSpace(os.Getenv("ESI_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv("ESI_CLIENT_SECRET")),
		CallbackURL:  strings.TrimSpace(os.Getenv("ESI_CALLBACK_URL")),
		Scopes:       sso.ParseScopes(os.Getenv("ESI_SCOPES")),
	}
}

// AdminTokenFromEnv returns the operator token guarding the settings API.
// Empty disables the API.
func AdminTokenFromEnv() string {
	return strings.TrimSpace(os.Getenv("ADMIN_TOKEN"))
}

func (e EnvConfig) provided() bool {
	return e.ClientID != "" || e.ClientSecret != "" || e.CallbackURL != ""
}

// Service owns the persisted SSO configuration.
type Service struct {
	repo   *repo.Repo
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewService(r *repo.Repo, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{repo: r, logger: logger, now: time.Now}
}

// Bootstrap writes the environment registration (when present) and returns
// the validated stored one. Any error here is fatal for startup.
func (s *Service) Bootstrap(ctx context.Context, env EnvConfig) (*entity.SsoConfig, error) {
	if env.provided() {
		scopes := env.Scopes
		if len(scopes) == 0 {
			scopes = sso.DefaultScopes
		}
		in := &entity.SsoConfig{
			ClientID:     env.ClientID,
			ClientSecret: env.ClientSecret,
			CallbackURL:  env.CallbackURL,
			Scope:        strings.Join(sso.NormalizeScopes(scopes), " "),
		}
		if _, err := s.Save(ctx, in); err != nil {
			return nil, err
		}
		s.logger.Infow("sso configuration saved from environment", "callback_url", in.CallbackURL, "scopes", len(scopes))
	}

	cfg, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := credentials(cfg).Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load returns the stored configuration. A missing one is a configuration
// error.
func (s *Service) Load(ctx context.Context) (*entity.SsoConfig, error) {
	cfg, err := s.repo.Load(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, &sso.ConfigError{Field: "sso_configurations", Reason: "has no stored configuration; set ESI_CLIENT_ID, ESI_CLIENT_SECRET and ESI_CALLBACK_URL"}
	}
	return cfg, err
}

// Save validates and stores in, replacing whatever was stored before.
func (s *Service) Save(ctx context.Context, in *entity.SsoConfig) (*entity.SsoConfig, error) {
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.ClientSecret = strings.TrimSpace(in.ClientSecret)
	in.CallbackURL = strings.TrimSpace(in.CallbackURL)
	in.Scope = strings.Join(sso.ParseScopes(in.Scope), " ")
	if err := credentials(in).Validate(); err != nil {
		return nil, err
	}
	in.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, in); err != nil {
		return nil, err
	}
	return in, nil
}

// Credentials loads the stored configuration as SSO client credentials and
// the default scope list.
func (s *Service) Credentials(ctx context.Context) (sso.ClientCredentials, []string, error) {
	cfg, err := s.Load(ctx)
	if err != nil {
		return sso.ClientCredentials{}, nil, err
	}
	creds := credentials(cfg)
	if err := creds.Validate(); err != nil {
		return sso.ClientCredentials{}, nil, err
	}
	return creds, cfg.Scopes(), nil
}

func credentials(c *entity.SsoConfig) sso.ClientCredentials {
	return sso.ClientCredentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURI:  c.CallbackURL,
	}
}
