package sso

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/session"
)

// Exchanger is the token endpoint side of the provider.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) (*TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
	Revoke(ctx context.Context, token string, hint TokenTypeHint) error
}

// Verifier resolves an access token to an Identity.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) (*Identity, error)
}

// CharacterSink receives authenticated characters for long-term storage.
// Failures are logged and never fail the session operation.
type CharacterSink interface {
	Record(ctx context.Context, id *Identity, tokens *TokenSet) error
	UpdateTokens(ctx context.Context, characterID string, tokens *TokenSet) error
	Forget(ctx context.Context, characterID string) error
}

// OAuthClient bundles the provider-facing components built from one set of
// credentials.
type OAuthClient struct {
	Credentials ClientCredentials
	Builder     *AuthURLBuilder
	Exchanger   *TokenExchanger
	Verifier    *TokenVerifier
}

// NewOAuthClient validates creds and builds the provider components. The
// http client is shared by all of them.
func NewOAuthClient(creds ClientCredentials, cfg Config, defaultScopes []string, client *http.Client, logger *zap.SugaredLogger, metrics *Metrics) (*OAuthClient, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = NewHTTPClient(cfg.HTTPTimeout)
	}
	return &OAuthClient{
		Credentials: creds,
		Builder:     NewAuthURLBuilder(creds, cfg.Endpoints.AuthorizeURL, defaultScopes),
		Exchanger:   NewTokenExchanger(creds, cfg.Endpoints, client, logger, metrics),
		Verifier:    NewTokenVerifier(cfg.Endpoints.VerifyURL, creds.UserAgent(), client, logger, metrics),
	}, nil
}

type Options struct {
	Store      session.Store
	Characters CharacterSink
	Logger     *zap.SugaredLogger
	StateTTL   time.Duration
	SessionTTL time.Duration
	Now        func() time.Time
}

// SSOService drives each session through
// anonymous -> awaiting_callback -> authenticated (-> expired -> anonymous).
// Operations on one session id never run concurrently.
type SSOService struct {
	builder    *AuthURLBuilder
	exchanger  Exchanger
	verifier   Verifier
	store      session.Store
	characters CharacterSink
	logger     *zap.SugaredLogger
	stateTTL   time.Duration
	sessionTTL time.Duration
	now        func() time.Time
	locks      *sessionLocks
}

func NewSSOService(builder *AuthURLBuilder, exchanger Exchanger, verifier Verifier, opts Options) *SSOService {
	s := &SSOService{
		builder:    builder,
		exchanger:  exchanger,
		verifier:   verifier,
		store:      opts.Store,
		characters: opts.Characters,
		logger:     opts.Logger,
		stateTTL:   opts.StateTTL,
		sessionTTL: opts.SessionTTL,
		now:        opts.Now,
		locks:      newSessionLocks(),
	}
	if s.store == nil {
		s.store = session.NewMemoryStore(s.sessionTTL)
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	if s.stateTTL <= 0 {
		s.stateTTL = 10 * time.Minute
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// StartLogin begins a login attempt for the session. Any previous state of
// the session is replaced; tokens it held are revoked first.
func (s *SSOService) StartLogin(ctx context.Context, sessionID string, scopes []string) (*AuthorizationRequest, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	req, err := s.builder.Build(scopes)
	if err != nil {
		return nil, err
	}
	if prev, err := s.load(ctx, sessionID); err != nil {
		s.logger.Warnw("load session before login", "session", sessionID, "error", err)
	} else {
		s.discard(ctx, prev)
	}
	rec := &sessionRecord{
		Status:          StatusAwaitingCallback,
		State:           req.State,
		StateExpiresAt:  s.now().UTC().Add(s.stateTTL),
		RequestedScopes: req.Scopes,
	}
	if err := s.save(ctx, sessionID, rec); err != nil {
		return nil, err
	}
	s.logger.Debugw("login started", "session", sessionID, "scopes", len(req.Scopes))
	return req, nil
}

// HandleCallback completes a login attempt. A failure returns a session
// that was awaiting the callback to anonymous; a session in any other state
// is left as it was.
func (s *SSOService) HandleCallback(ctx context.Context, sessionID string, p CallbackParams) (*Identity, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Identity, error) {
		s.logger.Infow("login callback failed", "session", sessionID, "status", rec.Status, "error", err)
		if rec.Status != StatusAwaitingCallback {
			return nil, err
		}
		if clearErr := s.store.Clear(context.WithoutCancel(ctx), sessionID); clearErr != nil {
			s.logger.Errorw("reset session", "session", sessionID, "error", clearErr)
		}
		return nil, err
	}

	if p.Error != "" {
		return fail(&ProviderDeniedError{Code: p.Error, Description: p.ErrorDescription})
	}
	if rec.Status != StatusAwaitingCallback || !statesEqual(p.State, rec.State) {
		return fail(ErrCsrfStateMismatch)
	}
	if !s.now().Before(rec.StateExpiresAt) {
		return fail(fmt.Errorf("%w: login attempt expired", ErrCsrfStateMismatch))
	}
	if p.Code == "" {
		return fail(ErrMissingAuthorizationCode)
	}

	tokens, err := s.exchanger.ExchangeCode(ctx, p.Code)
	if err != nil {
		return fail(err)
	}
	id, err := s.verifier.Verify(ctx, tokens.AccessToken)
	if err != nil {
		return fail(err)
	}
	s.crossCheckSubject(tokens, id)

	next := &sessionRecord{
		Status:          StatusAuthenticated,
		RequestedScopes: rec.RequestedScopes,
		CharacterID:     id.CharacterID,
		Token:           tokens,
		Identity:        id,
	}
	if err := s.save(ctx, sessionID, next); err != nil {
		return fail(err)
	}
	s.logger.Infow("character authenticated", "session", sessionID,
		"character_id", id.CharacterID, "character_name", id.CharacterName)

	if s.characters != nil {
		if err := s.characters.Record(ctx, id, tokens); err != nil {
			s.logger.Warnw("record character", "character_id", id.CharacterID, "error", err)
		}
	}
	return id, nil
}

// EnsureFresh returns a usable token set, refreshing it first when it has
// expired. An unexpired token is returned without any provider call.
func (s *SSOService) EnsureFresh(ctx context.Context, sessionID string) (*TokenSet, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.ensureFresh(ctx, sessionID, rec)
}

// Verify re-verifies the current token, refreshing it first if needed, and
// replaces the stored Identity.
func (s *SSOService) Verify(ctx context.Context, sessionID string) (*Identity, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, sessionID, rec)
}

// Identity returns the stored identity. After a refresh the identity is
// gone and is re-verified here.
func (s *SSOService) Identity(ctx context.Context, sessionID string) (*Identity, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusAuthenticated && rec.Identity != nil && rec.Token != nil && !rec.Token.Expired(s.now()) {
		return rec.Identity, nil
	}
	return s.verify(ctx, sessionID, rec)
}

// Claims decodes the current (fresh) access token.
func (s *SSOService) Claims(ctx context.Context, sessionID string) (*AccessClaims, error) {
	tokens, err := s.EnsureFresh(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return InspectAccessToken(tokens.AccessToken)
}

// Snapshot describes the session without exposing tokens.
func (s *SSOService) Snapshot(ctx context.Context, sessionID string) (*SessionView, error) {
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	view := &SessionView{Status: rec.Status, Identity: rec.Identity, RequestedScopes: rec.RequestedScopes}
	if rec.Token != nil {
		exp := rec.Token.ExpiresAt
		view.ExpiresAt = &exp
		view.TokenType = rec.Token.TokenType
		view.HasRefreshToken = rec.Token.RefreshToken != ""
	}
	return view, nil
}

// Logout revokes what it can and always clears the session. Only a failure
// to clear the store is returned.
func (s *SSOService) Logout(ctx context.Context, sessionID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	rec, err := s.load(ctx, sessionID)
	if err != nil {
		s.logger.Warnw("load session for logout", "session", sessionID, "error", err)
		rec = &sessionRecord{Status: StatusAnonymous}
	}
	s.discard(ctx, rec)
	if err := s.store.Clear(context.WithoutCancel(ctx), sessionID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.Infow("logged out", "session", sessionID, "character_id", rec.CharacterID)
	return nil
}

// RotateSession moves the record stored under from to the unused id to and
// removes the old key.
func (s *SSOService) RotateSession(ctx context.Context, from, to string) error {
	if from == to {
		return errors.New("rotate session: ids are equal")
	}
	unlock := s.locks.Lock(from)
	defer unlock()

	b, err := s.store.Get(ctx, from)
	if errors.Is(err, session.ErrNotFound) {
		return ErrNotAuthenticated
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if err := s.store.Set(ctx, to, b, s.sessionTTL); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := s.store.Clear(context.WithoutCancel(ctx), from); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// discard revokes the tokens held by rec and drops the character's stored
// copy. Failures are logged only.
func (s *SSOService) discard(ctx context.Context, rec *sessionRecord) {
	if rec.Token != nil {
		s.revoke(ctx, rec.Token.AccessToken, HintAccessToken)
		s.revoke(ctx, rec.Token.RefreshToken, HintRefreshToken)
	}
	if rec.CharacterID != "" && s.characters != nil {
		if err := s.characters.Forget(ctx, rec.CharacterID); err != nil {
			s.logger.Warnw("forget character tokens", "character_id", rec.CharacterID, "error", err)
		}
	}
}

func (s *SSOService) revoke(ctx context.Context, token string, hint TokenTypeHint) {
	if token == "" {
		return
	}
	if err := s.exchanger.Revoke(ctx, token, hint); err != nil {
		s.logger.Warnw("token revocation failed", "hint", hint, "error", err)
	}
}

func (s *SSOService) ensureFresh(ctx context.Context, sessionID string, rec *sessionRecord) (*TokenSet, error) {
	switch {
	case rec.Status == StatusExpired:
		return nil, ErrSessionExpired
	case rec.Status != StatusAuthenticated || rec.Token == nil:
		return nil, ErrNotAuthenticated
	}
	if !rec.Token.Expired(s.now()) {
		return rec.Token, nil
	}

	if rec.Token.RefreshToken == "" {
		rec.Status = StatusExpired
		rec.Identity = nil
		if err := s.save(ctx, sessionID, rec); err != nil {
			s.logger.Errorw("persist expired session", "session", sessionID, "error", err)
		}
		return nil, ErrSessionExpired
	}

	next, err := s.exchanger.Refresh(ctx, rec.Token.RefreshToken)
	if err != nil {
		return nil, err
	}
	rec.Token = next
	// the identity described the replaced token
	rec.Identity = nil
	if err := s.save(ctx, sessionID, rec); err != nil {
		return nil, err
	}
	s.logger.Debugw("token refreshed", "session", sessionID, "expires_at", next.ExpiresAt)

	if s.characters != nil && rec.CharacterID != "" {
		if err := s.characters.UpdateTokens(ctx, rec.CharacterID, next); err != nil {
			s.logger.Warnw("update character tokens", "character_id", rec.CharacterID, "error", err)
		}
	}
	return next, nil
}

func (s *SSOService) verify(ctx context.Context, sessionID string, rec *sessionRecord) (*Identity, error) {
	tokens, err := s.ensureFresh(ctx, sessionID, rec)
	if err != nil {
		return nil, err
	}
	id, err := s.verifier.Verify(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	rec.Identity = id
	rec.CharacterID = id.CharacterID
	if err := s.save(ctx, sessionID, rec); err != nil {
		return nil, err
	}
	return id, nil
}

// crossCheckSubject logs when the JWT subject disagrees with the verify
// endpoint. Opaque tokens are skipped.
func (s *SSOService) crossCheckSubject(tokens *TokenSet, id *Identity) {
	claims, err := InspectAccessToken(tokens.AccessToken)
	if err != nil {
		return
	}
	if sub := claims.CharacterID(); sub != "" && sub != id.CharacterID {
		s.logger.Warnw("access token subject does not match verified character",
			"subject", claims.Subject, "character_id", id.CharacterID)
	}
}

func (s *SSOService) load(ctx context.Context, sessionID string) (*sessionRecord, error) {
	b, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return &sessionRecord{Status: StatusAnonymous}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var rec sessionRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if rec.Status == "" {
		rec.Status = StatusAnonymous
	}
	return &rec, nil
}

func (s *SSOService) save(ctx context.Context, sessionID string, rec *sessionRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.store.Set(ctx, sessionID, b, s.sessionTTL); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func statesEqual(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
