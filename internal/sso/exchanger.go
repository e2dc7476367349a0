package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/pkg/utilities"
)

// maxBodyBytes caps how much of any provider response is read.
const maxBodyBytes = 1 << 20

// tokenResponse is the token endpoint's JSON body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// TokenExchanger talks to the token and revocation endpoints.
type TokenExchanger struct {
	creds     ClientCredentials
	endpoints Endpoints
	client    *http.Client
	logger    *zap.SugaredLogger
	metrics   *Metrics
	now       func() time.Time
}

func NewTokenExchanger(creds ClientCredentials, endpoints Endpoints, client *http.Client, logger *zap.SugaredLogger, metrics *Metrics) *TokenExchanger {
	if client == nil {
		client = NewHTTPClient(0)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &TokenExchanger{
		creds:     creds,
		endpoints: endpoints,
		client:    client,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// ExchangeCode trades an authorization code for tokens.
func (e *TokenExchanger) ExchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	form := url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
	}
	if e.creds.RedirectURI != "" {
		form.Set("redirect_uri", e.creds.RedirectURI)
	}
	return e.requestToken(ctx, "exchange", ErrTokenExchange, form)
}

// Refresh trades a refresh token for a new token set. When the response
// omits refresh_token the caller's refresh token stays valid and is carried
// into the new set.
func (e *TokenExchanger) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	ts, err := e.requestToken(ctx, "refresh", ErrTokenRefresh, form)
	if err != nil {
		return nil, err
	}
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	return ts, nil
}

// Revoke asks the provider to invalidate token. Only HTTP 200 counts as success.
func (e *TokenExchanger) Revoke(ctx context.Context, token string, hint TokenTypeHint) error {
	start := time.Now()
	form := url.Values{
		"token":           {token},
		"token_type_hint": {string(hint)},
	}
	status, body, err := e.post(ctx, e.endpoints.RevokeURL, form)
	if err != nil {
		e.metrics.observe("revoke", start, outcomeOf(err))
		return transportError(ErrRevocationFailed, err)
	}
	if status != http.StatusOK {
		e.metrics.observe("revoke", start, "rejected")
		return statusError(ErrRevocationFailed, status, body)
	}
	e.metrics.observe("revoke", start, "ok")
	return nil
}

func (e *TokenExchanger) requestToken(ctx context.Context, op string, kind error, form url.Values) (*TokenSet, error) {
	start := time.Now()
	status, body, err := e.post(ctx, e.endpoints.TokenURL, form)
	if err == nil && status == http.StatusNotFound && e.hasLegacyEndpoint() {
		e.logger.Warnw("token endpoint returned 404, retrying legacy endpoint",
			"op", op, "legacy_url", e.endpoints.LegacyTokenURL)
		status, body, err = e.post(ctx, e.endpoints.LegacyTokenURL, form)
	}
	if err != nil {
		e.metrics.observe(op, start, outcomeOf(err))
		e.logger.Warnw("token request failed", "op", op, "error", err)
		return nil, transportError(kind, err)
	}
	if status < 200 || status > 299 {
		e.metrics.observe(op, start, "rejected")
		pe := statusError(kind, status, body)
		e.logger.Warnw("token request rejected", "op", op, "status", status, "body", pe.Body)
		return nil, pe
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		e.metrics.observe(op, start, "malformed")
		return nil, &ProviderError{Kind: kind, Status: status, Body: utilities.Truncate(string(body), bodyLogLimit), Err: fmt.Errorf("decode token response: %w", err)}
	}
	if err := tr.validate(); err != nil {
		e.metrics.observe(op, start, "malformed")
		return nil, &ProviderError{Kind: kind, Status: status, Err: err}
	}
	e.metrics.observe(op, start, "ok")
	return &TokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		ExpiresAt:    e.now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

func (e *TokenExchanger) hasLegacyEndpoint() bool {
	return e.endpoints.LegacyTokenURL != "" && e.endpoints.LegacyTokenURL != e.endpoints.TokenURL
}

// post sends an HTTP Basic authenticated form POST and returns status and body.
func (e *TokenExchanger) post(ctx context.Context, endpoint string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(e.creds.ClientID, e.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", e.creds.UserAgent())
	if e.endpoints.Host != "" {
		req.Host = e.endpoints.Host
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			e.logger.Debugw("close response body", "error", errClose)
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (tr tokenResponse) validate() error {
	var missing []string
	if tr.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if tr.TokenType == "" {
		missing = append(missing, "token_type")
	}
	if tr.ExpiresIn <= 0 {
		missing = append(missing, "expires_in")
	}
	if len(missing) > 0 {
		return errors.New("token response missing " + strings.Join(missing, ", "))
	}
	return nil
}
