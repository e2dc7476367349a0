package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/pkg/utilities"
)

// verifyResponse mirrors the verification endpoint. Scopes is a single
// space-delimited string and may be absent.
type verifyResponse struct {
	CharacterID        json.Number `json:"CharacterID"`
	CharacterName      string      `json:"CharacterName"`
	ExpiresOn          string      `json:"ExpiresOn"`
	Scopes             string      `json:"Scopes"`
	TokenType          string      `json:"TokenType"`
	CharacterOwnerHash string      `json:"CharacterOwnerHash"`
}

// TokenVerifier resolves a bearer token to the character it belongs to.
type TokenVerifier struct {
	verifyURL string
	userAgent string
	client    *http.Client
	logger    *zap.SugaredLogger
	metrics   *Metrics
}

func NewTokenVerifier(verifyURL, userAgent string, client *http.Client, logger *zap.SugaredLogger, metrics *Metrics) *TokenVerifier {
	if client == nil {
		client = NewHTTPClient(0)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &TokenVerifier{verifyURL: verifyURL, userAgent: userAgent, client: client, logger: logger, metrics: metrics}
}

func (v *TokenVerifier) Verify(ctx context.Context, accessToken string) (*Identity, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.verifyURL, nil)
	if err != nil {
		return nil, &ProviderError{Kind: ErrTokenVerification, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", v.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		v.metrics.observe("verify", start, outcomeOf(err))
		return nil, transportError(ErrTokenVerification, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		v.metrics.observe("verify", start, outcomeOf(err))
		return nil, transportError(ErrTokenVerification, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		v.metrics.observe("verify", start, "rejected")
		pe := statusError(ErrTokenVerification, resp.StatusCode, body)
		v.logger.Warnw("token verification rejected", "status", resp.StatusCode, "body", pe.Body)
		return nil, pe
	}

	id, err := parseIdentity(body)
	if err != nil {
		v.metrics.observe("verify", start, "malformed")
		return nil, &ProviderError{Kind: ErrTokenVerification, Status: resp.StatusCode, Body: utilities.Truncate(string(body), bodyLogLimit), Err: err}
	}
	v.metrics.observe("verify", start, "ok")
	return id, nil
}

func parseIdentity(body []byte) (*Identity, error) {
	var vr verifyResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	var missing []string
	if vr.CharacterID.String() == "" {
		missing = append(missing, "CharacterID")
	}
	if vr.CharacterName == "" {
		missing = append(missing, "CharacterName")
	}
	if vr.ExpiresOn == "" {
		missing = append(missing, "ExpiresOn")
	}
	if vr.TokenType == "" {
		missing = append(missing, "TokenType")
	}
	if vr.CharacterOwnerHash == "" {
		missing = append(missing, "CharacterOwnerHash")
	}
	if len(missing) > 0 {
		return nil, errors.New("verify response missing " + strings.Join(missing, ", "))
	}
	expiresOn, err := parseProviderTime(vr.ExpiresOn)
	if err != nil {
		return nil, err
	}
	scopes := strings.Fields(vr.Scopes)
	if scopes == nil {
		scopes = []string{}
	}
	return &Identity{
		CharacterID:   vr.CharacterID.String(),
		CharacterName: vr.CharacterName,
		OwnerHash:     vr.CharacterOwnerHash,
		ExpiresOn:     expiresOn,
		Scopes:        scopes,
		TokenType:     vr.TokenType,
	}, nil
}

// providerTimeLayouts covers ExpiresOn with and without a zone; zoneless
// values are UTC.
var providerTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseProviderTime(s string) (time.Time, error) {
	for _, layout := range providerTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised ExpiresOn %q", s)
}
