// Package esi calls the EVE Swagger Interface with a character's access
// token.
package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/sso"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/pkg/utilities"
)

const (
	DefaultBaseURL = "https://esi.evetech.net"
	errorBodyLimit = 500
)

// APIError is a non-200 answer from ESI. Body holds at most the first 500
// characters of the response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("esi: status %d: %s", e.Status, e.Body)
}

// Character is the public part of /characters/{id}/.
type Character struct {
	Name           string    `json:"name"`
	CorporationID  int64     `json:"corporation_id"`
	AllianceID     int64     `json:"alliance_id,omitempty"`
	Birthday       time.Time `json:"birthday"`
	Gender         string    `json:"gender"`
	RaceID         int64     `json:"race_id"`
	BloodlineID    int64     `json:"bloodline_id"`
	SecurityStatus float64   `json:"security_status"`
	Description    string    `json:"description,omitempty"`
}

type ServerStatus struct {
	Players       int       `json:"players"`
	ServerVersion string    `json:"server_version"`
	StartTime     time.Time `json:"start_time"`
	VIP           bool      `json:"vip,omitempty"`
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	base := strings.TrimRight(strings.TrimSpace(os.Getenv("ESI_BASE_URL")), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := 30 * time.Second
	if v := os.Getenv("ESI_HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			timeout = d
		}
	}
	return Config{BaseURL: base, Timeout: timeout}
}

// Client issues bearer-authenticated ESI requests.
type Client struct {
	baseURL   string
	userAgent string
	base      *http.Client
	logger    *zap.SugaredLogger
}

func NewClient(cfg Config, userAgent string, logger *zap.SugaredLogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: userAgent,
		base:      sso.NewHTTPClient(cfg.Timeout),
		logger:    logger,
	}
}

// Character fetches /latest/characters/{id}/.
func (c *Client) Character(ctx context.Context, tokens *sso.TokenSet, characterID string) (*Character, error) {
	var out Character
	if err := c.get(ctx, tokens, "/latest/characters/"+url.PathEscape(characterID)+"/", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches /latest/status/.
func (c *Client) Status(ctx context.Context, tokens *sso.TokenSet) (*ServerStatus, error) {
	var out ServerStatus
	if err := c.get(ctx, tokens, "/latest/status/", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, tokens *sso.TokenSet, path string, out any) error {
	// oauth2 wraps the base client's transport; the timeout is copied over
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tokens.OAuth2()))
	hc.Timeout = c.base.Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("esi request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*errorBodyLimit))
		apiErr := &APIError{Status: resp.StatusCode, Body: utilities.Truncate(string(body), errorBodyLimit)}
		c.logger.Warnw("esi request failed", "path", path, "status", resp.StatusCode)
		return apiErr
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode esi response %s: %w", path, err)
	}
	return nil
}
