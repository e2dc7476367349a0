package sso

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/pkg/utilities"
)

var (
	ErrConfiguration            = errors.New("sso: configuration error")
	ErrProviderDenied           = errors.New("sso: provider denied the authorization")
	ErrCsrfStateMismatch        = errors.New("sso: state parameter mismatch")
	ErrMissingAuthorizationCode = errors.New("sso: missing authorization code")
	ErrTokenExchange            = errors.New("sso: token exchange failed")
	ErrTokenRefresh             = errors.New("sso: token refresh failed")
	ErrTokenVerification        = errors.New("sso: token verification failed")
	ErrRevocationFailed         = errors.New("sso: token revocation failed")
	ErrSessionExpired           = errors.New("sso: session expired")
	ErrNetworkTimeout           = errors.New("sso: network timeout")
	ErrNotAuthenticated         = errors.New("sso: not authenticated")
)

// bodyLogLimit bounds provider bodies kept on errors and in logs.
const bodyLogLimit = 200

// ConfigError names the setting that prevents startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sso: configuration error: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// ProviderDeniedError carries the error the provider put on the callback.
type ProviderDeniedError struct {
	Code        string
	Description string
}

func (e *ProviderDeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("sso: provider denied: %s: %s", e.Code, e.Description)
	}
	return "sso: provider denied: " + e.Code
}

func (e *ProviderDeniedError) Unwrap() error { return ErrProviderDenied }

// ProviderError is a failed call to the provider. Kind is one of the
// ErrToken*/ErrRevocationFailed sentinels; Status is zero when no response
// arrived, in which case Err holds the transport failure.
type ProviderError struct {
	Kind   error
	Status int
	Body   string
	Err    error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%v: status %d: %v", e.Kind, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%v: status %d: %s", e.Kind, e.Status, e.Body)
	default:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
}

func (e *ProviderError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func statusError(kind error, status int, body []byte) *ProviderError {
	return &ProviderError{Kind: kind, Status: status, Body: utilities.Truncate(string(body), bodyLogLimit)}
}

// transportError wraps a failure to get any response. Timeouts additionally
// match ErrNetworkTimeout.
func transportError(kind, err error) *ProviderError {
	if isTimeout(err) {
		err = errors.Join(ErrNetworkTimeout, err)
	}
	return &ProviderError{Kind: kind, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
