package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	Twitter   = "twitter"
	Instagram = "instagram"
	Facebook  = "facebook"
	Linkedin  = "linkedin"
)

// TokenSet is what a code exchange or refresh yields. RefreshToken may be
// empty: some providers issue non-refreshable tokens or keep the previous
// refresh token across rotations.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	Scope        string
}

func (t *TokenSet) ExpiresAt() time.Time {
	return time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
}

type UserInfo struct {
	UserID   string
	Username string
}

type PublishRequest struct {
	Caption  string
	ImageURL string
}

type PublishResult struct {
	RemotePostID string
}

// Provider is the capability interface every platform adapter implements.
// Adding a platform means adding one implementation, not touching dispatch.
type Provider interface {
	Name() string
	RequiresPKCE() bool
	AuthorizationURL(state, codeChallenge string) string
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
	Publish(ctx context.Context, accessToken string, post *PublishRequest) (*PublishResult, error)
	UserInfo(ctx context.Context, accessToken string) (*UserInfo, error)
	Revoke(ctx context.Context, accessToken string) error
}

// Registry maps provider names to adapters.
type Registry map[string]Provider

func (r Registry) Get(name string) (Provider, error) {
	p, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
	return p, nil
}

// httpClient is shared by all adapters. A hung provider call must not pin a
// dispatch slot indefinitely.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// classifyResponse maps a provider HTTP status to the error taxonomy. The
// body is included for inspection but callers branch on kind only.
func classifyResponse(providerName string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("status %d: %s", resp.StatusCode, string(body))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Provider: providerName, Err: err}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{Provider: providerName, RetryAfter: retryAfterHeader(resp)}
	case resp.StatusCode >= 500:
		return &TransientError{Provider: providerName, Err: err}
	default:
		return &PermanentError{Provider: providerName, Err: err}
	}
}

func retryAfterHeader(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// transportError wraps a failed round trip. Network errors are always
// retryable.
func transportError(providerName string, err error) error {
	return &TransientError{Provider: providerName, Err: err}
}

var errEmptyToken = errors.New("empty token in provider response")

var timeNow = time.Now

