package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	config "github.com/crosspost-labs/crosspost/configs"
	"golang.org/x/oauth2"
)

const (
	twitterAuthURL   = "https://twitter.com/i/oauth2/authorize"
	twitterTokenURL  = "https://api.twitter.com/2/oauth2/token"
	twitterRevokeURL = "https://api.twitter.com/2/oauth2/revoke"
	twitterAPIURL    = "https://api.twitter.com/2"
)

// twitterProvider talks OAuth 2.0 with PKCE. Twitter rotates refresh tokens
// on every refresh.
type twitterProvider struct {
	oauth  oauth2.Config
	apiURL string
}

func NewTwitter(creds config.ProviderCredentials) Provider {
	return &twitterProvider{
		oauth: oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   twitterAuthURL,
				TokenURL:  twitterTokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			Scopes: []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
		},
		apiURL: twitterAPIURL,
	}
}

func (p *twitterProvider) Name() string { return Twitter }

func (p *twitterProvider) RequiresPKCE() bool { return true }

func (p *twitterProvider) AuthorizationURL(state, codeChallenge string) string {
	return p.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (p *twitterProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error) {
	tok, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, classifyOAuthErr(Twitter, err)
	}
	return tokenSetFromOAuth(tok)
}

func (p *twitterProvider) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	src := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyOAuthErr(Twitter, err)
	}
	return tokenSetFromOAuth(tok)
}

func (p *twitterProvider) Publish(ctx context.Context, accessToken string, post *PublishRequest) (*PublishResult, error) {
	text := post.Caption
	if post.ImageURL != "" {
		text = strings.TrimSpace(text + "\n" + post.ImageURL)
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, &PermanentError{Provider: Twitter, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/tweets", bytes.NewReader(body))
	if err != nil {
		return nil, &PermanentError{Provider: Twitter, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, transportError(Twitter, err)
	}
	defer resp.Body.Close()

	if err := classifyResponse(Twitter, resp); err != nil {
		return nil, err
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &TransientError{Provider: Twitter, Err: err}
	}
	if result.Data.ID == "" {
		return nil, &PermanentError{Provider: Twitter, Err: errors.New("no tweet id in response")}
	}

	return &PublishResult{RemotePostID: result.Data.ID}, nil
}

func (p *twitterProvider) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/users/me", nil)
	if err != nil {
		return nil, &PermanentError{Provider: Twitter, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, transportError(Twitter, err)
	}
	defer resp.Body.Close()

	if err := classifyResponse(Twitter, resp); err != nil {
		return nil, err
	}

	var result struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &TransientError{Provider: Twitter, Err: err}
	}

	return &UserInfo{UserID: result.Data.ID, Username: result.Data.Username}, nil
}

func (p *twitterProvider) Revoke(ctx context.Context, accessToken string) error {
	data := url.Values{}
	data.Set("token", accessToken)
	data.Set("client_id", p.oauth.ClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, twitterRevokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return &PermanentError{Provider: Twitter, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.oauth.ClientID, p.oauth.ClientSecret)

	resp, err := httpClient.Do(req)
	if err != nil {
		return transportError(Twitter, err)
	}
	defer resp.Body.Close()

	return classifyResponse(Twitter, resp)
}

func tokenSetFromOAuth(tok *oauth2.Token) (*TokenSet, error) {
	if tok.AccessToken == "" {
		return nil, errEmptyToken
	}
	expiresIn := int64(0)
	if !tok.Expiry.IsZero() {
		expiresIn = int64(tok.Expiry.Sub(timeNow()).Seconds())
	}
	scope, _ := tok.Extra("scope").(string)
	return &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn,
		Scope:        scope,
	}, nil
}

// classifyOAuthErr maps golang.org/x/oauth2 retrieval failures onto the
// taxonomy, keyed by the token endpoint's status code.
func classifyOAuthErr(providerName string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch {
		case re.Response.StatusCode == http.StatusUnauthorized || re.Response.StatusCode == http.StatusForbidden:
			return &AuthError{Provider: providerName, Err: err}
		case re.Response.StatusCode == http.StatusBadRequest && strings.Contains(string(re.Body), "invalid_grant"):
			return &AuthError{Provider: providerName, Err: err}
		case re.Response.StatusCode == http.StatusTooManyRequests:
			return &RateLimitError{Provider: providerName, RetryAfter: retryAfterHeader(re.Response)}
		case re.Response.StatusCode >= 500:
			return &TransientError{Provider: providerName, Err: err}
		default:
			return &PermanentError{Provider: providerName, Err: err}
		}
	}
	return &TransientError{Provider: providerName, Err: fmt.Errorf("token endpoint: %w", err)}
}
