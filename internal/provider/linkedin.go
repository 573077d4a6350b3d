package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	config "github.com/crosspost-labs/crosspost/configs"
	"golang.org/x/oauth2"
)

const (
	linkedinAuthURL   = "https://www.linkedin.com/oauth/v2/authorization"
	linkedinTokenURL  = "https://www.linkedin.com/oauth/v2/accessToken"
	linkedinRevokeURL = "https://www.linkedin.com/oauth/v2/revoke"
	linkedinAPIURL    = "https://api.linkedin.com/v2"
)

type linkedinProvider struct {
	oauth  oauth2.Config
	apiURL string
}

func NewLinkedin(creds config.ProviderCredentials) Provider {
	return &linkedinProvider{
		oauth: oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   linkedinAuthURL,
				TokenURL:  linkedinTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{"openid", "profile", "w_member_social"},
		},
		apiURL: linkedinAPIURL,
	}
}

func (p *linkedinProvider) Name() string { return Linkedin }

func (p *linkedinProvider) RequiresPKCE() bool { return false }

func (p *linkedinProvider) AuthorizationURL(state, codeChallenge string) string {
	return p.oauth.AuthCodeURL(state)
}

func (p *linkedinProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error) {
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, classifyOAuthErr(Linkedin, err)
	}
	return tokenSetFromOAuth(tok)
}

func (p *linkedinProvider) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	src := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyOAuthErr(Linkedin, err)
	}
	return tokenSetFromOAuth(tok)
}

// Publish creates a ugcPost authored by the token owner. The author URN is
// resolved from the userinfo endpoint on each call.
func (p *linkedinProvider) Publish(ctx context.Context, accessToken string, post *PublishRequest) (*PublishResult, error) {
	info, err := p.UserInfo(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	shareContent := map[string]interface{}{
		"shareCommentary":    map[string]string{"text": post.Caption},
		"shareMediaCategory": "NONE",
	}
	if post.ImageURL != "" {
		shareContent["shareMediaCategory"] = "ARTICLE"
		shareContent["media"] = []map[string]interface{}{
			{"status": "READY", "originalUrl": post.ImageURL},
		}
	}

	payload := map[string]interface{}{
		"author":         "urn:li:person:" + info.UserID,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": shareContent,
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &PermanentError{Provider: Linkedin, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return nil, &PermanentError{Provider: Linkedin, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, transportError(Linkedin, err)
	}
	defer resp.Body.Close()

	if err := classifyResponse(Linkedin, resp); err != nil {
		return nil, err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &TransientError{Provider: Linkedin, Err: err}
	}
	if result.ID == "" {
		result.ID = resp.Header.Get("X-RestLi-Id")
	}
	if result.ID == "" {
		return nil, &PermanentError{Provider: Linkedin, Err: errors.New("no post urn in response")}
	}

	return &PublishResult{RemotePostID: result.ID}, nil
}

func (p *linkedinProvider) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/userinfo", nil)
	if err != nil {
		return nil, &PermanentError{Provider: Linkedin, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, transportError(Linkedin, err)
	}
	defer resp.Body.Close()

	if err := classifyResponse(Linkedin, resp); err != nil {
		return nil, err
	}

	var result struct {
		Sub  string `json:"sub"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &TransientError{Provider: Linkedin, Err: err}
	}

	return &UserInfo{UserID: result.Sub, Username: result.Name}, nil
}

func (p *linkedinProvider) Revoke(ctx context.Context, accessToken string) error {
	data := url.Values{}
	data.Set("client_id", p.oauth.ClientID)
	data.Set("client_secret", p.oauth.ClientSecret)
	data.Set("token", accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, linkedinRevokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return &PermanentError{Provider: Linkedin, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return transportError(Linkedin, err)
	}
	defer resp.Body.Close()

	return classifyResponse(Linkedin, resp)
}
