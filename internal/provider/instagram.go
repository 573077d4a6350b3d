package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	config "github.com/crosspost-labs/crosspost/configs"
)

// instagramProvider publishes through the Meta Graph API. Instagram only
// accepts media it can pull from a public URL, so posts must carry a staged
// image URL. The container has to finish processing before media_publish.
type instagramProvider struct {
	creds       config.ProviderCredentials
	dialogURL   string
	graphURL    string
	publishWait time.Duration
}

func NewInstagram(creds config.ProviderCredentials) Provider {
	return &instagramProvider{
		creds:       creds,
		dialogURL:   metaDialogURL,
		graphURL:    metaGraphURL,
		publishWait: 5 * time.Second,
	}
}

func (p *instagramProvider) Name() string { return Instagram }

func (p *instagramProvider) RequiresPKCE() bool { return false }

func (p *instagramProvider) AuthorizationURL(state, codeChallenge string) string {
	params := url.Values{}
	params.Set("client_id", p.creds.ClientID)
	params.Set("redirect_uri", p.creds.RedirectURI)
	params.Set("response_type", "code")
	params.Set("scope", strings.Join([]string{
		"instagram_basic",
		"instagram_content_publish",
		"pages_show_list",
		"business_management",
	}, ","))
	params.Set("state", state)

	return fmt.Sprintf("%s?%s", p.dialogURL, params.Encode())
}

func (p *instagramProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error) {
	short, err := exchangeGraphCode(ctx, Instagram, p.graphURL, p.creds.ClientID, p.creds.ClientSecret, p.creds.RedirectURI, code)
	if err != nil {
		return nil, err
	}

	// Short-lived tokens last about an hour; swap immediately.
	return exchangeLongLived(ctx, Instagram, p.graphURL, p.creds.ClientID, p.creds.ClientSecret, short.AccessToken)
}

// Refresh exchanges the current access token for a new long-lived one. The
// caller passes the access token here since Meta never issues a refresh
// token.
func (p *instagramProvider) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	return exchangeLongLived(ctx, Instagram, p.graphURL, p.creds.ClientID, p.creds.ClientSecret, refreshToken)
}

func (p *instagramProvider) Publish(ctx context.Context, accessToken string, post *PublishRequest) (*PublishResult, error) {
	if post.ImageURL == "" {
		return nil, &PermanentError{Provider: Instagram, Err: errors.New("instagram posts require an image")}
	}

	igUserID, pageToken, err := p.businessAccount(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("image_url", post.ImageURL)
	params.Set("caption", post.Caption)
	params.Set("access_token", pageToken)

	var container struct {
		ID string `json:"id"`
	}
	if err := graphPost(ctx, Instagram, fmt.Sprintf("%s/%s/media", p.graphURL, igUserID), params, &container); err != nil {
		return nil, err
	}
	if container.ID == "" {
		return nil, &PermanentError{Provider: Instagram, Err: errors.New("no container id in response")}
	}

	// Instagram needs a moment to fetch and process the image.
	select {
	case <-time.After(p.publishWait):
	case <-ctx.Done():
		return nil, &TransientError{Provider: Instagram, Err: ctx.Err()}
	}

	publishParams := url.Values{}
	publishParams.Set("creation_id", container.ID)
	publishParams.Set("access_token", pageToken)

	var published struct {
		ID string `json:"id"`
	}
	if err := graphPost(ctx, Instagram, fmt.Sprintf("%s/%s/media_publish", p.graphURL, igUserID), publishParams, &published); err != nil {
		return nil, err
	}
	if published.ID == "" {
		return nil, &PermanentError{Provider: Instagram, Err: errors.New("no media id in response")}
	}

	return &PublishResult{RemotePostID: published.ID}, nil
}

func (p *instagramProvider) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	igUserID, pageToken, err := p.businessAccount(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("fields", "id,username")
	params.Set("access_token", pageToken)

	var result struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := graphGet(ctx, Instagram, fmt.Sprintf("%s/%s", p.graphURL, igUserID), params, &result); err != nil {
		return nil, err
	}

	return &UserInfo{UserID: result.ID, Username: result.Username}, nil
}

func (p *instagramProvider) Revoke(ctx context.Context, accessToken string) error {
	params := url.Values{}
	params.Set("access_token", accessToken)

	req, err := deleteRequest(ctx, p.graphURL+"/me/permissions", params)
	if err != nil {
		return &PermanentError{Provider: Instagram, Err: err}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return transportError(Instagram, err)
	}
	defer resp.Body.Close()

	return classifyResponse(Instagram, resp)
}

// businessAccount walks /me/accounts looking for a page with a linked
// Instagram business account, returning the IG user id and page token.
func (p *instagramProvider) businessAccount(ctx context.Context, accessToken string) (string, string, error) {
	params := url.Values{}
	params.Set("fields", "id,name,access_token,instagram_business_account")
	params.Set("access_token", accessToken)

	var pages struct {
		Data []struct {
			ID          string `json:"id"`
			AccessToken string `json:"access_token"`
			Instagram   *struct {
				ID string `json:"id"`
			} `json:"instagram_business_account"`
		} `json:"data"`
	}
	if err := graphGet(ctx, Instagram, p.graphURL+"/me/accounts", params, &pages); err != nil {
		return "", "", err
	}

	for _, page := range pages.Data {
		if page.Instagram != nil && page.Instagram.ID != "" {
			pageToken := page.AccessToken
			if pageToken == "" {
				pageToken = accessToken
			}
			return page.Instagram.ID, pageToken, nil
		}
	}

	return "", "", &PermanentError{Provider: Instagram, Err: errors.New("no instagram business account linked")}
}
