package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	config "github.com/crosspost-labs/crosspost/configs"
)

// facebookProvider posts to the first managed page of the token owner.
// Photo posts go to /photos with a pull URL, text posts to /feed.
type facebookProvider struct {
	creds     config.ProviderCredentials
	dialogURL string
	graphURL  string
}

func NewFacebook(creds config.ProviderCredentials) Provider {
	return &facebookProvider{
		creds:     creds,
		dialogURL: metaDialogURL,
		graphURL:  metaGraphURL,
	}
}

func (p *facebookProvider) Name() string { return Facebook }

func (p *facebookProvider) RequiresPKCE() bool { return false }

func (p *facebookProvider) AuthorizationURL(state, codeChallenge string) string {
	params := url.Values{}
	params.Set("client_id", p.creds.ClientID)
	params.Set("redirect_uri", p.creds.RedirectURI)
	params.Set("response_type", "code")
	params.Set("scope", strings.Join([]string{
		"pages_show_list",
		"pages_read_engagement",
		"pages_manage_posts",
	}, ","))
	params.Set("state", state)

	return fmt.Sprintf("%s?%s", p.dialogURL, params.Encode())
}

func (p *facebookProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error) {
	short, err := exchangeGraphCode(ctx, Facebook, p.graphURL, p.creds.ClientID, p.creds.ClientSecret, p.creds.RedirectURI, code)
	if err != nil {
		return nil, err
	}

	return exchangeLongLived(ctx, Facebook, p.graphURL, p.creds.ClientID, p.creds.ClientSecret, short.AccessToken)
}

func (p *facebookProvider) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	return exchangeLongLived(ctx, Facebook, p.graphURL, p.creds.ClientID, p.creds.ClientSecret, refreshToken)
}

func (p *facebookProvider) Publish(ctx context.Context, accessToken string, post *PublishRequest) (*PublishResult, error) {
	pageID, pageToken, err := p.firstPage(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("access_token", pageToken)

	var endpoint string
	if post.ImageURL != "" {
		endpoint = fmt.Sprintf("%s/%s/photos", p.graphURL, pageID)
		params.Set("url", post.ImageURL)
		params.Set("caption", post.Caption)
	} else {
		endpoint = fmt.Sprintf("%s/%s/feed", p.graphURL, pageID)
		params.Set("message", post.Caption)
	}

	var result struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := graphPost(ctx, Facebook, endpoint, params, &result); err != nil {
		return nil, err
	}

	remoteID := result.PostID
	if remoteID == "" {
		remoteID = result.ID
	}
	if remoteID == "" {
		return nil, &PermanentError{Provider: Facebook, Err: errors.New("no post id in response")}
	}

	return &PublishResult{RemotePostID: remoteID}, nil
}

func (p *facebookProvider) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	params := url.Values{}
	params.Set("fields", "id,name")
	params.Set("access_token", accessToken)

	var result struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := graphGet(ctx, Facebook, p.graphURL+"/me", params, &result); err != nil {
		return nil, err
	}

	return &UserInfo{UserID: result.ID, Username: result.Name}, nil
}

func (p *facebookProvider) Revoke(ctx context.Context, accessToken string) error {
	params := url.Values{}
	params.Set("access_token", accessToken)

	req, err := deleteRequest(ctx, p.graphURL+"/me/permissions", params)
	if err != nil {
		return &PermanentError{Provider: Facebook, Err: err}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return transportError(Facebook, err)
	}
	defer resp.Body.Close()

	return classifyResponse(Facebook, resp)
}

func (p *facebookProvider) firstPage(ctx context.Context, accessToken string) (string, string, error) {
	params := url.Values{}
	params.Set("fields", "id,name,access_token")
	params.Set("access_token", accessToken)

	var pages struct {
		Data []struct {
			ID          string `json:"id"`
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := graphGet(ctx, Facebook, p.graphURL+"/me/accounts", params, &pages); err != nil {
		return "", "", err
	}

	if len(pages.Data) == 0 {
		return "", "", &PermanentError{Provider: Facebook, Err: errors.New("no managed pages for this account")}
	}

	page := pages.Data[0]
	pageToken := page.AccessToken
	if pageToken == "" {
		pageToken = accessToken
	}
	return page.ID, pageToken, nil
}
