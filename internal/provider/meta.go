package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// Instagram and Facebook both sit on the Meta Graph API. Neither issues a
// refresh token: "refreshing" means exchanging the current long-lived access
// token for a fresh one with the fb_exchange_token grant.

const (
	metaDialogURL = "https://www.facebook.com/v18.0/dialog/oauth"
	metaGraphURL  = "https://graph.facebook.com/v18.0"
)

type graphTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// graphGet issues a GET against the graph API and decodes the JSON body
// into out after classifying the status.
func graphGet(ctx context.Context, providerName, rawURL string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL+"?"+params.Encode(), nil)
	if err != nil {
		return &PermanentError{Provider: providerName, Err: err}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return transportError(providerName, err)
	}
	defer resp.Body.Close()

	if err := classifyResponse(providerName, resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransientError{Provider: providerName, Err: err}
	}
	return nil
}

// graphPost posts form values and decodes the JSON response.
func graphPost(ctx context.Context, providerName, rawURL string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, nil)
	if err != nil {
		return &PermanentError{Provider: providerName, Err: err}
	}
	req.URL.RawQuery = params.Encode()

	resp, err := httpClient.Do(req)
	if err != nil {
		return transportError(providerName, err)
	}
	defer resp.Body.Close()

	if err := classifyResponse(providerName, resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransientError{Provider: providerName, Err: err}
	}
	return nil
}

func deleteRequest(ctx context.Context, rawURL string, params url.Values) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodDelete, rawURL+"?"+params.Encode(), nil)
}

// exchangeLongLived swaps any Meta access token for a long-lived one.
func exchangeLongLived(ctx context.Context, providerName, graphURL, clientID, clientSecret, token string) (*TokenSet, error) {
	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", clientID)
	params.Set("client_secret", clientSecret)
	params.Set("fb_exchange_token", token)

	var tr graphTokenResponse
	if err := graphGet(ctx, providerName, graphURL+"/oauth/access_token", params, &tr); err != nil {
		return nil, err
	}
	if tr.AccessToken == "" {
		return nil, &TransientError{Provider: providerName, Err: errEmptyToken}
	}

	expiresIn := tr.ExpiresIn
	if expiresIn == 0 {
		// Meta omits expires_in for already long-lived tokens; assume 60 days.
		expiresIn = 60 * 24 * 3600
	}

	return &TokenSet{AccessToken: tr.AccessToken, ExpiresIn: expiresIn}, nil
}

// exchangeGraphCode redeems an authorization code at the graph token endpoint.
func exchangeGraphCode(ctx context.Context, providerName, graphURL, clientID, clientSecret, redirectURI, code string) (*graphTokenResponse, error) {
	params := url.Values{}
	params.Set("client_id", clientID)
	params.Set("client_secret", clientSecret)
	params.Set("redirect_uri", redirectURI)
	params.Set("code", code)

	var tr graphTokenResponse
	if err := graphGet(ctx, providerName, graphURL+"/oauth/access_token", params, &tr); err != nil {
		return nil, err
	}
	if tr.AccessToken == "" {
		return nil, &TransientError{Provider: providerName, Err: errEmptyToken}
	}
	return &tr, nil
}
