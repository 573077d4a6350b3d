package service

import (
	"context"
	"errors"
	"testing"
	"time"

	config "github.com/crosspost-labs/crosspost/configs"
	"github.com/crosspost-labs/crosspost/internal/models"
	"github.com/crosspost-labs/crosspost/internal/provider"
	"github.com/crosspost-labs/crosspost/pkg/utils"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef"

// fakeCredRepo mirrors the upsert and token-retention semantics of the SQL
// repository.
type fakeCredRepo struct {
	creds map[string]*models.Credential
}

func newFakeCredRepo() *fakeCredRepo {
	return &fakeCredRepo{creds: make(map[string]*models.Credential)}
}

func (r *fakeCredRepo) key(accountID int64, providerName string) string {
	return providerName
}

func (r *fakeCredRepo) Upsert(ctx context.Context, c *models.Credential) (int64, error) {
	stored := *c
	stored.Status = models.CredentialStatusActive
	r.creds[r.key(c.AccountID, c.Provider)] = &stored
	return 1, nil
}

func (r *fakeCredRepo) GetByAccountProvider(ctx context.Context, accountID int64, providerName string) (*models.Credential, error) {
	c, ok := r.creds[r.key(accountID, providerName)]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (r *fakeCredRepo) ListExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.Credential, error) {
	var out []*models.Credential
	for _, c := range r.creds {
		if c.Status == models.CredentialStatusActive && !c.TokenExpiresAt.After(deadline) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeCredRepo) UpdateTokens(ctx context.Context, accountID int64, providerName string, c *models.Credential) error {
	stored, ok := r.creds[r.key(accountID, providerName)]
	if !ok {
		return errors.New("no such credential")
	}
	stored.AccessToken = c.AccessToken
	if c.RefreshToken != "" {
		stored.RefreshToken = c.RefreshToken
	}
	stored.TokenExpiresAt = c.TokenExpiresAt
	return nil
}

func (r *fakeCredRepo) MarkRevoked(ctx context.Context, accountID int64, providerName, reason string) error {
	stored, ok := r.creds[r.key(accountID, providerName)]
	if !ok {
		return errors.New("no such credential")
	}
	stored.Status = models.CredentialStatusRevoked
	stored.ConnectionError = reason
	return nil
}

func testCredentialService(repo *fakeCredRepo, adapter *fakeProvider) CredentialService {
	cfg := config.Config{
		EncryptionKey:          testEncryptionKey,
		CredentialSafetyMargin: 5 * time.Minute,
	}
	return NewCredentialService(cfg, repo, provider.Registry{adapter.name: adapter})
}

func TestCredentialSaveEncryptsAtRest(t *testing.T) {
	repo := newFakeCredRepo()
	svc := testCredentialService(repo, &fakeProvider{name: provider.Twitter})

	tokens := &provider.TokenSet{AccessToken: "plain-access", RefreshToken: "plain-refresh", ExpiresIn: 7200}
	info := &provider.UserInfo{UserID: "42", Username: "crossposter"}
	require.NoError(t, svc.Save(context.Background(), 1, provider.Twitter, tokens, info))

	stored := repo.creds[provider.Twitter]
	require.NotEqual(t, "plain-access", stored.AccessToken)
	require.NotEqual(t, "plain-refresh", stored.RefreshToken)
	require.Equal(t, "42", stored.ProviderUserID)

	decrypted, err := utils.Decrypt(stored.AccessToken, []byte(testEncryptionKey))
	require.NoError(t, err)
	require.Equal(t, "plain-access", decrypted)
}

func TestCredentialGetDecrypts(t *testing.T) {
	repo := newFakeCredRepo()
	svc := testCredentialService(repo, &fakeProvider{name: provider.Twitter})

	tokens := &provider.TokenSet{AccessToken: "plain-access", RefreshToken: "plain-refresh", ExpiresIn: 7200}
	require.NoError(t, svc.Save(context.Background(), 1, provider.Twitter, tokens, nil))

	cred, err := svc.Get(context.Background(), 1, provider.Twitter)
	require.NoError(t, err)
	require.Equal(t, "plain-access", cred.AccessToken)
	require.Equal(t, "plain-refresh", cred.RefreshToken)
}

func TestCredentialGetMissing(t *testing.T) {
	svc := testCredentialService(newFakeCredRepo(), &fakeProvider{name: provider.Twitter})

	_, err := svc.Get(context.Background(), 1, provider.Twitter)
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestGetValidSkipsRefreshWhenFresh(t *testing.T) {
	repo := newFakeCredRepo()
	adapter := &fakeProvider{name: provider.Twitter}
	svc := testCredentialService(repo, adapter)

	tokens := &provider.TokenSet{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600}
	require.NoError(t, svc.Save(context.Background(), 1, provider.Twitter, tokens, nil))

	cred, err := svc.GetValid(context.Background(), 1, provider.Twitter)
	require.NoError(t, err)
	require.Equal(t, "at", cred.AccessToken)
	require.Empty(t, adapter.refreshedWith)
}

func TestGetValidRefreshesNearExpiry(t *testing.T) {
	repo := newFakeCredRepo()
	adapter := &fakeProvider{
		name:   provider.Twitter,
		tokens: &provider.TokenSet{AccessToken: "new-at", RefreshToken: "new-rt", ExpiresIn: 7200},
	}
	svc := testCredentialService(repo, adapter)

	// Expires inside the safety margin.
	tokens := &provider.TokenSet{AccessToken: "old-at", RefreshToken: "old-rt", ExpiresIn: 60}
	require.NoError(t, svc.Save(context.Background(), 1, provider.Twitter, tokens, nil))

	cred, err := svc.GetValid(context.Background(), 1, provider.Twitter)
	require.NoError(t, err)
	require.Equal(t, "new-at", cred.AccessToken)
	require.Equal(t, "old-rt", adapter.refreshedWith)
}

func TestGetValidRevokedCredential(t *testing.T) {
	repo := newFakeCredRepo()
	svc := testCredentialService(repo, &fakeProvider{name: provider.Twitter})

	tokens := &provider.TokenSet{AccessToken: "at", ExpiresIn: 3600}
	require.NoError(t, svc.Save(context.Background(), 1, provider.Twitter, tokens, nil))
	require.NoError(t, svc.MarkRevoked(context.Background(), 1, provider.Twitter, "user disconnected"))

	_, err := svc.GetValid(context.Background(), 1, provider.Twitter)
	require.True(t, provider.IsAuthError(err))
}

func TestRefreshKeepsUnrotatedRefreshToken(t *testing.T) {
	repo := newFakeCredRepo()
	// Provider returns a new access token but no refresh token.
	adapter := &fakeProvider{
		name:   provider.Twitter,
		tokens: &provider.TokenSet{AccessToken: "new-at", ExpiresIn: 7200},
	}
	svc := testCredentialService(repo, adapter)

	tokens := &provider.TokenSet{AccessToken: "old-at", RefreshToken: "old-rt", ExpiresIn: 3600}
	require.NoError(t, svc.Save(context.Background(), 1, provider.Twitter, tokens, nil))

	cred, err := svc.Get(context.Background(), 1, provider.Twitter)
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), cred)
	require.NoError(t, err)
	require.Equal(t, "new-at", refreshed.AccessToken)
	require.Equal(t, "old-rt", refreshed.RefreshToken)

	reloaded, err := svc.Get(context.Background(), 1, provider.Twitter)
	require.NoError(t, err)
	require.Equal(t, "old-rt", reloaded.RefreshToken)
}

func TestRefreshRotatesRefreshToken(t *testing.T) {
	repo := newFakeCredRepo()
	adapter := &fakeProvider{
		name:   provider.Twitter,
		tokens: &provider.TokenSet{AccessToken: "new-at", RefreshToken: "new-rt", ExpiresIn: 7200},
	}
	svc := testCredentialService(repo, adapter)

	tokens := &provider.TokenSet{AccessToken: "old-at", RefreshToken: "old-rt", ExpiresIn: 3600}
	require.NoError(t, svc.Save(context.Background(), 1, provider.Twitter, tokens, nil))

	cred, _ := svc.Get(context.Background(), 1, provider.Twitter)
	_, err := svc.Refresh(context.Background(), cred)
	require.NoError(t, err)

	reloaded, err := svc.Get(context.Background(), 1, provider.Twitter)
	require.NoError(t, err)
	require.Equal(t, "new-rt", reloaded.RefreshToken)
}

func TestRefreshUsesAccessTokenWithoutRefreshToken(t *testing.T) {
	repo := newFakeCredRepo()
	// Meta-style credential: long-lived access token, no refresh token.
	adapter := &fakeProvider{
		name:   provider.Facebook,
		tokens: &provider.TokenSet{AccessToken: "fresher", ExpiresIn: 5184000},
	}
	svc := testCredentialService(repo, adapter)

	tokens := &provider.TokenSet{AccessToken: "long-lived", ExpiresIn: 3600}
	require.NoError(t, svc.Save(context.Background(), 1, provider.Facebook, tokens, nil))

	cred, _ := svc.Get(context.Background(), 1, provider.Facebook)
	_, err := svc.Refresh(context.Background(), cred)
	require.NoError(t, err)
	require.Equal(t, "long-lived", adapter.refreshedWith)
}

func TestRefreshPropagatesProviderError(t *testing.T) {
	repo := newFakeCredRepo()
	adapter := &fakeProvider{
		name:       provider.Twitter,
		refreshErr: &provider.AuthError{Provider: provider.Twitter, Err: errors.New("invalid_grant")},
	}
	svc := testCredentialService(repo, adapter)

	tokens := &provider.TokenSet{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600}
	require.NoError(t, svc.Save(context.Background(), 1, provider.Twitter, tokens, nil))

	cred, _ := svc.Get(context.Background(), 1, provider.Twitter)
	_, err := svc.Refresh(context.Background(), cred)
	require.True(t, provider.IsAuthError(err))
}
