package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	config "github.com/crosspost-labs/crosspost/configs"
	"github.com/crosspost-labs/crosspost/internal/models"
	"github.com/crosspost-labs/crosspost/internal/provider"
	"github.com/crosspost-labs/crosspost/internal/repository"
	"github.com/crosspost-labs/crosspost/pkg/utils"
)

var ErrNoCredential = errors.New("no credential for account and provider")

// CredentialService is the credential store. Tokens are encrypted with
// AES-GCM before they touch the database and decrypted on the way out.
type CredentialService interface {
	Save(ctx context.Context, accountID int64, providerName string, tokens *provider.TokenSet, info *provider.UserInfo) error
	// Get returns the stored credential with decrypted tokens, regardless
	// of expiry. Callers about to hit a provider API must use GetValid.
	Get(ctx context.Context, accountID int64, providerName string) (*models.Credential, error)
	// GetValid returns a credential whose expiry is beyond the safety
	// margin, refreshing through the adapter first when it is not.
	GetValid(ctx context.Context, accountID int64, providerName string) (*models.Credential, error)
	// Refresh exchanges the refresh token for a new TokenSet and persists
	// it. The previous refresh token is kept when the provider did not
	// rotate it.
	Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error)
	MarkRevoked(ctx context.Context, accountID int64, providerName, reason string) error
	ListExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.Credential, error)
}

type credentialService struct {
	cfg       config.Config
	cr        repository.CredentialRepository
	providers provider.Registry
}

func NewCredentialService(cfg config.Config, cr repository.CredentialRepository, providers provider.Registry) CredentialService {
	return &credentialService{
		cfg:       cfg,
		cr:        cr,
		providers: providers,
	}
}

func (s *credentialService) Save(ctx context.Context, accountID int64, providerName string, tokens *provider.TokenSet, info *provider.UserInfo) error {
	encryptedAccessToken, err := utils.Encrypt([]byte(tokens.AccessToken), []byte(s.cfg.EncryptionKey))
	if err != nil {
		return err
	}

	encryptedRefreshToken := ""
	if tokens.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(tokens.RefreshToken), []byte(s.cfg.EncryptionKey))
		if err != nil {
			return err
		}
	}

	cred := &models.Credential{
		AccountID:      accountID,
		Provider:       providerName,
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedRefreshToken,
		TokenExpiresAt: tokens.ExpiresAt(),
		Scopes:         tokens.Scope,
	}
	if info != nil {
		cred.ProviderUserID = info.UserID
		cred.ProviderUsername = info.Username
	}

	_, err = s.cr.Upsert(ctx, cred)
	return err
}

func (s *credentialService) Get(ctx context.Context, accountID int64, providerName string) (*models.Credential, error) {
	cred, err := s.cr.GetByAccountProvider(ctx, accountID, providerName)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrNoCredential
	}

	return s.decrypt(cred)
}

func (s *credentialService) GetValid(ctx context.Context, accountID int64, providerName string) (*models.Credential, error) {
	cred, err := s.Get(ctx, accountID, providerName)
	if err != nil {
		return nil, err
	}

	if cred.Status == models.CredentialStatusRevoked {
		return nil, &provider.AuthError{Provider: providerName, Err: errors.New("credential revoked, re-authorization required")}
	}

	if time.Until(cred.TokenExpiresAt) > s.cfg.CredentialSafetyMargin {
		return cred, nil
	}

	return s.Refresh(ctx, cred)
}

func (s *credentialService) Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	adapter, err := s.providers.Get(cred.Provider)
	if err != nil {
		return nil, err
	}

	// Providers without refresh tokens exchange the current access token
	// instead (Meta long-lived token exchange).
	refreshWith := cred.RefreshToken
	if refreshWith == "" {
		refreshWith = cred.AccessToken
	}
	if refreshWith == "" {
		return nil, &provider.AuthError{Provider: cred.Provider, Err: errors.New("no token available for refresh")}
	}

	tokens, err := adapter.Refresh(ctx, refreshWith)
	if err != nil {
		return nil, err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(tokens.AccessToken), []byte(s.cfg.EncryptionKey))
	if err != nil {
		return nil, err
	}

	encryptedRefreshToken := ""
	if tokens.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(tokens.RefreshToken), []byte(s.cfg.EncryptionKey))
		if err != nil {
			return nil, err
		}
	}

	updated := &models.Credential{
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedRefreshToken,
		TokenExpiresAt: tokens.ExpiresAt(),
	}
	if err := s.cr.UpdateTokens(ctx, cred.AccountID, cred.Provider, updated); err != nil {
		return nil, fmt.Errorf("persisting refreshed tokens: %w", err)
	}

	slog.Info("token refreshed", "account_id", cred.AccountID, "provider", cred.Provider)

	refreshed := *cred
	refreshed.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		refreshed.RefreshToken = tokens.RefreshToken
	}
	refreshed.TokenExpiresAt = tokens.ExpiresAt()
	return &refreshed, nil
}

func (s *credentialService) MarkRevoked(ctx context.Context, accountID int64, providerName, reason string) error {
	return s.cr.MarkRevoked(ctx, accountID, providerName, reason)
}

func (s *credentialService) ListExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.Credential, error) {
	return s.cr.ListExpiringBefore(ctx, deadline)
}

func (s *credentialService) decrypt(cred *models.Credential) (*models.Credential, error) {
	accessToken, err := utils.Decrypt(cred.AccessToken, []byte(s.cfg.EncryptionKey))
	if err != nil {
		return nil, err
	}

	refreshToken := ""
	if cred.RefreshToken != "" {
		refreshToken, err = utils.Decrypt(cred.RefreshToken, []byte(s.cfg.EncryptionKey))
		if err != nil {
			return nil, err
		}
	}

	out := *cred
	out.AccessToken = accessToken
	out.RefreshToken = refreshToken
	return &out, nil
}
