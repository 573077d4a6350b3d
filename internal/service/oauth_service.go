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

const (
	StateReasonNotFound = "not_found"
	StateReasonExpired  = "expired"
)

// StateError rejects an authorization callback at the boundary: the state
// token was never issued, already consumed, or past its TTL. A consumed
// token showing up again is a potential replay.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid authorization state: %s", e.Reason)
}

func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// OAuthService drives the authorization-code flow: state/PKCE issuance,
// callback validation, code exchange and credential persistence.
type OAuthService interface {
	// AuthorizationURL issues a fresh single-use state (plus PKCE pair for
	// providers that need one) and returns the consent URL to redirect to.
	AuthorizationURL(ctx context.Context, providerName string, accountID int64) (string, error)
	// HandleCallback validates the state, exchanges the code and stores the
	// resulting credential.
	HandleCallback(ctx context.Context, providerName, code, state string) error
	// Disconnect revokes the token at the provider (best effort) and
	// quarantines the stored credential.
	Disconnect(ctx context.Context, accountID int64, providerName string) error
}

type oauthService struct {
	cfg       config.Config
	states    repository.OAuthStateRepository
	creds     CredentialService
	providers provider.Registry
	now       func() time.Time
}

func NewOAuthService(cfg config.Config, states repository.OAuthStateRepository, creds CredentialService, providers provider.Registry) OAuthService {
	return &oauthService{
		cfg:       cfg,
		states:    states,
		creds:     creds,
		providers: providers,
		now:       time.Now,
	}
}

func (s *oauthService) AuthorizationURL(ctx context.Context, providerName string, accountID int64) (string, error) {
	adapter, err := s.providers.Get(providerName)
	if err != nil {
		return "", err
	}

	state, err := utils.GenerateRandomKey(32)
	if err != nil {
		return "", err
	}

	// The verifier stays server-side; only the derived challenge goes into
	// the redirect.
	codeVerifier := ""
	codeChallenge := ""
	if adapter.RequiresPKCE() {
		codeVerifier, err = utils.GenerateRandomKey(32)
		if err != nil {
			return "", err
		}
		codeChallenge = utils.CodeChallengeS256(codeVerifier)
	}

	record := &models.AuthorizationState{
		State:        state,
		Provider:     providerName,
		AccountID:    accountID,
		CodeVerifier: codeVerifier,
		ExpiresAt:    s.now().Add(s.cfg.StateTTL),
	}
	if err := s.states.Create(ctx, record); err != nil {
		return "", err
	}

	return adapter.AuthorizationURL(state, codeChallenge), nil
}

func (s *oauthService) HandleCallback(ctx context.Context, providerName, code, state string) error {
	if code == "" || state == "" {
		return &StateError{Reason: StateReasonNotFound}
	}

	record, err := s.states.Consume(ctx, state)
	if err != nil {
		return err
	}
	if record == nil {
		slog.Warn("authorization state unknown or already consumed", "provider", providerName)
		return &StateError{Reason: StateReasonNotFound}
	}
	if record.Provider != providerName {
		slog.Warn("authorization state bound to different provider", "want", record.Provider, "got", providerName)
		return &StateError{Reason: StateReasonNotFound}
	}
	if s.now().After(record.ExpiresAt) {
		return &StateError{Reason: StateReasonExpired}
	}

	adapter, err := s.providers.Get(providerName)
	if err != nil {
		return err
	}

	tokens, err := adapter.ExchangeCode(ctx, code, record.CodeVerifier)
	if err != nil {
		return fmt.Errorf("code exchange failed: %w", err)
	}

	info, err := adapter.UserInfo(ctx, tokens.AccessToken)
	if err != nil {
		slog.Info("could not fetch provider user info", "provider", providerName, "error", err)
		info = nil
	}

	return s.creds.Save(ctx, record.AccountID, providerName, tokens, info)
}

func (s *oauthService) Disconnect(ctx context.Context, accountID int64, providerName string) error {
	adapter, err := s.providers.Get(providerName)
	if err != nil {
		return err
	}

	cred, err := s.creds.Get(ctx, accountID, providerName)
	if err != nil {
		return err
	}

	if err := adapter.Revoke(ctx, cred.AccessToken); err != nil {
		slog.Info("provider-side revoke failed", "provider", providerName, "error", err)
	}

	return s.creds.MarkRevoked(ctx, accountID, providerName, "disconnected")
}
