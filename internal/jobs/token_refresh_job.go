package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crosspost-labs/crosspost/internal/models"
	"github.com/crosspost-labs/crosspost/internal/provider"
	"github.com/crosspost-labs/crosspost/internal/service"
	"github.com/crosspost-labs/crosspost/pkg/utils"
)

// Notifier is told when a credential cannot be refreshed anymore and the
// user has to re-run the authorization flow.
type Notifier interface {
	CredentialRevoked(accountID int64, providerName, reason string)
}

type logNotifier struct{}

func (logNotifier) CredentialRevoked(accountID int64, providerName, reason string) {
	slog.Warn("credential quarantined, re-authorization required",
		"account_id", accountID,
		"provider", providerName,
		"reason", reason)
}

func NewLogNotifier() Notifier { return logNotifier{} }

// TokenRefreshJob proactively refreshes credentials nearing expiry. One
// account's failure never blocks the rest of the sweep.
type TokenRefreshJob struct {
	creds            service.CredentialService
	notifier         Notifier
	refreshThreshold time.Duration
	retryAttempts    int
	retryBackoff     time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

func NewTokenRefreshJob(
	creds service.CredentialService,
	notifier Notifier,
	refreshThreshold time.Duration,
	retryAttempts int,
	retryBackoff time.Duration) *TokenRefreshJob {
	return &TokenRefreshJob{
		creds:            creds,
		notifier:         notifier,
		refreshThreshold: refreshThreshold,
		retryAttempts:    retryAttempts,
		retryBackoff:     retryBackoff,
		now:              time.Now,
		sleep:            time.Sleep,
	}
}

func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	deadline := j.now().Add(j.refreshThreshold)
	credentials, err := j.creds.ListExpiringBefore(ctx, deadline)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, cred := range credentials {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(cred *models.Credential) {
			defer wg.Done()
			defer func() { <-semaphore }()

			j.refreshOne(ctx, cred)
		}(cred)
	}

	wg.Wait()
}

func (j *TokenRefreshJob) refreshOne(ctx context.Context, cred *models.Credential) {
	var lastErr error

	for attempt := 1; attempt <= j.retryAttempts; attempt++ {
		fresh, err := j.creds.Get(ctx, cred.AccountID, cred.Provider)
		if err != nil {
			lastErr = err
			break
		}

		_, err = j.creds.Refresh(ctx, fresh)
		if err == nil {
			return
		}
		lastErr = err

		if provider.IsAuthError(err) || provider.IsPermanent(err) {
			// Retrying cannot help.
			break
		}

		if attempt < j.retryAttempts {
			j.sleep(utils.BackoffDelay(j.retryBackoff, attempt))
		}
	}

	slog.Info("token refresh exhausted",
		"account_id", cred.AccountID,
		"provider", cred.Provider,
		"error", lastErr)

	reason := "refresh failed"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	if err := j.creds.MarkRevoked(ctx, cred.AccountID, cred.Provider, reason); err != nil {
		slog.Info(err.Error())
		return
	}
	j.notifier.CredentialRevoked(cred.AccountID, cred.Provider, reason)
}
