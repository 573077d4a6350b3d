package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crosspost-labs/crosspost/internal/models"
	"github.com/crosspost-labs/crosspost/internal/provider"
	"github.com/crosspost-labs/crosspost/internal/ratelimit"
	"github.com/crosspost-labs/crosspost/internal/service"
	"github.com/stretchr/testify/require"
)

// scriptedProvider answers Publish with a fixed result or error.
type scriptedProvider struct {
	name         string
	publishErr   error
	remotePostID string
	publishCalls int
	lastToken    string
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) RequiresPKCE() bool { return false }

func (p *scriptedProvider) AuthorizationURL(state, codeChallenge string) string { return "" }

func (p *scriptedProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*provider.TokenSet, error) {
	return nil, errors.New("not used")
}

func (p *scriptedProvider) Refresh(ctx context.Context, refreshToken string) (*provider.TokenSet, error) {
	return nil, errors.New("not used")
}

func (p *scriptedProvider) Publish(ctx context.Context, accessToken string, post *provider.PublishRequest) (*provider.PublishResult, error) {
	p.publishCalls++
	p.lastToken = accessToken
	if p.publishErr != nil {
		return nil, p.publishErr
	}
	return &provider.PublishResult{RemotePostID: p.remotePostID}, nil
}

func (p *scriptedProvider) UserInfo(ctx context.Context, accessToken string) (*provider.UserInfo, error) {
	return nil, errors.New("not used")
}

func (p *scriptedProvider) Revoke(ctx context.Context, accessToken string) error { return nil }

// stubCredService hands out one credential and records revocations.
type stubCredService struct {
	cred    *models.Credential
	err     error
	revoked []string
}

func (s *stubCredService) Save(ctx context.Context, accountID int64, providerName string, tokens *provider.TokenSet, info *provider.UserInfo) error {
	return nil
}

func (s *stubCredService) Get(ctx context.Context, accountID int64, providerName string) (*models.Credential, error) {
	return s.cred, s.err
}

func (s *stubCredService) GetValid(ctx context.Context, accountID int64, providerName string) (*models.Credential, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.cred, nil
}

func (s *stubCredService) Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	return cred, nil
}

func (s *stubCredService) MarkRevoked(ctx context.Context, accountID int64, providerName, reason string) error {
	s.revoked = append(s.revoked, providerName)
	return nil
}

func (s *stubCredService) ListExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.Credential, error) {
	return nil, nil
}

func testWorker(pr *memPostRepo, creds *stubCredService, adapter *scriptedProvider, now time.Time) *Worker {
	w := NewWorker(pr, creds, provider.Registry{adapter.name: adapter}, 3, time.Minute)
	w.now = func() time.Time { return now }
	return w
}

func inFlightPost(pr *memPostRepo, attempts int) *models.ScheduledPost {
	return pr.add(&models.ScheduledPost{
		AccountID: 1,
		Provider:  provider.Twitter,
		Caption:   "hello",
		Status:    models.PostStatusInFlight,
		Attempts:  attempts,
	})
}

func validCred() *models.Credential {
	return &models.Credential{
		AccountID:   1,
		Provider:    provider.Twitter,
		AccessToken: "access-token",
		Status:      models.CredentialStatusActive,
	}
}

func TestWorkerPublishSuccess(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pr := newMemPostRepo()
	post := inFlightPost(pr, 1)
	adapter := &scriptedProvider{name: provider.Twitter, remotePostID: "remote-1"}
	w := testWorker(pr, &stubCredService{cred: validCred()}, adapter, now)

	require.NoError(t, w.Publish(context.Background(), post.ID))

	stored := pr.posts[post.ID]
	require.Equal(t, models.PostStatusPublished, stored.Status)
	require.Equal(t, "remote-1", stored.RemotePostID)
	require.Equal(t, "access-token", adapter.lastToken)
}

func TestWorkerSkipsNonInFlightPost(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pr := newMemPostRepo()
	post := pr.add(&models.ScheduledPost{AccountID: 1, Provider: provider.Twitter, Status: models.PostStatusCancelled})
	adapter := &scriptedProvider{name: provider.Twitter, remotePostID: "remote-1"}
	w := testWorker(pr, &stubCredService{cred: validCred()}, adapter, now)

	require.NoError(t, w.Publish(context.Background(), post.ID))
	require.Zero(t, adapter.publishCalls)
	require.Equal(t, models.PostStatusCancelled, pr.posts[post.ID].Status)
}

func TestWorkerSkipsMissingPost(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := testWorker(newMemPostRepo(), &stubCredService{cred: validCred()}, &scriptedProvider{name: provider.Twitter}, now)

	require.NoError(t, w.Publish(context.Background(), 404))
}

func TestWorkerTransientFailureRequeuesWithBackoff(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pr := newMemPostRepo()
	post := inFlightPost(pr, 2)
	adapter := &scriptedProvider{
		name:       provider.Twitter,
		publishErr: &provider.TransientError{Provider: provider.Twitter, Err: errors.New("503")},
	}
	w := testWorker(pr, &stubCredService{cred: validCred()}, adapter, now)

	require.NoError(t, w.Publish(context.Background(), post.ID))

	stored := pr.posts[post.ID]
	require.Equal(t, models.PostStatusPending, stored.Status)
	// Second attempt waits 2x the base delay.
	require.Equal(t, now.Add(2*time.Minute), stored.PublishAt)
	require.NotEmpty(t, stored.LastError)
}

func TestWorkerHonorsProviderRetryAfter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pr := newMemPostRepo()
	post := inFlightPost(pr, 1)
	adapter := &scriptedProvider{
		name:       provider.Twitter,
		publishErr: &provider.RateLimitError{Provider: provider.Twitter, RetryAfter: 15 * time.Minute},
	}
	w := testWorker(pr, &stubCredService{cred: validCred()}, adapter, now)

	require.NoError(t, w.Publish(context.Background(), post.ID))
	require.Equal(t, now.Add(15*time.Minute), pr.posts[post.ID].PublishAt)
}

func TestWorkerExhaustedAttemptsFail(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pr := newMemPostRepo()
	post := inFlightPost(pr, 3)
	adapter := &scriptedProvider{
		name:       provider.Twitter,
		publishErr: &provider.TransientError{Provider: provider.Twitter, Err: errors.New("503")},
	}
	w := testWorker(pr, &stubCredService{cred: validCred()}, adapter, now)

	require.NoError(t, w.Publish(context.Background(), post.ID))

	stored := pr.posts[post.ID]
	require.Equal(t, models.PostStatusFailed, stored.Status)
	require.NotEmpty(t, stored.LastError)
}

func TestWorkerAuthFailureQuarantinesCredential(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pr := newMemPostRepo()
	post := inFlightPost(pr, 1)
	adapter := &scriptedProvider{
		name:       provider.Twitter,
		publishErr: &provider.AuthError{Provider: provider.Twitter, Err: errors.New("token revoked")},
	}
	creds := &stubCredService{cred: validCred()}
	w := testWorker(pr, creds, adapter, now)

	require.NoError(t, w.Publish(context.Background(), post.ID))

	require.Equal(t, models.PostStatusFailed, pr.posts[post.ID].Status)
	require.Equal(t, []string{provider.Twitter}, creds.revoked)
}

func TestWorkerPermanentFailureFailsImmediately(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pr := newMemPostRepo()
	post := inFlightPost(pr, 1)
	adapter := &scriptedProvider{
		name:       provider.Twitter,
		publishErr: &provider.PermanentError{Provider: provider.Twitter, Err: errors.New("caption rejected")},
	}
	creds := &stubCredService{cred: validCred()}
	w := testWorker(pr, creds, adapter, now)

	require.NoError(t, w.Publish(context.Background(), post.ID))

	require.Equal(t, models.PostStatusFailed, pr.posts[post.ID].Status)
	require.Empty(t, creds.revoked)
}

func TestWorkerMissingCredentialFails(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pr := newMemPostRepo()
	post := inFlightPost(pr, 1)
	creds := &stubCredService{err: service.ErrNoCredential}
	w := testWorker(pr, creds, &scriptedProvider{name: provider.Twitter}, now)

	require.NoError(t, w.Publish(context.Background(), post.ID))
	require.Equal(t, models.PostStatusFailed, pr.posts[post.ID].Status)
}

func TestWorkerThreeTransientFailuresEndFailed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pr := newMemPostRepo()
	ar := newMemAccountRepo()
	activeAccount(ar, 1)

	post := pr.add(&models.ScheduledPost{AccountID: 1, Provider: provider.Twitter, PublishAt: now.Add(-time.Minute)})

	adapter := &scriptedProvider{
		name:       provider.Twitter,
		publishErr: &provider.TransientError{Provider: provider.Twitter, Err: errors.New("503")},
	}
	creds := &stubCredService{cred: validCred()}

	// Drive dispatcher and worker together, advancing time past each backoff.
	for i := 0; i < 3; i++ {
		enq := &captureEnqueuer{}
		d := NewDispatcher(pr, ar, ratelimit.New(0, 0), enq, 5)
		d.now = func() time.Time { return now }
		d.Tick()
		require.Len(t, enq.enqueued, 1, "cycle %d", i)

		w := testWorker(pr, creds, adapter, now)
		require.NoError(t, w.Publish(context.Background(), post.ID))

		now = now.Add(time.Hour)
	}

	require.Equal(t, models.PostStatusFailed, pr.posts[post.ID].Status)
	require.Equal(t, 3, pr.posts[post.ID].Attempts)
	require.Equal(t, 3, adapter.publishCalls)
}

func TestWorkerPublishedOutcomeOverridesRacingCancel(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pr := newMemPostRepo()
	post := inFlightPost(pr, 1)

	// Cancel sneaks in while the provider call is in the air. The provider
	// already accepted the post, so the stored row must say so.
	adapter := &scriptedProvider{name: provider.Twitter, remotePostID: "remote-1"}
	racing := &racingCancelRepo{memPostRepo: pr, cancelID: post.ID}
	w := NewWorker(racing, &stubCredService{cred: validCred()}, provider.Registry{provider.Twitter: adapter}, 3, time.Minute)
	w.now = func() time.Time { return now }

	require.NoError(t, w.Publish(context.Background(), post.ID))

	stored := pr.posts[post.ID]
	require.Equal(t, models.PostStatusPublished, stored.Status)
	require.Equal(t, "remote-1", stored.RemotePostID)
}

func TestWorkerFailedOutcomeOverridesRacingCancel(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pr := newMemPostRepo()
	post := inFlightPost(pr, 1)

	adapter := &scriptedProvider{name: provider.Twitter, publishErr: &provider.PermanentError{Provider: provider.Twitter, Err: errors.New("duplicate content")}}
	racing := &racingCancelRepo{memPostRepo: pr, cancelID: post.ID}
	w := NewWorker(racing, &stubCredService{cred: validCred()}, provider.Registry{provider.Twitter: adapter}, 3, time.Minute)
	w.now = func() time.Time { return now }

	require.NoError(t, w.Publish(context.Background(), post.ID))

	stored := pr.posts[post.ID]
	require.Equal(t, models.PostStatusFailed, stored.Status)
	require.Contains(t, stored.LastError, "duplicate content")
}

func TestWorkerRacingCancelStandsOverRequeue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pr := newMemPostRepo()
	post := inFlightPost(pr, 1)

	// A requeue is not a terminal outcome, so the cancellation wins and
	// the post never goes back to pending.
	adapter := &scriptedProvider{name: provider.Twitter, publishErr: &provider.TransientError{Provider: provider.Twitter, Err: errors.New("gateway timeout")}}
	racing := &racingCancelRepo{memPostRepo: pr, cancelID: post.ID}
	w := NewWorker(racing, &stubCredService{cred: validCred()}, provider.Registry{provider.Twitter: adapter}, 3, time.Minute)
	w.now = func() time.Time { return now }

	require.NoError(t, w.Publish(context.Background(), post.ID))
	require.Equal(t, models.PostStatusCancelled, pr.posts[post.ID].Status)
}

// racingCancelRepo cancels the post right before the worker's outcome
// write, mimicking a user cancellation racing the provider call.
type racingCancelRepo struct {
	*memPostRepo
	cancelID int64
}

func (r *racingCancelRepo) cancelRace(id int64) {
	if id == r.cancelID {
		r.posts[id].Status = models.PostStatusCancelled
	}
}

func (r *racingCancelRepo) MarkPublished(ctx context.Context, id int64, remotePostID string) error {
	r.cancelRace(id)
	return r.memPostRepo.MarkPublished(ctx, id, remotePostID)
}

func (r *racingCancelRepo) MarkFailed(ctx context.Context, id int64, lastError string) error {
	r.cancelRace(id)
	return r.memPostRepo.MarkFailed(ctx, id, lastError)
}

func (r *racingCancelRepo) Requeue(ctx context.Context, id int64, publishAt time.Time, lastError string) error {
	r.cancelRace(id)
	return r.memPostRepo.Requeue(ctx, id, publishAt, lastError)
}
