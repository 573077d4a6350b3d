package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/crosspost-labs/crosspost/internal/models"
	"github.com/crosspost-labs/crosspost/internal/provider"
	"github.com/crosspost-labs/crosspost/internal/repository"
	"github.com/crosspost-labs/crosspost/internal/transfer"
)

var (
	ErrPostNotFound    = errors.New("post not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrPostTerminal    = errors.New("post already in a terminal state")
)

type PostService interface {
	Create(ctx context.Context, req *transfer.PostCreation) (*models.ScheduledPost, error)
	Info(ctx context.Context, id int64) (*models.ScheduledPost, error)
	ListByAccount(ctx context.Context, accountID int64) ([]*models.ScheduledPost, error)
	// Cancel flips a non-terminal post to cancelled. For an in-flight post
	// this is best effort: the network call in progress is not interrupted,
	// and if the provider accepts the post anyway that outcome wins.
	Cancel(ctx context.Context, id int64) error
}

type postService struct {
	pr        repository.PostRepository
	ar        repository.AccountRepository
	providers provider.Registry
}

func NewPostService(pr repository.PostRepository, ar repository.AccountRepository, providers provider.Registry) PostService {
	return &postService{
		pr:        pr,
		ar:        ar,
		providers: providers,
	}
}

func (s *postService) Create(ctx context.Context, req *transfer.PostCreation) (*models.ScheduledPost, error) {
	if _, err := s.providers.Get(req.Provider); err != nil {
		return nil, err
	}

	account, err := s.ar.GetByID(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	publishAt := req.PublishAt
	if publishAt.IsZero() {
		publishAt = time.Now()
	}

	post := &models.ScheduledPost{
		AccountID: req.AccountID,
		Provider:  req.Provider,
		Caption:   req.Caption,
		ImageURL:  req.ImageURL,
		PublishAt: publishAt,
	}

	id, err := s.pr.Create(ctx, post)
	if err != nil {
		return nil, err
	}

	post.ID = id
	post.Status = models.PostStatusPending
	return post, nil
}

func (s *postService) Info(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	post, err := s.pr.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	return post, nil
}

func (s *postService) ListByAccount(ctx context.Context, accountID int64) ([]*models.ScheduledPost, error) {
	return s.pr.ListByAccount(ctx, accountID)
}

func (s *postService) Cancel(ctx context.Context, id int64) error {
	post, err := s.pr.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if post == nil {
		return ErrPostNotFound
	}

	flipped, err := s.pr.Cancel(ctx, id)
	if err != nil {
		return err
	}
	if !flipped {
		return ErrPostTerminal
	}

	if post.Status == models.PostStatusInFlight {
		slog.Info("cancelled in-flight post; the outbound call is not interrupted", "post_id", id)
	}
	return nil
}
