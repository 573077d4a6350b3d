package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	config "github.com/crosspost-labs/crosspost/configs"
	"github.com/h2non/filetype"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// MediaService stages post images on R2 so providers that pull media from a
// public URL (Instagram, Facebook) can fetch them.
type MediaService struct {
	config config.Config
}

func NewMediaService(cfg config.Config) *MediaService {
	return &MediaService{config: cfg}
}

func (m *MediaService) r2Client() (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(m.config.R2.AccessKey, m.config.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", m.config.R2.AccountID))
	}), nil
}

// Stage uploads image bytes under a random key and returns the public URL
// to hand to the provider.
func (m *MediaService) Stage(ctx context.Context, file []byte) (string, error) {
	kind, err := filetype.Image(file)
	if err != nil {
		return "", fmt.Errorf("file is not a supported image: %w", err)
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("staged/%s.%s", id, kind.Extension)

	client, err := m.r2Client()
	if err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(m.config.R2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(kind.MIME.Value),
	}

	_, err = client.PutObject(ctx, input)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return fmt.Sprintf("%s/%s", m.config.R2.PublicURL, key), nil
}
