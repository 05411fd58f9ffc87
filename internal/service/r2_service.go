package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gonanoid "github.com/matoous/go-nanoid/v2"
	cfg "github.com/postpilot/postpilot/configs"
)

// R2Service uploads media to Cloudflare R2 and satisfies Uploader.
type R2Service struct {
	config cfg.Config
}

func NewR2Service(cfg cfg.Config) *R2Service {
	return &R2Service{config: cfg}
}

func (r *R2Service) IsConfigured() bool {
	c := r.config.R2
	return c.AccountID != "" && c.AccessKey != "" && c.SecretKey != "" && c.BucketName != ""
}

func (r *R2Service) client(ctx context.Context) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r.config.R2.AccessKey, r.config.R2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.config.R2.AccountID))
	}), nil
}

// Upload stores the object under the transform's folder and records the
// transform parameters as object metadata so downstream delivery can apply
// them. Returns the public URL.
func (r *R2Service) Upload(ctx context.Context, data []byte, contentType string, t Transform) (string, error) {
	if !r.IsConfigured() {
		return "", &ConfigurationError{Reason: "R2 credentials are not set"}
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", &UploadError{Err: err}
	}

	key := id
	if t.Folder != "" {
		key = t.Folder + "/" + id
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.config.R2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"width":   strconv.Itoa(t.Width),
			"height":  strconv.Itoa(t.Height),
			"crop":    t.Crop,
			"gravity": t.Gravity,
			"quality": t.Quality,
		},
	}

	r2Client, err := r.client(ctx)
	if err != nil {
		return "", &UploadError{Err: err}
	}

	if _, err := r2Client.PutObject(ctx, input); err != nil {
		slog.Info(err.Error())
		return "", &UploadError{Err: err, Transient: true}
	}

	return fmt.Sprintf("%s/%s", r.config.R2.PublicURL, key), nil
}
