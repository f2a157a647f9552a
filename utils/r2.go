// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"kenya-earn/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// maxUpload caps profile pictures.
const maxUpload = 5 << 20

// R2Store writes objects to a Cloudflare R2 bucket through the S3 API.
type R2Store struct {
	Client     *s3.Client
	Bucket     string
	CDNBaseURL string
}

// NewR2Store returns nil when R2 is not configured.
func NewR2Store(ctx context.Context, cfg config.R2Config) (*R2Store, error) {
	if cfg.AccountID == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	cdn := cfg.CDNBaseURL
	if cdn == "" {
		cdn = endpoint + "/" + cfg.Bucket
	}

	return &R2Store{
		Client: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		}),
		Bucket:     cfg.Bucket,
		CDNBaseURL: cdn,
	}, nil
}

// Upload stores body under key and returns its public URL.
func (r *R2Store) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	buf := new(bytes.Buffer)
	n, err := io.Copy(buf, io.LimitReader(body, maxUpload+1))
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if n > maxUpload {
		return "", fmt.Errorf("file exceeds %d bytes", maxUpload)
	}

	_, err = r.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	return fmt.Sprintf("%s/%s", r.CDNBaseURL, key), nil
}
