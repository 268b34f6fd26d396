// Package storage uploads generated artifacts to an S3-compatible bucket and
// hands out presigned download links for them.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appcfg "github.com/smartnotes/core/internal/config"
)

// Artifact is one stored object and a time-limited link to it.
type Artifact struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	prefix    string
	ttl       time.Duration
}

func NewS3Store(cfg appcfg.S3RuntimeConfig) (*S3Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	region := strings.TrimSpace(cfg.Region)
	if bucket == "" || region == "" {
		return nil, errors.New("incomplete s3 config: bucket and region are required")
	}

	opts := s3.Options{
		Region:                     region,
		UsePathStyle:               cfg.PathStyle,
		RetryMaxAttempts:           1,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	}
	accessKey := strings.TrimSpace(cfg.AccessKeyID)
	secretKey := strings.TrimSpace(cfg.SecretAccessKey)
	if accessKey != "" && secretKey != "" {
		opts.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""))
	}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(strings.TrimRight(endpoint, "/"))
		// custom endpoints (minio, r2) rarely support virtual hosts
		opts.UsePathStyle = true
	}

	ttl := time.Duration(cfg.PresignTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}

	client := s3.New(opts)
	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		prefix:    strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
		ttl:       ttl,
	}, nil
}

// ObjectKey joins parts under the configured prefix.
func (s *S3Store) ObjectKey(parts ...string) string {
	clean := make([]string, 0, len(parts)+1)
	if s.prefix != "" {
		clean = append(clean, s.prefix)
	}
	for _, part := range parts {
		part = strings.Trim(strings.ReplaceAll(part, "\\", "/"), "/")
		if part != "" {
			clean = append(clean, part)
		}
	}
	return path.Join(clean...)
}

// Put stores payload at key and returns a presigned link that downloads it
// as filename.
func (s *S3Store) Put(ctx context.Context, key string, payload []byte, contentType, filename string) (Artifact, error) {
	if strings.TrimSpace(key) == "" {
		return Artifact{}, errors.New("invalid s3 object key")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("s3 put %s: %w", key, err)
	}

	link, err := s.PresignDownload(ctx, key, filename)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Key: key, URL: link}, nil
}

func (s *S3Store) PresignDownload(ctx context.Context, key, filename string) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if filename = strings.TrimSpace(filename); filename != "" {
		input.ResponseContentDisposition = aws.String(mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	}
	req, err := s.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("s3 presign %s: %w", key, err)
	}
	return req.URL, nil
}
