package providers

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3PutObjectAPI is the subset of *s3.Client the uploader needs.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3Uploader struct {
	api    S3PutObjectAPI
	bucket string
	prefix string
}

// NewS3Client builds a client from the default AWS credential chain.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}

func NewS3Uploader(api S3PutObjectAPI, bucket, prefix string) Uploader {
	return &s3Uploader{
		api:    api,
		bucket: strings.TrimSpace(bucket),
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
	}
}

func (u *s3Uploader) UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error) {
	key := strings.TrimPrefix(objectPath, "/")
	if u.prefix != "" {
		key = path.Join(u.prefix, key)
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := u.api.PutObject(ctx, in); err != nil {
		return "", err
	}
	return "s3://" + u.bucket + "/" + key, nil
}
