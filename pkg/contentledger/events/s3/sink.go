// Package s3 archives ledger events as JSON objects in an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/tendant/content-ledger/pkg/contentledger"
)

// Config options for the S3 event archive
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	Prefix          string // Key prefix for archived events
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing
}

// Uploader is the subset of manager.Uploader the sink uses
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Sink writes each event to its own object. Object keys sort by sequence
// and then by index, so listing the prefix replays the ledger in order.
type Sink struct {
	uploader Uploader
	bucket   string
	prefix   string
}

// New creates an S3 event sink from config
func New(config Config) (*Sink, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)
	return NewWithUploader(manager.NewUploader(client), config.Bucket, config.Prefix), nil
}

// NewWithUploader creates a sink on an existing uploader
func NewWithUploader(uploader Uploader, bucket, prefix string) *Sink {
	return &Sink{uploader: uploader, bucket: bucket, prefix: prefix}
}

// ObjectKey returns the key an event is archived under
func (s *Sink) ObjectKey(event contentledger.Event) string {
	name := fmt.Sprintf("%04d-%s.json", event.Index, event.Kind)
	return path.Join(s.prefix, fmt.Sprintf("%020d", event.Sequence), name)
}

// Publish uploads the event as JSON
func (s *Sink) Publish(ctx context.Context, event contentledger.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	key := s.ObjectKey(event)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("failed to archive event %s: %s: %w", key, apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("failed to archive event %s: %w", key, err)
	}
	return nil
}
