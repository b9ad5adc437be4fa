package remote

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/matheus3301/fieldsync/internal/store"
)

// S3Config configures the object storage backend. Endpoint and PathStyle
// target S3-compatible servers such as MinIO.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 mirrors each record to one object at {prefix}/{objectStore}/{recordId}.json.
// Creates and updates overwrite the object and deletes remove it, so
// replaying a mutation has no further effect.
type S3 struct {
	api    objectAPI
	bucket string
	prefix string
}

// NewS3 builds a client from the default AWS chain, overridden by static
// keys when both are set.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("remote: s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3(client, cfg), nil
}

func newS3(api objectAPI, cfg S3Config) *S3 {
	return &S3{api: api, bucket: cfg.Bucket, prefix: cfg.Prefix}
}

// Key returns the object key for a record.
func (s *S3) Key(objectStore, recordID string) string {
	return path.Join(s.prefix, objectStore, recordID+".json")
}

func (s *S3) Push(ctx context.Context, m Mutation) error {
	key := s.Key(m.ObjectStore, m.RecordID)
	switch m.Operation {
	case store.OpCreate, store.OpUpdate:
		_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(m.Payload),
			ContentType: aws.String("application/json"),
			Metadata:    map[string]string{"idempotency-key": m.ItemID},
		})
		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	case store.OpDelete:
		if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	default:
		return fmt.Errorf("remote: unknown operation %q", m.Operation)
	}
	return nil
}
