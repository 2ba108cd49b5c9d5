package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/dm-dispatch/internal/config"
	"github.com/ignite/dm-dispatch/internal/service/dispatch"
)

// S3API is the subset of *s3.Client used by S3Archive.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// LoadAWSConfig resolves AWS settings for the given storage section. Static
// keys win over the profile, and an empty profile uses the default chain.
func LoadAWSConfig(ctx context.Context, cfg config.StorageConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	case cfg.GetAWSProfile() != "":
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.GetAWSProfile()))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewS3Client builds an S3 client, honoring a custom endpoint.
func NewS3Client(awsCfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// S3Archive keeps batch results as JSON objects under
// <prefix>/YYYY/MM/DD/HH-MM-SS.json.
type S3Archive struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Archive creates an archive in bucket under prefix.
func NewS3Archive(client S3API, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (a *S3Archive) dayPrefix(day time.Time) string {
	return path.Join(a.prefix, day.UTC().Format("2006/01/02")) + "/"
}

func (a *S3Archive) key(ts time.Time) string {
	return a.dayPrefix(ts) + runFileName(ts)
}

func (a *S3Archive) SaveRun(ctx context.Context, result *dispatch.BatchResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	key := a.key(result.Timestamp)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting %s to S3: %w", key, err)
	}
	return nil
}

func (a *S3Archive) ListRuns(ctx context.Context, day time.Time) ([]dispatch.BatchResult, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.dayPrefix(day)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil && strings.HasSuffix(*obj.Key, ".json") {
				keys = append(keys, *obj.Key)
			}
		}
	}
	sort.Strings(keys)

	runs := make([]dispatch.BatchResult, 0, len(keys))
	for _, key := range keys {
		run, err := a.get(ctx, key)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func (a *S3Archive) get(ctx context.Context, key string) (*dispatch.BatchResult, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting %s from S3: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	var run dispatch.BatchResult
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &run, nil
}

// Ping checks that the bucket is reachable.
func (a *S3Archive) Ping(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", a.bucket, err)
	}
	return nil
}
