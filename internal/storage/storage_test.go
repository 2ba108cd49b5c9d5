package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dm-dispatch/internal/config"
	"github.com/ignite/dm-dispatch/internal/service/dispatch"
)

func sampleRun(ts time.Time) *dispatch.BatchResult {
	return &dispatch.BatchResult{
		Processed: 2,
		Failed:    1,
		Total:     3,
		Timestamp: ts,
		Campaigns: []dispatch.CampaignRun{
			{CampaignID: "c1", Name: "Spring", Success: true, Activated: 4},
			{CampaignID: "c2", Name: "Summer", Success: true, Completed: true},
			{CampaignID: "c3", Name: "Fall", Error: "context deadline exceeded"},
		},
	}
}

func TestLocalArchive(t *testing.T) {
	ctx := context.Background()
	a, err := NewLocalArchive(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, a.Ping(ctx))

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	first := day.Add(9 * time.Hour)
	second := first.Add(5 * time.Minute)

	require.NoError(t, a.SaveRun(ctx, sampleRun(second)))
	require.NoError(t, a.SaveRun(ctx, sampleRun(first)))
	require.NoError(t, a.SaveRun(ctx, sampleRun(day.Add(-time.Hour))))

	runs, err := a.ListRuns(ctx, day)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].Timestamp.Equal(first), "runs are listed in time order")
	assert.Equal(t, 3, runs[0].Total)
	assert.Equal(t, "context deadline exceeded", runs[0].Campaigns[2].Error)

	empty, err := a.ListRuns(ctx, day.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLocalArchive_SameSecond(t *testing.T) {
	ctx := context.Background()
	a, err := NewLocalArchive(t.TempDir())
	require.NoError(t, err)

	ts := time.Date(2026, 3, 10, 9, 0, 0, 100, time.UTC)
	require.NoError(t, a.SaveRun(ctx, sampleRun(ts)))
	require.NoError(t, a.SaveRun(ctx, sampleRun(ts.Add(time.Millisecond))))

	runs, err := a.ListRuns(ctx, ts)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	a, err := New(ctx, config.StorageConfig{Type: "local", LocalPath: t.TempDir(), S3Prefix: "runs"})
	require.NoError(t, err)
	assert.IsType(t, &LocalArchive{}, a)

	_, err = New(ctx, config.StorageConfig{Type: "s3"})
	assert.ErrorContains(t, err, "s3_bucket")

	_, err = New(ctx, config.StorageConfig{Type: "ftp"})
	assert.ErrorContains(t, err, "unknown storage type")
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	headErr error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := *in.Bucket + "/" + aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, *in.Bucket+"/"))
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestS3Archive(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	a := NewS3Archive(client, "dm-runs", "/runs/")

	ts := time.Date(2026, 3, 10, 9, 30, 15, 0, time.UTC)
	require.NoError(t, a.SaveRun(ctx, sampleRun(ts)))
	require.NoError(t, a.SaveRun(ctx, sampleRun(ts.AddDate(0, 0, 1))))

	_, ok := client.objects["dm-runs/runs/2026/03/10/09-30-15.000000000.json"]
	assert.True(t, ok, "objects are keyed by date and time")

	runs, err := a.ListRuns(ctx, ts)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Processed)
	assert.True(t, runs[0].Timestamp.Equal(ts))

	require.NoError(t, a.Ping(ctx))
	client.headErr = errors.New("forbidden")
	assert.ErrorContains(t, a.Ping(ctx), "forbidden")
}
