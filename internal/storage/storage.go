// Package storage archives the result of every campaign batch run, in S3
// or on local disk, so operators can audit what the cron did.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ignite/dm-dispatch/internal/config"
	"github.com/ignite/dm-dispatch/internal/service/dispatch"
)

// Archive stores and lists batch results.
type Archive interface {
	dispatch.RunArchive
	ListRuns(ctx context.Context, day time.Time) ([]dispatch.BatchResult, error)
	Ping(ctx context.Context) error
}

var (
	_ Archive = (*S3Archive)(nil)
	_ Archive = (*LocalArchive)(nil)
)

// New builds the archive selected by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig) (Archive, error) {
	switch cfg.Type {
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("storage type s3 requires s3_bucket")
		}
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Archive(NewS3Client(awsCfg, cfg.S3Endpoint), cfg.S3Bucket, cfg.S3Prefix), nil
	case "local", "":
		return NewLocalArchive(filepath.Join(cfg.LocalPath, cfg.S3Prefix))
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// runFileName names a run file by its UTC time of day. Nanoseconds keep
// two runs in the same second apart.
func runFileName(ts time.Time) string {
	return ts.UTC().Format("15-04-05.000000000") + ".json"
}

// LocalArchive writes runs under <dir>/YYYY/MM/DD/.
type LocalArchive struct {
	mu  sync.Mutex
	dir string
}

// NewLocalArchive creates dir if needed.
func NewLocalArchive(dir string) (*LocalArchive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalArchive{dir: dir}, nil
}

func (a *LocalArchive) dayDir(day time.Time) string {
	return filepath.Join(a.dir, day.UTC().Format("2006"), day.UTC().Format("01"), day.UTC().Format("02"))
}

func (a *LocalArchive) SaveRun(_ context.Context, result *dispatch.BatchResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	dir := a.dayDir(result.Timestamp)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	file, err := os.Create(filepath.Join(dir, runFileName(result.Timestamp)))
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func (a *LocalArchive) ListRuns(_ context.Context, day time.Time) ([]dispatch.BatchResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	dir := a.dayDir(day)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []dispatch.BatchResult{}, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	runs := make([]dispatch.BatchResult, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var run dispatch.BatchResult
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", name, err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Ping checks that the archive directory is still there.
func (a *LocalArchive) Ping(context.Context) error {
	info, err := os.Stat(a.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", a.dir)
	}
	return nil
}
