// Package backup uploads the registry's host snapshot to an S3-compatible
// bucket on a timer, retaining a bounded number of past objects. It is
// disabled by default and never consulted by a protocol handler: a failed
// upload only costs the operator a restore point, never lock correctness.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/dittofs/internal/logger"
)

// Config configures the S3 destination and retention policy.
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	KeyPrefix       string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool

	// RetainCount is how many of the most recent backup objects to keep;
	// older ones are deleted after each successful upload.
	RetainCount int
}

// SnapshotSource returns the latest serialized snapshot to upload. It is
// satisfied by (*snapshot.Store).Read composed with json.Marshal, so the
// backup package never needs to know about badger's on-disk layout.
type SnapshotSource func() ([]byte, error)

// Uploader periodically uploads the current snapshot to S3 and prunes old
// objects beyond RetainCount.
type Uploader struct {
	client *s3.Client
	cfg    Config
	source SnapshotSource
	interval time.Duration
}

// NewClient builds an S3 client from cfg, mirroring the credentials/
// endpoint/path-style wiring used elsewhere in this tree for S3-compatible
// backends (MinIO, Ceph RGW, real AWS).
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}

// NewUploader builds an Uploader that calls source fresh on every upload.
func NewUploader(client *s3.Client, cfg Config, source SnapshotSource, interval time.Duration) *Uploader {
	if cfg.RetainCount <= 0 {
		cfg.RetainCount = 5
	}
	return &Uploader{client: client, cfg: cfg, source: source, interval: interval}
}

// Run uploads on a timer until ctx is cancelled.
func (u *Uploader) Run(ctx context.Context) {
	if u.interval <= 0 {
		return
	}
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := u.uploadOnce(ctx); err != nil {
				logger.Warn("snapshot backup failed", "error", err)
			}
		}
	}
}

func (u *Uploader) uploadOnce(ctx context.Context) error {
	data, err := u.source()
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	key := u.objectKey(time.Now())
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("upload snapshot object %s: %w", key, err)
	}

	logger.Debug("snapshot backup uploaded", "bucket", u.cfg.Bucket, "key", key, "bytes", len(data))
	return u.pruneOld(ctx)
}

func (u *Uploader) objectKey(t time.Time) string {
	return fmt.Sprintf("%ssnapshot-%s.json", u.cfg.KeyPrefix, t.UTC().Format("20060102T150405Z"))
}

// pruneOld lists every object under the configured prefix and deletes all
// but the RetainCount most recent, identified by key (the timestamp-encoded
// suffix sorts lexically with chronological order).
func (u *Uploader) pruneOld(ctx context.Context) error {
	out, err := u.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(u.cfg.Bucket),
		Prefix: aws.String(u.cfg.KeyPrefix),
	})
	if err != nil {
		return fmt.Errorf("list backup objects: %w", err)
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	sort.Strings(keys)

	if len(keys) <= u.cfg.RetainCount {
		return nil
	}
	toDelete := keys[:len(keys)-u.cfg.RetainCount]
	for _, key := range toDelete {
		if _, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(u.cfg.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			logger.Warn("failed to prune old backup object", "key", key, "error", err)
			continue
		}
		logger.Debug("pruned old backup object", "key", key)
	}
	return nil
}
