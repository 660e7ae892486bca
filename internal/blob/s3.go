package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tierfs/tierfs/internal/config"
	"github.com/tierfs/tierfs/pkg/types"
)

// S3 is a BlobStore backed by an S3 bucket. Tiers map onto storage
// classes: hot content is STANDARD, warm and cold use the classes named in
// configuration (STANDARD_IA and GLACIER by default). Tier transitions are
// server-side self-copies with a new storage class.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string

	warmClass s3types.StorageClass
	coldClass s3types.StorageClass
}

// NewS3 builds the store from service configuration. The AWS credential
// chain (env, shared config, instance role) is used as-is.
func NewS3(ctx context.Context, cfg config.S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name cannot be empty")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	warm := cfg.WarmStorageClass
	if warm == "" {
		warm = "STANDARD_IA"
	}
	cold := cfg.ColdStorageClass
	if cold == "" {
		cold = "GLACIER"
	}

	return &S3{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    strings.TrimSuffix(cfg.KeyPrefix, "/"),
		warmClass: s3types.StorageClass(warm),
		coldClass: s3types.StorageClass(cold),
	}, nil
}

// objectKey flattens a namespaced blob key into an S3 object key. The NUL
// separator between namespace and path becomes the namespace/path boundary.
func (b *S3) objectKey(key string) string {
	flat := strings.Replace(key, "\x00", "", 1)
	flat = strings.TrimPrefix(flat, "/")
	if b.prefix != "" {
		return b.prefix + "/" + flat
	}
	return flat
}

func (b *S3) storageClass(tier types.Tier) s3types.StorageClass {
	switch tier {
	case types.TierWarm:
		return b.warmClass
	case types.TierCold:
		return b.coldClass
	default:
		return s3types.StorageClassStandard
	}
}

func (b *S3) tierOf(class s3types.StorageClass) types.Tier {
	switch class {
	case b.coldClass:
		return types.TierCold
	case b.warmClass:
		return types.TierWarm
	default:
		return types.TierHot
	}
}

func (b *S3) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("s3 read body %s: %w", key, err)
	}
	return data, true, nil
}

func (b *S3) GetRange(ctx context.Context, key string, start, end int64) ([]byte, bool, error) {
	if start < 0 {
		start = 0
	}
	rng := fmt.Sprintf("bytes=%d-", start)
	if end >= 0 {
		rng = fmt.Sprintf("bytes=%d-%d", start, end)
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
		Range:  aws.String(rng),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		if isInvalidRange(err) {
			// Past-EOF reads yield empty content, matching the local stores.
			return []byte{}, true, nil
		}
		return nil, false, fmt.Errorf("s3 range get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("s3 read body %s: %w", key, err)
	}
	return data, true, nil
}

func (b *S3) Put(ctx context.Context, key string, data []byte, tier types.Tier) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		StorageClass:  b.storageClass(tier),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func (b *S3) Head(ctx context.Context, key string) (*types.BlobInfo, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("s3 head %s: %w", key, err)
	}
	return &types.BlobInfo{
		Size: aws.ToInt64(out.ContentLength),
		Tier: b.tierOf(out.StorageClass),
	}, nil
}

func (b *S3) Copy(ctx context.Context, src, dst string) error {
	info, err := b.Head(ctx, src)
	if err != nil {
		return err
	}
	if info == nil {
		return nil
	}
	_, err = b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:       aws.String(b.bucket),
		Key:          aws.String(b.objectKey(dst)),
		CopySource:   aws.String(b.bucket + "/" + b.objectKey(src)),
		StorageClass: b.storageClass(info.Tier),
	})
	if err != nil {
		return fmt.Errorf("s3 copy %s -> %s: %w", src, dst, err)
	}
	return nil
}

func (b *S3) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

func (b *S3) GetTier(ctx context.Context, key string) (types.Tier, bool, error) {
	info, err := b.Head(ctx, key)
	if err != nil {
		return "", false, err
	}
	if info == nil {
		return "", false, nil
	}
	return info.Tier, true, nil
}

// SetTier transitions an object between storage classes with a server-side
// self-copy, the same mechanism S3 lifecycle transitions use.
func (b *S3) SetTier(ctx context.Context, key string, tier types.Tier) error {
	obj := b.objectKey(key)
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(b.bucket),
		Key:               aws.String(obj),
		CopySource:        aws.String(b.bucket + "/" + obj),
		StorageClass:      b.storageClass(tier),
		MetadataDirective: s3types.MetadataDirectiveCopy,
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("s3 tier transition %s -> %s: %w", key, tier, err)
	}
	return nil
}

func (b *S3) Close() error { return nil }

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func isInvalidRange(err error) bool {
	return strings.Contains(err.Error(), "InvalidRange") ||
		strings.Contains(err.Error(), "Requested Range Not Satisfiable")
}
