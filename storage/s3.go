package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/artlu99/wallets-and-faucet/interfaces"
)

const s3ExpiresMetadataKey = "Expires-At"

// S3Store implements a secret store using Amazon S3 or compatible services.
// Expiry is carried as object metadata and enforced lazily on read; a bucket
// lifecycle rule can reap expired objects that are never read again.
//
// Increment is a read-then-write pair; concurrent increments can lose
// updates. Deployments needing exact counts should use the memory or file
// store, or front this one with a serializing process.
type S3Store struct {
	client      *s3.S3
	bucketName  string
	prefix      string
	log         *slog.Logger
	locationURI string
	now         func() time.Time
}

// NewS3Store creates an S3-backed secret store. If accessKey and secretKey
// are empty the default AWS credential chain is used.
func NewS3Store(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Store, error) {
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Store{
		client:      s3.New(sess),
		bucketName:  bucketName,
		prefix:      strings.Trim(prefix, "/"),
		log:         log,
		locationURI: uri,
		now:         time.Now,
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	return path.Join(s.prefix, key)
}

// Put stores a record under key with its expiry in object metadata.
func (s *S3Store) Put(ctx context.Context, key string, record interfaces.StorageRecord, ttl time.Duration) error {
	if ttl <= interfaces.MinTTL {
		return fmt.Errorf("%w: ttl must exceed %s", interfaces.ErrValidation, interfaces.MinTTL)
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(body),
		Metadata: map[string]*string{
			s3ExpiresMetadataKey: aws.String(strconv.FormatInt(s.now().Add(ttl).Unix(), 10)),
		},
	})
	if err != nil {
		s.log.Error("Failed to put object to S3", slog.String("key", key), "err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return nil
}

// Get retrieves a record, deleting it lazily if its TTL has passed.
func (s *S3Store) Get(ctx context.Context, key string) (interfaces.StorageRecord, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return interfaces.StorageRecord{}, interfaces.ErrRecordNotFound
		}
		s.log.Error("Failed to get object from S3", slog.String("key", key), "err", err)
		return interfaces.StorageRecord{}, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	defer out.Body.Close()

	if expiresStr, ok := out.Metadata[s3ExpiresMetadataKey]; ok && expiresStr != nil {
		expiresAt, err := strconv.ParseInt(*expiresStr, 10, 64)
		if err == nil && expiresAt > 0 && s.now().Unix() > expiresAt {
			_, _ = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucketName),
				Key:    aws.String(s.objectKey(key)),
			})
			return interfaces.StorageRecord{}, interfaces.ErrRecordNotFound
		}
	}

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return interfaces.StorageRecord{}, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	var record interfaces.StorageRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return interfaces.StorageRecord{}, fmt.Errorf("%w: %v", interfaces.ErrMalformedRecord, err)
	}
	return record, nil
}

// List returns all keys under the prefix, up to one page of results.
func (s *S3Store) List(ctx context.Context) ([]string, error) {
	out, err := s.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(s.prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		keys = append(keys, strings.TrimPrefix(strings.TrimPrefix(*obj.Key, s.prefix), "/"))
	}
	return keys, nil
}

// Increment adds one to a named counter via read-then-write. Lost updates
// are possible under concurrency.
func (s *S3Store) Increment(ctx context.Context, counter string) (int64, error) {
	current, err := s.GetCounter(ctx, counter)
	if err != nil {
		return 0, err
	}

	current++
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(counter)),
		Body:   bytes.NewReader([]byte(strconv.FormatInt(current, 10))),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return current, nil
}

// GetCounter reads a named counter, zero if unset.
func (s *S3Store) GetCounter(ctx context.Context, counter string) (int64, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(counter)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	value, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s is not a decimal string: %w", counter, err)
	}
	return value, nil
}

// Available checks the bucket is reachable.
func (s *S3Store) Available(ctx context.Context) bool {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucketName),
	})
	if err != nil {
		s.log.Debug("S3 store unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this store.
func (s *S3Store) Name() string {
	return fmt.Sprintf("s3-%s", s.bucketName)
}

// LocationURI returns the URI identifying this store.
func (s *S3Store) LocationURI() string {
	return s.locationURI
}
