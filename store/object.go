package store

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/aukilabs/escapefield/field"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	ErrTypeObjectStore = "object_store_error"

	checksumMetadata = "Checksum"
	artifactMimeType = "application/vnd.escapefield.v1+protobuf"
	artifactExt      = ".vfb"
)

// ObjectStoreConfig describes how to reach an S3 compatible bucket.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// ObjectStore uploads and downloads binary field artifacts.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

func NewObjectStore(conf ObjectStoreConfig) (*ObjectStore, error) {
	if conf.Bucket == "" {
		return nil, errors.New("object store bucket is empty").
			WithType(ErrTypeObjectStore).
			WithTag("endpoint", conf.Endpoint)
	}

	client, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, ""),
		Secure: conf.Secure,
	})
	if err != nil {
		return nil, errors.New("creating object store client failed").
			WithType(ErrTypeObjectStore).
			WithTag("endpoint", conf.Endpoint).
			Wrap(err)
	}

	return &ObjectStore{
		client: client,
		bucket: conf.Bucket,
	}, nil
}

// ObjectKey returns the key of a field artifact.
func ObjectKey(id string) string {
	return "fields/" + id + artifactExt
}

// Put uploads the binary artifact of f under key, creating the bucket when it
// does not exist.
func (s *ObjectStore) Put(ctx context.Context, key string, f field.BakedField) (err error) {
	defer func() {
		instrumentObjectTransfer("put", err)
	}()

	if err := s.ensureBucket(ctx); err != nil {
		return err
	}

	raw := field.EncodeBinary(f)
	checksum := field.ChecksumBinary(raw)

	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType:  artifactMimeType,
		UserMetadata: map[string]string{checksumMetadata: checksum},
	})
	if err != nil {
		return errors.New("uploading field artifact failed").
			WithType(ErrTypeObjectStore).
			WithTag("bucket", s.bucket).
			WithTag("key", key).
			Wrap(err)
	}

	logs.WithTag("bucket", info.Bucket).
		WithTag("key", info.Key).
		WithTag("size", info.Size).
		WithTag("checksum", checksum).
		Info("field artifact uploaded")
	return nil
}

func (s *ObjectStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.New("checking object store bucket failed").
			WithType(ErrTypeObjectStore).
			WithTag("bucket", s.bucket).
			Wrap(err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.New("creating object store bucket failed").
			WithType(ErrTypeObjectStore).
			WithTag("bucket", s.bucket).
			Wrap(err)
	}
	return nil
}

// Get downloads and decodes the artifact stored under key. The checksum
// metadata is verified when present.
func (s *ObjectStore) Get(ctx context.Context, key string) (f field.BakedField, err error) {
	defer func() {
		instrumentObjectTransfer("get", err)
	}()

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return field.BakedField{}, s.getError(key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return field.BakedField{}, s.getError(key, err)
	}

	raw, err := io.ReadAll(obj)
	if err != nil {
		return field.BakedField{}, s.getError(key, err)
	}

	if checksum := metadata(info.UserMetadata, checksumMetadata); checksum != "" {
		if err := field.VerifyChecksum(raw, checksum); err != nil {
			return field.BakedField{}, errors.New("field artifact is corrupted").
				WithType(field.ErrTypeChecksumMismatch).
				WithTag("bucket", s.bucket).
				WithTag("key", key).
				Wrap(err)
		}
	}

	return field.DecodeBinary(raw)
}

func (s *ObjectStore) getError(key string, err error) error {
	errType := ErrTypeObjectStore
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		errType = ErrTypeFieldNotFound
	}

	return errors.New("downloading field artifact failed").
		WithType(errType).
		WithTag("bucket", s.bucket).
		WithTag("key", key).
		Wrap(err)
}

func metadata(m map[string]string, key string) string {
	for k, v := range m {
		if strings.EqualFold(k, key) || strings.EqualFold(k, "X-Amz-Meta-"+key) {
			return v
		}
	}
	return ""
}
