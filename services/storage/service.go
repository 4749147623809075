package storage

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mercure/interfaces"
	mercure_errors "github.com/customeros/mercure/internal/errors"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/services/storage/aws_client"
)

// BucketStorage keeps attachment contents in one private bucket.
// Recipients only ever download through the tracked attachment route.
type BucketStorage struct {
	bucket aws_client.Bucket
}

func NewBucketStorage(bucket aws_client.Bucket) interfaces.ObjectStorage {
	return &BucketStorage{bucket: bucket}
}

func (s *BucketStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BucketStorage.Upload")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.bucket.Put(ctx, key, data, contentType); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrapf(err, "failed to upload %s", key)
	}
	return nil
}

func (s *BucketStorage) Download(ctx context.Context, key string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BucketStorage.Download")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	content, err := s.bucket.Get(ctx, key)
	switch {
	case errors.Is(err, aws_client.ErrNoSuchKey):
		return nil, errors.Wrap(mercure_errors.ErrObjectNotFound, key)
	case err != nil:
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to download %s", key)
	}
	return content, nil
}

func (s *BucketStorage) Delete(ctx context.Context, key string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BucketStorage.Delete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := s.bucket.Remove(ctx, key); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrapf(err, "failed to delete %s", key)
	}
	return nil
}
