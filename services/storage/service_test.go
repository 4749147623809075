package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	mercure_errors "github.com/customeros/mercure/internal/errors"
	"github.com/customeros/mercure/services/storage/aws_client"
)

type mockBucket struct {
	mock.Mock
}

func (m *mockBucket) Put(_ context.Context, key string, data []byte, contentType string) error {
	return m.Called(key, string(data), contentType).Error(0)
}

func (m *mockBucket) Get(_ context.Context, key string) ([]byte, error) {
	args := m.Called(key)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBucket) Remove(_ context.Context, key string) error {
	return m.Called(key).Error(0)
}

func TestBucketStorage(t *testing.T) {
	bucket := &mockBucket{}
	bucket.On("Put", "attachments/a.zip", "zip", "application/zip").Return(nil)
	bucket.On("Put", "attachments/raw", "raw", "application/octet-stream").Return(nil)
	bucket.On("Get", "attachments/a.zip").Return([]byte("zip"), nil)
	bucket.On("Get", "missing").Return(nil, aws_client.ErrNoSuchKey)
	bucket.On("Get", "broken").Return(nil, errors.New("throttled"))
	bucket.On("Remove", "attachments/a.zip").Return(nil)

	s := NewBucketStorage(bucket)
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "attachments/a.zip", []byte("zip"), "application/zip"))
	require.NoError(t, s.Upload(ctx, "attachments/raw", []byte("raw"), ""))

	data, err := s.Download(ctx, "attachments/a.zip")
	require.NoError(t, err)
	assert.Equal(t, []byte("zip"), data)

	_, err = s.Download(ctx, "missing")
	assert.ErrorIs(t, err, mercure_errors.ErrObjectNotFound)

	_, err = s.Download(ctx, "broken")
	assert.ErrorContains(t, err, "throttled")
	assert.NotErrorIs(t, err, mercure_errors.ErrObjectNotFound)

	require.NoError(t, s.Delete(ctx, "attachments/a.zip"))
	bucket.AssertExpectations(t)
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	content := []byte("payload")
	require.NoError(t, s.Upload(ctx, "k", content, "text/plain"))
	content[0] = 'X'

	data, err := s.Download(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Download(ctx, "k")
	assert.ErrorIs(t, err, mercure_errors.ErrObjectNotFound)
}
