package storage_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/mnhsh/digital-capsule/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectURL(t *testing.T) {
	t.Parallel()

	bucket, key, ok, err := storage.ParseObjectURL("s3://capsule-bucket/uploads/a b.png")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "capsule-bucket", bucket)
	assert.Equal(t, "uploads/a b.png", key)

	_, _, ok, err = storage.ParseObjectURL("https://example.com/a.png")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, ok, err = storage.ParseObjectURL("s3://bucket-only")
	assert.True(t, ok)
	require.ErrorIs(t, err, storage.ErrInvalidObjectURL)
}

func TestResolve(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	s, err := storage.NewS3Storage(ctx, storage.Options{
		Region:          "us-east-1",
		Endpoint:        "http://localhost:4566",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		PresignExpiry:   5 * time.Minute,
	})
	require.NoError(t, err)

	out, err := s.Resolve(ctx, "https://cdn.example/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.png", out)

	out, err = s.Resolve(ctx, "s3://capsule-bucket/uploads/a.png")
	require.NoError(t, err)

	u, err := url.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "localhost:4566", u.Host)
	assert.Equal(t, "/capsule-bucket/uploads/a.png", u.Path)
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
