package backup

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sc "github.com/goldflix/goldflix/internal/server/config"
)

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, io.EOF
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3RoundTrip(t *testing.T) {
	svc, cat, _ := newFixture(t)
	ctx := context.Background()

	seedMovie(t, cat, "m1", "Dragon Ball", 1000)

	cfg := &sc.Config{S3Bucket: "backups"}
	fake := &fakeS3{}
	s3store := NewS3StoreWithClient(svc, cfg, fake)

	key, err := s3store.Upload(ctx)
	require.NoError(t, err)
	assert.Contains(t, key, "backups/goldflix_")
	require.Len(t, fake.objects, 1)

	// restore the uploaded dump into a fresh store
	dst, dstCat, _ := newFixture(t)
	dstS3 := NewS3StoreWithClient(dst, cfg, fake)
	restored, err := dstS3.Download(ctx, key)
	require.NoError(t, err)
	assert.Greater(t, restored, 0)

	movie, err := dstCat.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Dragon Ball", movie.Title)
}
