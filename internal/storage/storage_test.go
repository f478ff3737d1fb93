package storage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetectImage(t *testing.T) {
	ct, ext, err := DetectImage(pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, ".png", ext)

	_, _, err = DetectImage([]byte("%PDF-1.4 not an image"))
	assert.ErrorIs(t, err, ErrNotImage)

	_, _, err = DetectImage(nil)
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestProofKey(t *testing.T) {
	key := ProofKey("c-1", ".png")
	assert.Regexp(t, `^proofs/c-1/[0-9a-f-]{36}\.png$`, key)
}

func TestDiskStore(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	data := pngBytes(t)

	require.NoError(t, store.Put(ctx, "proofs/c-1/a.png", "image/png", data))

	rc, ct, err := store.Get(ctx, "proofs/c-1/a.png")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "image/png", ct)

	_, _, err = store.Get(ctx, "proofs/c-1/missing.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, store.Delete(ctx, "proofs/c-1/a.png"))
	_, _, err = store.Get(ctx, "proofs/c-1/a.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.NoError(t, store.Delete(ctx, "proofs/c-1/a.png"), "deleting twice is fine")
}

func TestDiskStoreStaysInRoot(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	path, err := store.path("../../etc/passwd")
	require.NoError(t, err)
	assert.Contains(t, path, store.root)
}

type mockObjectAPI struct {
	mock.Mock
}

func (m *mockObjectAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(aws.ToString(in.Key), aws.ToString(in.ContentType))
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *mockObjectAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(aws.ToString(in.Key))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func (m *mockObjectAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, args.Error(0)
}

func newTestS3Store(api objectAPI) *S3Store {
	log, _ := test.NewNullLogger()
	return &S3Store{api: api, bucket: "proofs", log: logrus.NewEntry(log)}
}

func TestS3Store_Put(t *testing.T) {
	api := new(mockObjectAPI)
	api.On("PutObject", "proofs/c-1/a.png", "image/png").Return(nil).Once()
	api.On("PutObject", "proofs/c-2/b.png", "image/png").Return(errors.New("access denied")).Once()
	store := newTestS3Store(api)

	assert.NoError(t, store.Put(context.Background(), "proofs/c-1/a.png", "image/png", []byte("x")))
	err := store.Put(context.Background(), "proofs/c-2/b.png", "image/png", []byte("x"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "upload proof")
	api.AssertExpectations(t)
}

func TestS3Store_Get(t *testing.T) {
	api := new(mockObjectAPI)
	api.On("GetObject", "proofs/c-1/a.png").Return(&s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader([]byte("img"))),
		ContentType: aws.String("image/png"),
	}, nil)
	api.On("GetObject", "proofs/c-1/none.png").Return(nil, &types.NoSuchKey{})
	store := newTestS3Store(api)

	rc, ct, err := store.Get(context.Background(), "proofs/c-1/a.png")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "img", string(body))
	assert.Equal(t, "image/png", ct)

	_, _, err = store.Get(context.Background(), "proofs/c-1/none.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestS3Store_Delete(t *testing.T) {
	api := new(mockObjectAPI)
	api.On("DeleteObject", "proofs/c-1/a.png").Return(nil).Once()
	api.On("DeleteObject", "proofs/c-2/b.png").Return(errors.New("throttled")).Once()
	store := newTestS3Store(api)

	assert.NoError(t, store.Delete(context.Background(), "proofs/c-1/a.png"))
	err := store.Delete(context.Background(), "proofs/c-2/b.png")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "delete proof")
	api.AssertExpectations(t)
}
