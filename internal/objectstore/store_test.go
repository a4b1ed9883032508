package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livinlefevreloca/runsync/internal/db"
)

// fakeS3 is an in-memory S3API
type fakeS3 struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	failWith     error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	body, _ := io.ReadAll(in.Body)
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = body
	f.contentTypes[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	if _, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

// exerciseStore runs the common Store contract against an implementation
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "job_7_nightly_run/job_state.json")
	assert.True(t, IsNotFound(err), "expected not found, got %v", err)

	exists, err := store.Exists(ctx, "job_7_nightly_run/job_state.json")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Put(ctx, "job_7_nightly_run/job_state.json", []byte(`{"id":7}`)))

	exists, err = store.Exists(ctx, "job_7_nightly_run/job_state.json")
	require.NoError(t, err)
	assert.True(t, exists)

	body, err := store.Get(ctx, "job_7_nightly_run/job_state.json")
	require.NoError(t, err)
	assert.Equal(t, `{"id":7}`, string(body))

	require.NoError(t, store.Put(ctx, "job_7_nightly_run/job_state.json", []byte(`{"id":8}`)))
	body, err = store.Get(ctx, "job_7_nightly_run/job_state.json")
	require.NoError(t, err)
	assert.Equal(t, `{"id":8}`, string(body), "put must overwrite")
}

func TestMemory_Contract(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, "k", []byte("abc")))

	body, err := m.Get(ctx, "k")
	require.NoError(t, err)
	body[0] = 'x'

	again, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
	assert.Equal(t, 1, m.PutCount())
}

func TestMemory_Keys(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, k := range []string{"a/2", "a/1", "b/1"} {
		m.Put(ctx, k, nil)
	}
	assert.Equal(t, []string{"a/1", "a/2"}, m.Keys("a/"))
}

func TestS3_Contract(t *testing.T) {
	exerciseStore(t, NewS3(newFakeS3(), "bucket"))
}

func TestS3_ContentType(t *testing.T) {
	ctx := context.Background()
	api := newFakeS3()
	store := NewS3(api, "bucket")

	require.NoError(t, store.Put(ctx, "a/models.csv", []byte("x")))
	require.NoError(t, store.Put(ctx, "a/job_state.json", []byte("{}")))

	assert.Equal(t, "text/csv", api.contentTypes["bucket/a/models.csv"])
	assert.Equal(t, "application/json", api.contentTypes["bucket/a/job_state.json"])
}

func TestS3_TransportErrorsAreNotNotFound(t *testing.T) {
	ctx := context.Background()
	api := newFakeS3()
	api.failWith = errors.New("connection reset")
	store := NewS3(api, "bucket")

	_, err := store.Get(ctx, "k")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))

	_, err = store.Exists(ctx, "k")
	require.Error(t, err)

	err = store.Put(ctx, "k", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://bucket/k")
}

func TestSQLite_Contract(t *testing.T) {
	database, err := db.OpenWithConfig(db.Config{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	exerciseStore(t, NewSQLite(database))
}

func TestWithPrefix(t *testing.T) {
	m := NewMemory()
	store := WithPrefix(m, "dbt_api")

	exerciseStore(t, store)
	assert.Equal(t, []string{"dbt_api/job_7_nightly_run/job_state.json"}, m.Keys(""))
}

func TestWithPrefix_Empty(t *testing.T) {
	m := NewMemory()
	assert.Same(t, Store(m), WithPrefix(m, ""))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", contentType("x/y.json"))
	assert.Equal(t, "text/csv", contentType("x/models.csv"))
	assert.Equal(t, "application/octet-stream", contentType("x/blob"))
}
