package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	buf      bytes.Buffer
	closed   bool
	closeErr error
}

func (w *fakeWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestNewRequiresClientAndBucket(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	_, err = newBlobStore(Config{}, nil)
	require.Error(t, err)
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	var gotBucket, gotObject, gotType string
	store, err := newBlobStore(Config{Bucket: "snaps"}, func(_ context.Context, bucket, object, contentType string) objectWriter {
		gotBucket, gotObject, gotType = bucket, object, contentType
		return w
	})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "/snapshots/guest/b-1.html", "text/html", bytes.NewBufferString("<html/>"))
	require.NoError(t, err)
	require.Equal(t, "gs://snaps/snapshots/guest/b-1.html", uri)
	require.Equal(t, "snaps", gotBucket)
	require.Equal(t, "snapshots/guest/b-1.html", gotObject)
	require.Equal(t, "text/html", gotType)
	require.Equal(t, "<html/>", w.buf.String())
	require.True(t, w.closed)
}

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	store, err := newBlobStore(Config{Bucket: "snaps"}, func(context.Context, string, string, string) objectWriter {
		return w
	})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "", "", bytes.NewReader(nil))
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), "x.html", "", errReader{})
	require.ErrorContains(t, err, "copy object")
	require.True(t, w.closed)

	w.closeErr = errors.New("quota")
	_, err = store.PutObject(context.Background(), "x.html", "", io.LimitReader(bytes.NewReader([]byte("abc")), 3))
	require.ErrorContains(t, err, "close writer")
}
