package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufferWriter struct {
	bytes.Buffer
	path        string
	contentType string
	closeErr    error
	closed      bool
}

func (w *bufferWriter) Close() error {
	w.closed = true
	return w.closeErr
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk read error") }

func newTestStore(w *bufferWriter) *BlobStore {
	return newBlobStore("site-snapshots", func(_ context.Context, path, contentType string) io.WriteCloser {
		w.path, w.contentType = path, contentType
		return w
	})
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	w := &bufferWriter{}
	uri, err := newTestStore(w).PutObject(context.Background(), "/snapshots/v1.json", "application/json", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "gs://site-snapshots/snapshots/v1.json", uri)
	assert.Equal(t, "snapshots/v1.json", w.path)
	assert.Equal(t, "application/json", w.contentType)
	assert.Equal(t, `{"a":1}`, w.String())
	assert.True(t, w.closed)
}

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	_, err := newTestStore(&bufferWriter{}).PutObject(context.Background(), " ", "", strings.NewReader("x"))
	require.Error(t, err)

	w := &bufferWriter{}
	_, err = newTestStore(w).PutObject(context.Background(), "a.json", "", failingReader{})
	require.ErrorContains(t, err, "copy object")
	assert.True(t, w.closed)

	w = &bufferWriter{closeErr: errors.New("precondition failed")}
	_, err = newTestStore(w).PutObject(context.Background(), "a.json", "", strings.NewReader("x"))
	require.ErrorContains(t, err, "close writer")
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), nil, Config{Bucket: "b"})
	require.Error(t, err)
}
