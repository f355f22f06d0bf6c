package source

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/local/fileconverter/internal/config"
)

func TestFetchHTTPSpoolsBody(t *testing.T) {
	payload := bytes.Repeat([]byte("fileconverter"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	f := NewFetcher(config.S3Config{}, 1)
	dest := filepath.Join(t.TempDir(), "input.bin")
	n, err := f.Fetch(context.Background(), srv.URL+"/some/file.pdf", dest)
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFetchHTTPNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(config.S3Config{}, 1)
	_, err := f.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "http 404")
}

func TestFetchRejectsUnsupportedScheme(t *testing.T) {
	f := NewFetcher(config.S3Config{}, 1)
	_, err := f.Fetch(context.Background(), "ftp://host/file", filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported source scheme")

	_, err = f.Fetch(context.Background(), "file:///etc/passwd", filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
}

func TestParseS3Ref(t *testing.T) {
	bucket, key, err := parseS3Ref("s3://my-bucket/path/to/file.pdf")
	require.NoError(t, err)
	require.Equal(t, "my-bucket", bucket)
	require.Equal(t, "path/to/file.pdf", key)

	for _, bad := range []string{"s3://", "s3://bucket-only", "s3://bucket/", "s3:///key"} {
		_, _, err := parseS3Ref(bad)
		require.Error(t, err, "ref %q must be rejected", bad)
	}
}
