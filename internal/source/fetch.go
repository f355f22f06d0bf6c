// Package source resolves remote input references into local temp files so
// the conversion endpoints can accept an http(s):// or s3://bucket/key ref
// in place of an uploaded file.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/local/fileconverter/internal/config"
)

// Fetcher downloads remote refs into caller-chosen paths.
type Fetcher struct {
	httpClient *http.Client
	s3cfg      config.S3Config
	chunkSize  int
}

// NewFetcher builds a fetcher. chunkSizeMB sizes the copy buffer used while
// spooling HTTP bodies to disk.
func NewFetcher(s3cfg config.S3Config, chunkSizeMB int) *Fetcher {
	if chunkSizeMB <= 0 {
		chunkSizeMB = 10
	}
	return &Fetcher{
		httpClient: http.DefaultClient,
		s3cfg:      s3cfg,
		chunkSize:  chunkSizeMB << 20,
	}
}

// Fetch downloads ref into destPath and returns the bytes written. Supported
// schemes: http://, https://, s3://bucket/key.
func (f *Fetcher) Fetch(ctx context.Context, ref, destPath string) (int64, error) {
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return f.fetchHTTP(ctx, ref, destPath)
	case strings.HasPrefix(ref, "s3://"):
		return f.fetchS3(ctx, ref, destPath)
	default:
		return 0, fmt.Errorf("unsupported source scheme: %s", ref)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("source fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("source fetch failed: http %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer out.Close()

	n, err := io.CopyBuffer(out, resp.Body, make([]byte, f.chunkSize))
	if err != nil {
		return n, fmt.Errorf("spool source body: %w", err)
	}

	log.Info().Str("url", url).Int64("bytes", n).Msg("downloaded http source")
	return n, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, ref, destPath string) (int64, error) {
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return 0, err
	}

	cli, err := NewS3Client(ctx, f.s3cfg)
	if err != nil {
		return 0, fmt.Errorf("s3 client: %w", err)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer out.Close()

	downloader := manager.NewDownloader(cli)
	n, err := downloader.Download(ctx, out, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("s3 download failed: %w", err)
	}

	log.Info().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Msg("downloaded s3 source")
	return n, nil
}

// NewS3Client builds a client from the default chain, overridden by static
// credentials and a custom endpoint when configured (S3-compatible stores).
func NewS3Client(ctx context.Context, s3cfg config.S3Config) (*s3.Client, error) {
	opts := []func(*awscfg.LoadOptions) error{}
	if s3cfg.Region != "" {
		opts = append(opts, awscfg.WithRegion(s3cfg.Region))
	}
	if s3cfg.AccessKey != "" && s3cfg.SecretKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3cfg.AccessKey, s3cfg.SecretKey, "")))
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
		}
		if s3cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// parseS3Ref splits s3://bucket/key.
func parseS3Ref(ref string) (bucket, key string, err error) {
	path := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 || slash == len(path)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	return path[:slash], path[slash+1:], nil
}
