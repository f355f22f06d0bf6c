// Package api is the HTTP surface of the converter: upload spooling, disk
// admission, routing to the converters, and the response/error contract.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/fileconverter/internal/converter"
	"github.com/local/fileconverter/internal/diskspace"
	"github.com/local/fileconverter/internal/filetype"
	"github.com/local/fileconverter/internal/metrics"
	"github.com/local/fileconverter/internal/store"
	"github.com/local/fileconverter/internal/tempfile"
)

// DocumentConverter runs conversions through the office suite.
type DocumentConverter interface {
	Convert(job converter.Job) converter.Result
}

// ImageConverter re-encodes raster images in process.
type ImageConverter interface {
	Convert(inputPath, outputPath, format string) converter.Result
}

// PageRasterizer renders a PDF page to an image file.
type PageRasterizer interface {
	RenderPage(inputPath, outputPath, format string, page int) converter.Result
}

// SourceFetcher resolves remote refs (http, https, s3) into local files.
type SourceFetcher interface {
	Fetch(ctx context.Context, ref, destPath string) (int64, error)
}

// MergeFunc merges PDF inputs, preserving their order, into outputPath.
type MergeFunc func(inputPaths []string, outputPath string) converter.Result

// Dependencies wires the server to its collaborators.
type Dependencies struct {
	Gate     *diskspace.Gate
	Temp     *tempfile.Manager
	Detector *filetype.Detector
	Office   DocumentConverter
	Images   ImageConverter
	Raster   PageRasterizer
	Merge    MergeFunc
	Fetcher  SourceFetcher // optional; source_url is rejected when nil
	History  store.History // optional; requests are not recorded when nil
}

// Server handles the conversion API.
type Server struct {
	deps      Dependencies
	chunkSize int
}

// New builds a server. chunkSizeMB sizes the buffer used to spool uploads to
// disk and to stream results back out.
func New(deps Dependencies, chunkSizeMB int) *Server {
	if chunkSizeMB <= 0 {
		chunkSizeMB = 10
	}
	return &Server{deps: deps, chunkSize: chunkSizeMB << 20}
}

// RegisterRoutes attaches the API to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) })
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/convert", s.handleConvert)
	mux.HandleFunc("/merge", s.handleMerge)
}

// copyChunks copies src to dst through a fixed-size buffer. The interface
// wrappers mask ReadFrom/WriteTo so the configured chunk size, not an
// internal fast path, bounds memory per request.
func (s *Server) copyChunks(dst io.Writer, src io.Reader) (int64, error) {
	return io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, make([]byte, s.chunkSize))
}

// spool streams one upload part to path.
func (s *Server) spool(path string, src io.Reader) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	n, copyErr := s.copyChunks(out, src)
	closeErr := out.Close()
	if copyErr != nil {
		return n, copyErr
	}
	if closeErr != nil {
		return n, fmt.Errorf("close temp file: %w", closeErr)
	}
	return n, nil
}

// uploadError maps a spool failure to the error taxonomy. Body-cap and
// truncation failures are the client's; everything else lands on failCode.
func uploadError(err error, failCode string) *requestError {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return badRequest("request body exceeds the configured limit")
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return badRequest("truncated upload")
	default:
		return &requestError{
			status:  http.StatusInternalServerError,
			code:    failCode,
			message: fmt.Sprintf("spooling upload failed: %v", err),
		}
	}
}

// sendFile streams path as an attachment. An error return means nothing was
// written yet and the caller can still send an error response. A failure
// mid-stream is only logged; the response is already committed.
func (s *Server) sendFile(w http.ResponseWriter, path, contentType, downloadName string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat output: %w", err)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))

	if _, err := s.copyChunks(w, f); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("result stream interrupted")
	}
	return nil
}

// maxFieldLen bounds the small text fields read out of the multipart body.
const maxFieldLen = 4096

func readField(part *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldLen))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// record writes a history entry, filling the bookkeeping fields. Best effort:
// the store logs its own failures and conversions never depend on it.
func (s *Server) record(e store.Entry) {
	if s.deps.History == nil {
		return
	}
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now()
	s.deps.History.Record(context.Background(), e)
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
