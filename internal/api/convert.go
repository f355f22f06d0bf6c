package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/fileconverter/internal/converter"
	"github.com/local/fileconverter/internal/filetype"
	"github.com/local/fileconverter/internal/metrics"
	"github.com/local/fileconverter/internal/store"
	"github.com/local/fileconverter/internal/tempfile"
)

const defaultFormat = "pdf"

// convertUpload is the parsed /convert form.
type convertUpload struct {
	inputPath string
	name      string
	sourceURL string
	format    string
	bytesIn   int64
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	if err := s.deps.Gate.AdmitConvert(r.ContentLength); err != nil {
		metrics.IncAdmissionRejected("convert")
		s.record(store.Entry{Kind: "convert", Outcome: codeInsufficientSpace})
		writeError(w, http.StatusInsufficientStorage, codeInsufficientSpace, err.Error())
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "multipart form required")
		return
	}

	set, err := s.deps.Temp.NewSet()
	if err != nil {
		log.Error().Err(err).Msg("temp set allocation failed")
		writeError(w, http.StatusInternalServerError, codeConversionFailed, "temp storage unavailable")
		return
	}

	// Everything past this point owns temp files. fail releases them before
	// the error response goes out; the success path releases after the
	// stream instead.
	entry := store.Entry{Kind: "convert"}
	fail := func(status int, code, message string) {
		entry.Outcome = code
		entry.DurationMS = time.Since(start).Milliseconds()
		s.record(entry)
		set.Release()
		writeError(w, status, code, message)
	}

	up, err := s.readConvertForm(mr, set)
	if err != nil {
		reqErr := asRequestError(err, codeConversionFailed)
		fail(reqErr.status, reqErr.code, reqErr.message)
		return
	}

	if up.inputPath == "" && up.sourceURL != "" {
		if err := s.fetchSource(r.Context(), up, set); err != nil {
			reqErr := asRequestError(err, codeConversionFailed)
			fail(reqErr.status, reqErr.code, reqErr.message)
			return
		}
	}
	if up.inputPath == "" {
		fail(http.StatusBadRequest, codeInvalidRequest, "missing file part or source_url")
		return
	}

	metrics.AddUploadBytes(up.bytesIn)
	entry.Input = up.name
	entry.BytesIn = up.bytesIn

	format := up.format
	if format == "" {
		format = defaultFormat
	}
	entry.Target = format

	info, err := s.deps.Detector.Detect(up.inputPath)
	if err != nil {
		fail(http.StatusInternalServerError, codeConversionFailed, fmt.Sprintf("type detection failed: %v", err))
		return
	}
	entry.MIMEType = info.MIMEType
	if !info.Allowed {
		fail(http.StatusUnsupportedMediaType, codeUnsupportedMedia, info.Description)
		return
	}

	route := s.deps.Detector.RouteFor(info, format)
	entry.Kind = route.String()
	if err := checkRouteFormat(route, format); err != nil {
		fail(http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	log.Info().
		Str("kind", entry.Kind).
		Str("input", up.name).
		Str("mime", info.MIMEType).
		Str("target", format).
		Int64("bytes", up.bytesIn).
		Msg("conversion admitted")

	outputPath := set.Allocate(format)
	var res converter.Result
	switch route {
	case filetype.RouteImage:
		res = s.deps.Images.Convert(up.inputPath, outputPath, format)
	case filetype.RouteRasterize:
		res = s.deps.Raster.RenderPage(up.inputPath, outputPath, format, 1)
	default:
		res = s.deps.Office.Convert(converter.Job{InputPath: up.inputPath, OutputPath: outputPath, Format: format})
	}
	metrics.ObserveConversion(entry.Kind, resultLabel(res.Success), res.Duration)

	if !res.Success {
		log.Error().Str("kind", entry.Kind).Str("input", up.name).Str("reason", res.Error).Msg("conversion failed")
		fail(http.StatusInternalServerError, codeConversionFailed, res.Error)
		return
	}

	outPath := res.OutputPath
	if outPath == "" {
		outPath = outputPath
	}
	outInfo, err := os.Stat(outPath)
	if err != nil {
		fail(http.StatusInternalServerError, codeConversionFailed, "converted file missing")
		return
	}
	metrics.AddOutputBytes(outInfo.Size())

	if err := s.sendFile(w, outPath, "application/octet-stream", downloadName(up.name, format)); err != nil {
		log.Error().Err(err).Str("path", outPath).Msg("result send failed")
		fail(http.StatusInternalServerError, codeConversionFailed, "converted file no longer available")
		return
	}

	entry.Outcome = "success"
	entry.BytesOut = outInfo.Size()
	entry.DurationMS = time.Since(start).Milliseconds()
	s.record(entry)

	// Response is out; cleanup happens off the request path.
	go set.Release()
}

// readConvertForm consumes the multipart stream, spooling the file part into
// the set and collecting the small text fields. The body is read exactly
// once, in whatever order the client sent its parts.
func (s *Server) readConvertForm(mr *multipart.Reader, set *tempfile.FileSet) (*convertUpload, error) {
	up := &convertUpload{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, badRequest("malformed multipart body")
		}

		switch part.FormName() {
		case "file":
			if up.inputPath != "" {
				part.Close()
				return nil, badRequest("duplicate file part")
			}
			ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(part.FileName())), ".")
			if ext == "" {
				ext = "bin"
			}
			dst := set.Allocate(ext)
			n, err := s.spool(dst, part)
			part.Close()
			if err != nil {
				return nil, uploadError(err, codeConversionFailed)
			}
			up.inputPath = dst
			up.bytesIn = n
			up.name = filepath.Base(part.FileName())
			if up.name == "." {
				up.name = "upload"
			}
		case "output_format":
			v, err := readField(part)
			part.Close()
			if err != nil {
				return nil, badRequest("unreadable output_format field")
			}
			up.format = strings.TrimPrefix(strings.ToLower(v), ".")
		case "source_url":
			v, err := readField(part)
			part.Close()
			if err != nil {
				return nil, badRequest("unreadable source_url field")
			}
			up.sourceURL = v
		default:
			_, _ = io.Copy(io.Discard, part)
			part.Close()
		}
	}
	return up, nil
}

// fetchSource resolves a source_url ref into the set in place of an upload.
// The remote size is unknown upfront, so the fixed-threshold admission runs
// again before the download starts.
func (s *Server) fetchSource(ctx context.Context, up *convertUpload, set *tempfile.FileSet) error {
	if s.deps.Fetcher == nil {
		return badRequest("remote sources are not enabled")
	}
	if err := s.deps.Gate.AdmitConvert(0); err != nil {
		metrics.IncAdmissionRejected("convert")
		return &requestError{status: http.StatusInsufficientStorage, code: codeInsufficientSpace, message: err.Error()}
	}

	u, err := url.Parse(up.sourceURL)
	if err != nil {
		return badRequest("invalid source_url")
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	if ext == "" {
		ext = "bin"
	}

	dst := set.Allocate(ext)
	n, err := s.deps.Fetcher.Fetch(ctx, up.sourceURL, dst)
	if err != nil {
		return badRequest(fmt.Sprintf("fetching source failed: %v", err))
	}

	up.inputPath = dst
	up.bytesIn = n
	up.name = path.Base(u.Path)
	if up.name == "" || up.name == "." || up.name == "/" {
		up.name = "download"
	}
	return nil
}

// checkRouteFormat rejects target formats a route cannot produce before any
// converter runs. Rasterize targets are image formats by construction.
func checkRouteFormat(route filetype.Route, format string) error {
	switch route {
	case filetype.RouteImage:
		if !converter.IsSupportedImageFormat(format) {
			return fmt.Errorf("target format %q is not supported for image inputs", format)
		}
	case filetype.RouteDocument:
		if !converter.IsSupportedFormat(format) {
			return fmt.Errorf("target format %q is not supported for document conversion", format)
		}
	}
	return nil
}

// asRequestError unwraps the taxonomy mapping from err, defaulting unknown
// failures to an internal error under failCode.
func asRequestError(err error, failCode string) *requestError {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}
	return &requestError{status: http.StatusInternalServerError, code: failCode, message: err.Error()}
}

// downloadName derives the attachment filename from the upload's name and
// the target format.
func downloadName(original, format string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "converted"
	}
	return base + "." + format
}
