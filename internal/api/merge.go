package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/fileconverter/internal/metrics"
	"github.com/local/fileconverter/internal/store"
)

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	if err := s.deps.Gate.AdmitMerge(r.ContentLength); err != nil {
		metrics.IncAdmissionRejected("merge")
		s.record(store.Entry{Kind: "merge", Outcome: codeInsufficientSpace})
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
		writeError(w, http.StatusInternalServerError, codeMergeFailed, "temp storage unavailable")
		return
	}

	entry := store.Entry{Kind: "merge", Target: "pdf"}
	fail := func(status int, code, message string) {
		entry.Outcome = code
		entry.DurationMS = time.Since(start).Milliseconds()
		s.record(entry)
		set.Release()
		writeError(w, status, code, message)
	}

	// Spool the parts in stream order; that order is the merge order.
	var inputs []string
	var names []string
	var bytesIn int64
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			fail(http.StatusBadRequest, codeInvalidRequest, "malformed multipart body")
			return
		}
		if part.FormName() != "files" {
			_, _ = io.Copy(io.Discard, part)
			part.Close()
			continue
		}

		if err := s.deps.Gate.AdmitMergePart(); err != nil {
			part.Close()
			metrics.IncAdmissionRejected("merge")
			fail(http.StatusInsufficientStorage, codeInsufficientSpace, err.Error())
			return
		}

		dst := set.Allocate("pdf")
		n, err := s.spool(dst, part)
		part.Close()
		if err != nil {
			reqErr := uploadError(err, codeMergeFailed)
			fail(reqErr.status, reqErr.code, reqErr.message)
			return
		}
		bytesIn += n
		inputs = append(inputs, dst)
		if fn := part.FileName(); fn != "" {
			names = append(names, filepath.Base(fn))
		}
	}

	if len(inputs) == 0 {
		fail(http.StatusBadRequest, codeInvalidRequest, "no files parts in request")
		return
	}
	metrics.AddUploadBytes(bytesIn)
	entry.Input = strings.Join(names, ", ")
	entry.BytesIn = bytesIn

	// Every part must really be a PDF; the declared part headers are not
	// trusted. One bad part rejects the whole request.
	for i, p := range inputs {
		info, err := s.deps.Detector.Detect(p)
		if err != nil {
			fail(http.StatusInternalServerError, codeMergeFailed, fmt.Sprintf("type detection failed: %v", err))
			return
		}
		if !info.IsPDF() {
			fail(http.StatusUnsupportedMediaType, codeUnsupportedMedia,
				fmt.Sprintf("part %d is %s, only PDF files can be merged", i+1, info.MIMEType))
			return
		}
	}
	entry.MIMEType = "application/pdf"

	log.Info().Int("parts", len(inputs)).Int64("bytes", bytesIn).Msg("merge admitted")

	outputPath := set.Allocate("pdf")
	res := s.deps.Merge(inputs, outputPath)
	metrics.ObserveConversion("merge", resultLabel(res.Success), res.Duration)

	if !res.Success {
		log.Error().Int("parts", len(inputs)).Str("reason", res.Error).Msg("merge failed")
		fail(http.StatusInternalServerError, codeMergeFailed, res.Error)
		return
	}

	outInfo, err := os.Stat(outputPath)
	if err != nil {
		fail(http.StatusInternalServerError, codeMergeFailed, "merged file missing")
		return
	}
	metrics.AddOutputBytes(outInfo.Size())

	if err := s.sendFile(w, outputPath, "application/pdf", "merged.pdf"); err != nil {
		log.Error().Err(err).Str("path", outputPath).Msg("result send failed")
		fail(http.StatusInternalServerError, codeMergeFailed, "merged file no longer available")
		return
	}

	entry.Outcome = "success"
	entry.BytesOut = outInfo.Size()
	entry.DurationMS = time.Since(start).Milliseconds()
	s.record(entry)

	go set.Release()
}
