package converter

import (
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

// MergePDFs concatenates the input documents into outputPath, preserving the
// order of inputPaths. Callers must have verified every input sniffs as PDF.
func MergePDFs(inputPaths []string, outputPath string) Result {
	startTime := time.Now()

	if len(inputPaths) == 0 {
		return failure(startTime, "no input files to merge")
	}

	if err := api.MergeCreateFile(inputPaths, outputPath, false, nil); err != nil {
		return failure(startTime, "pdf merge failed: %v", err)
	}

	if err := verifyOutput(outputPath); err != nil {
		return failure(startTime, "output verification failed: %v", err)
	}

	if n, err := api.PageCountFile(outputPath); err == nil {
		log.Info().
			Int("inputs", len(inputPaths)).
			Int("pages", n).
			Dur("duration", time.Since(startTime)).
			Msg("pdf merge successful")
	}

	return Result{Success: true, OutputPath: outputPath, Duration: time.Since(startTime)}
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	return api.PageCountFile(path)
}
