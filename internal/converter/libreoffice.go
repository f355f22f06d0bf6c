// Package converter holds the conversion backends: the LibreOffice document
// suite, in-process image re-encoding, PDF page rasterization and PDF merge.
// Every backend writes into a caller-provided path inside the request's temp
// directory and verifies its output before reporting success.
package converter

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// formatRe bounds what is spliced into the libreoffice command line. Target
// formats are plain lowercase extensions like pdf, docx or odt.
var formatRe = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

// LibreOffice converts documents by shelling out to a headless libreoffice.
// Each conversion runs as a one-shot process with a private user profile, so
// parallel invocations cannot trip over the profile lock.
type LibreOffice struct {
	maxWorkers int
	timeout    time.Duration
	semaphore  chan struct{}
}

// Job represents a document conversion job.
type Job struct {
	InputPath  string
	OutputPath string
	Format     string
	Timeout    time.Duration
}

// Result represents the result of a conversion operation.
type Result struct {
	Success    bool
	OutputPath string
	Error      string
	Duration   time.Duration
}

func failure(start time.Time, format string, args ...any) Result {
	return Result{
		Error:    fmt.Sprintf(format, args...),
		Duration: time.Since(start),
	}
}

// NewLibreOffice creates a converter bounded to maxWorkers concurrent
// processes. timeout applies to jobs that do not carry their own.
func NewLibreOffice(maxWorkers int, timeout time.Duration) *LibreOffice {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &LibreOffice{
		maxWorkers: maxWorkers,
		timeout:    timeout,
		semaphore:  make(chan struct{}, maxWorkers),
	}
}

// CheckInstallation verifies libreoffice is in PATH and returns its version.
func (l *LibreOffice) CheckInstallation() (string, error) {
	cmd := exec.Command("libreoffice", "--version")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("LibreOffice not found in PATH: %w", err)
	}
	version := strings.TrimSpace(string(output))
	log.Info().Str("version", version).Msg("LibreOffice found")
	return version, nil
}

// Convert converts a document to the job's target format.
func (l *LibreOffice) Convert(job Job) Result {
	startTime := time.Now()

	format := strings.ToLower(strings.TrimPrefix(job.Format, "."))
	if !formatRe.MatchString(format) {
		return failure(startTime, "invalid target format: %q", job.Format)
	}

	if err := l.validateInput(job.InputPath); err != nil {
		return failure(startTime, "input validation failed: %v", err)
	}

	// Bound concurrent LibreOffice processes
	l.semaphore <- struct{}{}
	defer func() { <-l.semaphore }()

	log.Info().Str("input", job.InputPath).Str("format", format).Msg("starting document conversion")

	// Private profile dir keeps parallel one-shot invocations independent
	profileDir := filepath.Join(os.TempDir(), fmt.Sprintf("libreoffice_profile_%s", uuid.New().String()))
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return failure(startTime, "failed to create profile directory: %v", err)
	}
	defer os.RemoveAll(profileDir)

	outputDir := filepath.Dir(job.OutputPath)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return failure(startTime, "failed to create output directory: %v", err)
	}

	cmd := exec.Command(
		"libreoffice",
		fmt.Sprintf("-env:UserInstallation=file://%s", profileDir),
		"--headless",
		"--convert-to", format,
		"--outdir", outputDir,
		job.InputPath,
	)

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = l.timeout
	}

	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("LibreOffice command")

	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		return failure(startTime, "failed to start libreoffice: %v", err)
	}
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			return failure(startTime, "conversion failed: %v", err)
		}
	case <-time.After(timeout):
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		<-done
		return failure(startTime, "conversion timeout after %v", timeout)
	}

	// LibreOffice names the output after the input file; rename to the
	// reserved path when they differ.
	expectedOutput := expectedOutputPath(job.InputPath, outputDir, format)
	actualOutput := job.OutputPath

	if expectedOutput != actualOutput {
		if _, err := os.Stat(expectedOutput); err == nil {
			if err := os.Rename(expectedOutput, actualOutput); err != nil {
				log.Warn().Err(err).Str("from", expectedOutput).Str("to", actualOutput).Msg("failed to rename")
				actualOutput = expectedOutput
			}
		}
	}

	if err := verifyOutput(actualOutput); err != nil {
		return failure(startTime, "output verification failed: %v", err)
	}

	log.Info().Str("output", actualOutput).Dur("duration", time.Since(startTime)).Msg("document conversion successful")

	return Result{
		Success:    true,
		OutputPath: actualOutput,
		Duration:   time.Since(startTime),
	}
}

// validateInput checks if the input file is readable
func (l *LibreOffice) validateInput(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file")
	}

	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("file not readable: %w", err)
	}
	file.Close()

	return nil
}

// verifyOutput requires the output to exist and carry bytes. LibreOffice
// exits zero on some failed conversions, so presence of the file is the
// authoritative signal.
func verifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output file not created: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output file is empty")
	}
	return nil
}

// expectedOutputPath calculates the path where LibreOffice will create the
// output file.
func expectedOutputPath(inputPath, outputDir, format string) string {
	baseName := filepath.Base(inputPath)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	return filepath.Join(outputDir, nameWithoutExt+"."+format)
}

// SupportedFormats lists target formats the document route accepts. The set
// mirrors what a stock LibreOffice install exports.
func SupportedFormats() []string {
	return []string{
		"pdf", "doc", "docx", "rtf", "odt", "txt", "html",
		"xls", "xlsx", "ods", "csv",
		"ppt", "pptx", "odp",
	}
}

// IsSupportedFormat checks if a target format is accepted for document
// conversions.
func IsSupportedFormat(format string) bool {
	f := strings.ToLower(strings.TrimPrefix(format, "."))
	for _, s := range SupportedFormats() {
		if f == s {
			return true
		}
	}
	return false
}
