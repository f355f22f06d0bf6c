package converter

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConvertRejectsInvalidFormat(t *testing.T) {
	lo := NewLibreOffice(1, time.Minute)

	for _, format := range []string{"", "pdf!", "../pdf", "a.b", "toolongformat"} {
		res := lo.Convert(Job{InputPath: "in.docx", OutputPath: "out", Format: format})
		require.False(t, res.Success, "format %q must be rejected", format)
		require.Contains(t, res.Error, "invalid target format")
	}
}

func TestConvertRejectsMissingAndEmptyInput(t *testing.T) {
	lo := NewLibreOffice(1, time.Minute)
	dir := t.TempDir()

	res := lo.Convert(Job{
		InputPath:  filepath.Join(dir, "missing.docx"),
		OutputPath: filepath.Join(dir, "out.pdf"),
		Format:     "pdf",
	})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "input validation failed")

	empty := filepath.Join(dir, "empty.docx")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	res = lo.Convert(Job{InputPath: empty, OutputPath: filepath.Join(dir, "out.pdf"), Format: "pdf"})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "input validation failed")
}

func TestExpectedOutputPath(t *testing.T) {
	require.Equal(t, filepath.Join("/work", "report.pdf"), expectedOutputPath("/uploads/report.docx", "/work", "pdf"))
	require.Equal(t, filepath.Join("/work", "noext.pdf"), expectedOutputPath("/uploads/noext", "/work", "pdf"))
}

func TestIsSupportedFormat(t *testing.T) {
	require.True(t, IsSupportedFormat("pdf"))
	require.True(t, IsSupportedFormat(".docx"))
	require.True(t, IsSupportedFormat("ODT"))
	require.False(t, IsSupportedFormat("exe"))
	require.False(t, IsSupportedFormat(""))
}

func TestConvertTextToPDF(t *testing.T) {
	if _, err := exec.LookPath("libreoffice"); err != nil {
		t.Skip("libreoffice not installed")
	}

	dir := t.TempDir()
	input := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(input, []byte("hello conversion\n"), 0o644))

	lo := NewLibreOffice(1, 2*time.Minute)
	res := lo.Convert(Job{
		InputPath:  input,
		OutputPath: filepath.Join(dir, "note-converted.pdf"),
		Format:     "pdf",
	})
	require.True(t, res.Success, res.Error)
	require.FileExists(t, res.OutputPath)

	n, err := PageCount(res.OutputPath)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 1)
}
