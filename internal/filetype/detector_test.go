package filetype

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestDetectSniffsContentNotName(t *testing.T) {
	d := New()

	// PDF bytes behind a misleading name still detect as PDF.
	pdf := writeTemp(t, "totally-a-spreadsheet.xlsx", []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF"))
	info, err := d.Detect(pdf)
	require.NoError(t, err)
	require.Equal(t, "application/pdf", info.MIMEType)
	require.True(t, info.IsPDF())
	require.True(t, info.Allowed)
}

func TestDetectPlainText(t *testing.T) {
	d := New()
	p := writeTemp(t, "notes.txt", []byte("plain old text content\nwith two lines\n"))
	info, err := d.Detect(p)
	require.NoError(t, err)
	require.Equal(t, "text/plain; charset=utf-8", info.MIMEType)
	require.True(t, info.Allowed)
}

func TestDetectPNG(t *testing.T) {
	d := New()
	p := writeTemp(t, "pic.png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	info, err := d.Detect(p)
	require.NoError(t, err)
	require.Equal(t, "image/png", info.MIMEType)
	require.True(t, info.Allowed)
}

func TestDetectNarrowsZIPByExtension(t *testing.T) {
	d := New()

	p := filepath.Join(t.TempDir(), "report.docx")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<w:document/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	info, err := d.Detect(p)
	require.NoError(t, err)
	require.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", info.MIMEType)
	require.Equal(t, ".docx", info.Extension)
	require.True(t, info.Allowed)
}

func TestDetectRejectsUnknownBinary(t *testing.T) {
	d := New()
	p := writeTemp(t, "blob.bin", []byte{0x00, 0x01, 0x02, 0x03, 0xff, 0xfe, 0x00, 0x10})
	info, err := d.Detect(p)
	require.NoError(t, err)
	require.False(t, info.Allowed)
}

func TestRouteForPDFWithImageTarget(t *testing.T) {
	d := New()
	pdf := &Info{MIMEType: "application/pdf"}

	require.Equal(t, RouteRasterize, d.RouteFor(pdf, "png"))
	require.Equal(t, RouteRasterize, d.RouteFor(pdf, "jpg"))
	require.Equal(t, RouteRasterize, d.RouteFor(pdf, "JPEG"))
	// A pdf target on a pdf input is a document-suite job, not a render.
	require.Equal(t, RouteDocument, d.RouteFor(pdf, "pdf"))
}

func TestRouteForImages(t *testing.T) {
	d := New()
	img := &Info{MIMEType: "image/png"}
	require.Equal(t, RouteImage, d.RouteFor(img, "jpg"))
	require.Equal(t, RouteImage, d.RouteFor(img, "pdf"))
}

func TestRouteForTextGoesToDocumentSuite(t *testing.T) {
	d := New()
	txt := &Info{MIMEType: "text/plain; charset=utf-8"}
	require.Equal(t, RouteDocument, d.RouteFor(txt, "pdf"))

	docx := &Info{MIMEType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"}
	require.Equal(t, RouteDocument, d.RouteFor(docx, "pdf"))
}
