package converter

import (
	"image/jpeg"
	"image/png"
	"os"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// PDFRenderer rasterizes PDF pages to images through MuPDF.
type PDFRenderer struct {
	dpi         int
	jpegQuality int
}

// NewPDFRenderer renders at the given DPI, encoding JPEGs at quality.
func NewPDFRenderer(dpi, jpegQuality int) *PDFRenderer {
	if dpi <= 0 {
		dpi = 150
	}
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 95
	}
	return &PDFRenderer{dpi: dpi, jpegQuality: jpegQuality}
}

// RenderPage renders one page (1-based) of the PDF at inputPath into an
// image file at outputPath. Supported targets are png, jpg and jpeg.
func (r *PDFRenderer) RenderPage(inputPath, outputPath, format string, page int) Result {
	startTime := time.Now()
	target := strings.ToLower(strings.TrimPrefix(format, "."))

	doc, err := fitz.New(inputPath)
	if err != nil {
		return failure(startTime, "failed to open PDF: %v", err)
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return failure(startTime, "page %d out of range, document has %d pages", page, doc.NumPage())
	}

	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(page-1, float64(r.dpi))
	if err != nil {
		return failure(startTime, "failed to render page %d: %v", page, err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return failure(startTime, "failed to create output: %v", err)
	}

	switch target {
	case "png":
		err = png.Encode(out, img)
	case "jpg", "jpeg":
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: r.jpegQuality})
	default:
		out.Close()
		os.Remove(outputPath)
		return failure(startTime, "unsupported render target format: %q", format)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outputPath)
		return failure(startTime, "image encode failed: %v", err)
	}

	if err := verifyOutput(outputPath); err != nil {
		return failure(startTime, "output verification failed: %v", err)
	}

	bounds := img.Bounds()
	log.Info().
		Int("page", page).
		Int("dpi", r.dpi).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Dur("duration", time.Since(startTime)).
		Msg("pdf page rendered")

	return Result{Success: true, OutputPath: outputPath, Duration: time.Since(startTime)}
}
