package converter

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	// Register decoders for the formats uploads arrive in.
	_ "golang.org/x/image/webp"
)

// ImageEncoder re-encodes raster images between formats in process. An ask
// for a pdf target is delegated to pdfcpu's image import, which wraps the
// image into a single-page document.
type ImageEncoder struct {
	jpegQuality int
}

// NewImageEncoder returns an encoder writing JPEGs at the given quality.
func NewImageEncoder(jpegQuality int) *ImageEncoder {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 95
	}
	return &ImageEncoder{jpegQuality: jpegQuality}
}

// Convert re-encodes the image at inputPath into format at outputPath.
func (e *ImageEncoder) Convert(inputPath, outputPath, format string) Result {
	startTime := time.Now()
	target := strings.ToLower(strings.TrimPrefix(format, "."))

	log.Info().Str("input", inputPath).Str("format", target).Msg("starting image conversion")

	if target == "pdf" {
		if err := api.ImportImagesFile([]string{inputPath}, outputPath, nil, nil); err != nil {
			return failure(startTime, "image to pdf import failed: %v", err)
		}
		if err := verifyOutput(outputPath); err != nil {
			return failure(startTime, "output verification failed: %v", err)
		}
		return Result{Success: true, OutputPath: outputPath, Duration: time.Since(startTime)}
	}

	img, sourceFormat, err := decodeImageFile(inputPath)
	if err != nil {
		return failure(startTime, "image decode failed: %v", err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return failure(startTime, "failed to create output: %v", err)
	}

	switch target {
	case "jpg", "jpeg":
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: e.jpegQuality})
	case "png":
		err = png.Encode(out, img)
	case "gif":
		err = gif.Encode(out, img, nil)
	case "bmp":
		err = bmp.Encode(out, img)
	case "tif", "tiff":
		err = tiff.Encode(out, img, nil)
	default:
		out.Close()
		os.Remove(outputPath)
		return failure(startTime, "unsupported image target format: %q", format)
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

	log.Info().
		Str("source_format", sourceFormat).
		Str("target_format", target).
		Dur("duration", time.Since(startTime)).
		Msg("image conversion successful")

	return Result{Success: true, OutputPath: outputPath, Duration: time.Since(startTime)}
}

func decodeImageFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	return image.Decode(f)
}

// SupportedImageFormats lists target formats the image route accepts.
func SupportedImageFormats() []string {
	return []string{"pdf", "jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff"}
}

// IsSupportedImageFormat checks if a target format is accepted for image
// re-encoding.
func IsSupportedImageFormat(format string) bool {
	f := strings.ToLower(strings.TrimPrefix(format, "."))
	for _, s := range SupportedImageFormats() {
		if f == s {
			return true
		}
	}
	return false
}
