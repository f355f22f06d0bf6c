package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Info contains detected file type information.
type Info struct {
	MIMEType    string
	Extension   string
	Allowed     bool
	Description string
}

// IsPDF reports whether the content sniffed as a PDF document.
func (i *Info) IsPDF() bool { return i.MIMEType == "application/pdf" }

// Route names the conversion path an input takes.
type Route int

const (
	// RouteDocument sends the file through the LibreOffice document suite.
	RouteDocument Route = iota
	// RouteImage re-encodes the image in process.
	RouteImage
	// RouteRasterize renders a PDF page to an image.
	RouteRasterize
)

func (r Route) String() string {
	switch r {
	case RouteImage:
		return "image"
	case RouteRasterize:
		return "pdf_render"
	default:
		return "document"
	}
}

// Detector handles file type detection using magic bytes.
type Detector struct{}

// New creates a new file type detector.
func New() *Detector {
	return &Detector{}
}

// Detect sniffs the actual file type from magic bytes, never the filename or
// a client-declared header.
func (d *Detector) Detect(filePath string) (*Info, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	mimeType := mtype.String()
	extension := mtype.Extension()

	log.Debug().Str("mime", mimeType).Str("ext", extension).Str("file", filePath).Msg("detected file type")

	// Modern Office formats are ZIP containers; narrow by extension so the
	// document route sees the concrete type.
	if mimeType == "application/zip" || strings.Contains(mimeType, "application/x-zip") {
		ext := strings.ToLower(filepath.Ext(filePath))

		switch ext {
		case ".docx":
			mimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
			extension = ".docx"
		case ".xlsx":
			mimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
			extension = ".xlsx"
		case ".pptx":
			mimeType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
			extension = ".pptx"
		case ".odt":
			mimeType = "application/vnd.oasis.opendocument.text"
			extension = ".odt"
		case ".ods":
			mimeType = "application/vnd.oasis.opendocument.spreadsheet"
			extension = ".ods"
		case ".odp":
			mimeType = "application/vnd.oasis.opendocument.presentation"
			extension = ".odp"
		default:
			log.Warn().Str("ext", ext).Msg("ZIP file with unrecognized extension")
		}

		if mimeType != "application/zip" {
			log.Debug().Str("original", mtype.String()).Str("override", mimeType).Msg("overriding ZIP detection based on extension")
		}
	}

	// Legacy Office formats share the OLE/CFB container.
	if mimeType == "application/x-ole-storage" || mimeType == "application/x-cfb" {
		ext := strings.ToLower(filepath.Ext(filePath))

		switch ext {
		case ".doc":
			mimeType = "application/msword"
			extension = ".doc"
		case ".xls":
			mimeType = "application/vnd.ms-excel"
			extension = ".xls"
		case ".ppt":
			mimeType = "application/vnd.ms-powerpoint"
			extension = ".ppt"
		default:
			log.Warn().Str("ext", ext).Msg("OLE storage with unrecognized extension")
		}

		if mimeType != "application/x-ole-storage" && mimeType != "application/x-cfb" {
			log.Debug().Str("original", mtype.String()).Str("override", mimeType).Msg("overriding OLE detection based on extension")
		}
	}

	info := &Info{
		MIMEType:  mimeType,
		Extension: extension,
	}
	d.classify(info)

	return info, nil
}

// classify applies the admission allow-list and a human description.
func (d *Detector) classify(info *Info) {
	mimeType := info.MIMEType

	switch {
	case mimeType == "application/pdf":
		info.Allowed = true
		info.Description = "PDF document"

	case strings.HasPrefix(mimeType, "image/"):
		info.Allowed = true
		info.Description = "Image file"

	case strings.HasPrefix(mimeType, "text/"):
		info.Allowed = true
		info.Description = "Text file"

	case mimeType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		mimeType == "application/msword":
		info.Allowed = true
		info.Description = "Microsoft Word document"

	case mimeType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		mimeType == "application/vnd.ms-excel":
		info.Allowed = true
		info.Description = "Microsoft Excel spreadsheet"

	case mimeType == "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		mimeType == "application/vnd.ms-powerpoint":
		info.Allowed = true
		info.Description = "Microsoft PowerPoint presentation"

	case strings.HasPrefix(mimeType, "application/vnd.oasis.opendocument."):
		info.Allowed = true
		info.Description = "OpenDocument file"

	case mimeType == "application/octet-stream":
		// The sniffer's fallback for bytes it cannot place. LibreOffice
		// cannot read what mimetype cannot name, so reject upfront.
		info.Allowed = false
		info.Description = "Unrecognized binary data"

	case strings.HasPrefix(mimeType, "application/"):
		// Broad allowance: anything else under application/ is handed to
		// LibreOffice, which rejects what it cannot read.
		info.Allowed = true
		info.Description = fmt.Sprintf("Application file: %s", mimeType)

	default:
		info.Allowed = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", mimeType)
	}
}

// RouteFor picks the conversion path for a detected input and requested
// target format. PDF inputs with an image target go to the rasterizer, a fix
// over routing everything application/* to the document suite; images are
// re-encoded in process; everything else goes through LibreOffice.
func (d *Detector) RouteFor(info *Info, targetFormat string) Route {
	target := strings.ToLower(strings.TrimPrefix(targetFormat, "."))

	if info.IsPDF() && isImageTarget(target) {
		return RouteRasterize
	}
	if strings.HasPrefix(info.MIMEType, "image/") {
		return RouteImage
	}
	return RouteDocument
}

func isImageTarget(target string) bool {
	switch target {
	case "png", "jpg", "jpeg":
		return true
	}
	return false
}
