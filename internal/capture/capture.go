package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrCancelled signals that the user abandoned the capture before an image
// was produced.
var ErrCancelled = errors.New("capture cancelled")

// Coordinator produces one still image per acquisition. Implementations own
// the device/file mechanics; the pipeline only sees JPEG bytes or a
// cancellation.
type Coordinator interface {
	// AcquireImage returns a JPEG-encoded still image, or ErrCancelled when
	// the user backed out.
	AcquireImage(ctx context.Context) ([]byte, error)
}

// FileCoordinator acquires an image from a path on disk, e.g. a file-picker
// result. Non-JPEG inputs (PNG, GIF, HEIC/HEIF, single-page PDF) are
// converted before they leave the coordinator.
type FileCoordinator struct {
	path string
}

// NewFileCoordinator creates a coordinator reading from path.
func NewFileCoordinator(path string) *FileCoordinator {
	return &FileCoordinator{path: path}
}

// AcquireImage reads and normalizes the file.
func (f *FileCoordinator) AcquireImage(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading image file: %w", err)
	}
	return ToJPEG(data, contentTypeForExt(filepath.Ext(f.path)))
}

// BytesCoordinator acquires an image from an already-uploaded body, such as a
// multipart form file.
type BytesCoordinator struct {
	data        []byte
	contentType string
}

// NewBytesCoordinator creates a coordinator around raw upload bytes.
func NewBytesCoordinator(data []byte, contentType string) *BytesCoordinator {
	return &BytesCoordinator{data: data, contentType: contentType}
}

// AcquireImage normalizes the held bytes.
func (b *BytesCoordinator) AcquireImage(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled
	}
	return ToJPEG(b.data, b.contentType)
}

func contentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}
