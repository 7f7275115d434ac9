package blob

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// UploadConfig configures image upload validation
type UploadConfig struct {
	MaxFileSize  int64    // Maximum size per file (in bytes)
	AllowedTypes []string // Allowed MIME types, matched against the sniffed content
}

// DefaultUploadConfig returns the photo upload limits
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		MaxFileSize:  10 << 20,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
	}
}

// Upload is a validated file waiting to be stored
type Upload struct {
	Filename    string
	Size        int64
	ContentType string
	Ext         string

	open func() (io.ReadCloser, error)
}

// Open returns a fresh reader over the upload contents
func (u *Upload) Open() (io.ReadCloser, error) {
	return u.open()
}

// Uploader validates incoming files
type Uploader struct {
	config UploadConfig
}

// NewUploader creates an uploader with config
func NewUploader(config UploadConfig) *Uploader {
	return &Uploader{config: config}
}

// MaxFileSize returns the configured per-file limit
func (u *Uploader) MaxFileSize() int64 {
	return u.config.MaxFileSize
}

// FromRequest reads the file in field from a multipart request
func (u *Uploader) FromRequest(r *http.Request, field string) (*Upload, error) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(u.config.MaxFileSize + 1<<20); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return nil, ErrTooLarge
			}
			return nil, fmt.Errorf("parsing multipart form: %w", err)
		}
	}

	_, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, ErrMissingFile
		}
		return nil, fmt.Errorf("reading form file: %w", err)
	}

	return u.inspect(header.Filename, header.Size, func() (io.ReadCloser, error) {
		return openHeader(header)
	})
}

// FromBytes validates an in-memory file, e.g. one referenced by a seed file
func (u *Uploader) FromBytes(filename string, data []byte) (*Upload, error) {
	return u.inspect(filename, int64(len(data)), func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

func (u *Uploader) inspect(filename string, size int64, open func() (io.ReadCloser, error)) (*Upload, error) {
	if size == 0 {
		return nil, ErrEmpty
	}
	if u.config.MaxFileSize > 0 && size > u.config.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds maximum of %d", ErrTooLarge, size, u.config.MaxFileSize)
	}

	rc, err := open()
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	defer rc.Close()

	mt, err := mimetype.DetectReader(rc)
	if err != nil {
		return nil, fmt.Errorf("detecting upload type: %w", err)
	}
	if len(u.config.AllowedTypes) > 0 && !mimetype.EqualsAny(mt.String(), u.config.AllowedTypes...) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}

	return &Upload{
		Filename:    filename,
		Size:        size,
		ContentType: mt.String(),
		Ext:         mt.Extension(),
		open:        open,
	}, nil
}

func openHeader(h *multipart.FileHeader) (io.ReadCloser, error) {
	f, err := h.Open()
	if err != nil {
		return nil, err
	}
	return f, nil
}

// CarsPrefix is the key prefix shared by every car photo
const CarsPrefix = "cars/"

// ImageKey returns a fresh key for a photo of carID
func ImageKey(carID, imageID uuid.UUID, ext string) string {
	return fmt.Sprintf("%s%s/%s%s", CarsPrefix, carID, imageID, ext)
}

// CarPrefix is the key prefix of every photo of carID
func CarPrefix(carID uuid.UUID) string {
	return fmt.Sprintf("%s%s/", CarsPrefix, carID)
}
