package imaging

import (
	"errors"
	"fmt"
	"strings"
)

// MaxUploadBytes is the upload ceiling: 700 KiB.
const MaxUploadBytes int64 = 700 * 1024

// Declared media types accepted at intake, with the extension each one
// is staged under.
var allowedTypes = map[string]string{
	"image/jpg":  "jpg",
	"image/jpeg": "jpg",
	"image/png":  "png",
}

var (
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrEmptyFile       = errors.New("empty file")
)

// Candidate describes an upload before any of its bytes are stored.
type Candidate struct {
	Name        string
	ContentType string
	Size        int64
}

// ValidationError is returned when a candidate is rejected. Cause is one
// of the Err* sentinels above and is matched by errors.Is.
type ValidationError struct {
	Cause  error
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// CheckIntake validates the declared media type and size.
func CheckIntake(c Candidate) error {
	if _, ok := allowedTypes[normalizeType(c.ContentType)]; !ok {
		return &ValidationError{
			Cause:  ErrUnsupportedType,
			Reason: fmt.Sprintf("media type %q is not allowed, use JPEG or PNG", c.ContentType),
		}
	}
	if c.Size > MaxUploadBytes {
		return &ValidationError{
			Cause:  ErrFileTooLarge,
			Reason: fmt.Sprintf("file is %d bytes, the limit is %d bytes", c.Size, MaxUploadBytes),
		}
	}
	if c.Size == 0 {
		return &ValidationError{Cause: ErrEmptyFile, Reason: "file is empty"}
	}
	return nil
}

// StagingExtension returns the extension a candidate is staged under.
func StagingExtension(contentType string) string {
	return allowedTypes[normalizeType(contentType)]
}

func normalizeType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
