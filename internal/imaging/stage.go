package imaging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Content types accepted after sniffing the staged bytes.
var sniffedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
}

// Stager writes uploads into a local staging directory. Files it returns
// have passed intake twice: once on the declared metadata and once on the
// bytes actually written.
type Stager struct {
	dir string
}

func NewStager(dir string) (*Stager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Stager{dir: dir}, nil
}

func (s *Stager) Dir() string {
	return s.dir
}

// Stage copies body into the staging directory. On any rejection the
// partially written file is removed before the error is returned.
func (s *Stager) Stage(ctx context.Context, c Candidate, body io.Reader) (string, error) {
	if err := CheckIntake(c); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s.%s", uuid.NewString(), StagingExtension(c.ContentType)))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(body, MaxUploadBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		purge(path)
		return "", fmt.Errorf("write staged file: %w", err)
	}

	if n > MaxUploadBytes {
		purge(path)
		return "", &ValidationError{
			Cause:  ErrFileTooLarge,
			Reason: fmt.Sprintf("file exceeds the limit of %d bytes", MaxUploadBytes),
		}
	}
	if n == 0 {
		purge(path)
		return "", &ValidationError{Cause: ErrEmptyFile, Reason: "file is empty"}
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		purge(path)
		return "", fmt.Errorf("sniff staged file: %w", err)
	}
	if _, ok := sniffedTypes[mt.String()]; !ok {
		purge(path)
		return "", &ValidationError{
			Cause:  ErrUnsupportedType,
			Reason: fmt.Sprintf("file content is %s, use JPEG or PNG", mt.String()),
		}
	}

	return path, nil
}

// Purge removes a staged or converted file that will not be published.
func (s *Stager) Purge(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func purge(path string) {
	_ = os.Remove(path)
}
