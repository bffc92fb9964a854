package upload

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"lukechampine.com/blake3"
)

// DefaultExtension is used for analysis uploads whose file name carries none
const DefaultExtension = ".mp3"

var (
	// ErrUnsupportedType is returned for content types outside the allow list
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrTooLarge is returned when the upload exceeds the size limit
	ErrTooLarge = errors.New("file too large")
)

// Stored describes an upload written to disk
type Stored struct {
	Path        string
	Size        int64
	Fingerprint string // hex blake3-256 of the content
}

// Remove deletes the stored file
func (s *Stored) Remove() error {
	if s == nil || s.Path == "" {
		return nil
	}
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Validator checks uploads against the configured allow list and size limit
type Validator struct {
	allowed  map[string]struct{}
	maxBytes int64
}

// NewValidator creates a validator. maxBytes <= 0 disables the size check.
func NewValidator(allowedTypes []string, maxBytes int64) *Validator {
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[normalizeType(t)] = struct{}{}
	}
	return &Validator{allowed: allowed, maxBytes: maxBytes}
}

// MaxBytes returns the configured size limit
func (v *Validator) MaxBytes() int64 {
	return v.maxBytes
}

// CheckType rejects content types outside the allow list
func (v *Validator) CheckType(contentType string) error {
	if _, ok := v.allowed[normalizeType(contentType)]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return nil
}

// CheckSize rejects declared sizes above the limit
func (v *Validator) CheckSize(size int64) error {
	if v.maxBytes > 0 && size > v.maxBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, size, v.maxBytes)
	}
	return nil
}

// normalizeType drops parameters and case from a media type
func normalizeType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// Extension returns the extension to keep for an uploaded file name, or
// fallback when it has none
func Extension(filename, fallback string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || ext == "." {
		return fallback
	}
	return ext
}

// Save copies r into a new temporary file in dir named with ext and
// fingerprints the content on the way. Content beyond maxBytes fails with
// ErrTooLarge and leaves nothing behind.
func Save(r io.Reader, ext, dir string, maxBytes int64) (*Stored, error) {
	f, err := os.CreateTemp(dir, "upload-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	stored := &Stored{Path: f.Name()}
	h := blake3.New(32, nil)

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}

	n, err := io.Copy(io.MultiWriter(f, h), src)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && maxBytes > 0 && n > maxBytes {
		err = fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	if err != nil {
		_ = stored.Remove()
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}

	stored.Size = n
	stored.Fingerprint = hex.EncodeToString(h.Sum(nil))
	return stored, nil
}

// Fingerprint returns the hex blake3-256 digest of r
func Fingerprint(r io.Reader) (string, error) {
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("calculating blake3 hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
