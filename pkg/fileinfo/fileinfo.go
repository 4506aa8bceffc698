// Package fileinfo validates input files before any network activity.
//
// Validation is deliberately strict: format is determined from magic
// bytes, not the extension, and password-protected PDFs are rejected up
// front so the API never sees a document it cannot process.
package fileinfo

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/glyph-ai/glyph/pkg/apierror"
)

// File is a validated, readable input file.
type File struct {
	Path     string
	Size     int64
	MIMEType string
}

var extMIME = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// Stat validates the file at path and returns its metadata. maxSize is
// the configured upper bound in bytes.
func Stat(path string, maxSize int64) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindIO, err, "cannot access %s", path)
	}
	if info.IsDir() {
		return nil, apierror.New(apierror.KindValidation, "%s is a directory, not a file", path)
	}
	if info.Size() == 0 {
		return nil, apierror.New(apierror.KindValidation, "%s is empty", path)
	}
	if info.Size() > maxSize {
		return nil, apierror.New(apierror.KindValidation,
			"file size (%.2f MB) exceeds maximum allowed size (%.0f MB)",
			float64(info.Size())/(1024*1024), float64(maxSize)/(1024*1024))
	}

	mimeType, ok := extMIME[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, apierror.New(apierror.KindValidation,
			"unsupported file format %q: supported extensions are pdf, png, jpg, jpeg", filepath.Ext(path))
	}

	f := &File{Path: path, Size: info.Size(), MIMEType: mimeType}
	if err := f.checkContent(); err != nil {
		return nil, err
	}
	return f, nil
}

// Name returns the base filename sent to the API.
func (f *File) Name() string {
	return filepath.Base(f.Path)
}

// Open returns a fresh read handle on the file.
func (f *File) Open() (*os.File, error) {
	h, err := os.Open(f.Path)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindIO, err, "opening %s", f.Path)
	}
	return h, nil
}

// checkContent verifies the magic bytes match a supported format and
// rejects password-protected PDFs.
func (f *File) checkContent() error {
	h, err := f.Open()
	if err != nil {
		return err
	}
	defer h.Close()

	head := make([]byte, 8)
	n, err := io.ReadFull(h, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return apierror.Wrap(apierror.KindIO, err, "reading %s", f.Path)
	}
	if n < 4 {
		return apierror.New(apierror.KindValidation, "%s is too small to determine its format", f.Path)
	}

	switch {
	case bytes.HasPrefix(head, []byte("%PDF")):
		return f.checkPDFEncryption(h)
	case bytes.HasPrefix(head, []byte{0x89, 'P', 'N', 'G'}):
		return nil
	case bytes.HasPrefix(head, []byte{0xFF, 0xD8, 0xFF}):
		return nil
	default:
		return apierror.New(apierror.KindValidation,
			"%s does not appear to be a valid PDF, PNG, or JPEG file", f.Path)
	}
}

// checkPDFEncryption scans the head of the document for an encryption
// dictionary. h is already positioned past the magic bytes. The full
// window is read even if the reader returns it in short chunks.
func (f *File) checkPDFEncryption(h io.Reader) error {
	head := make([]byte, 8192)
	n, err := io.ReadFull(h, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return apierror.Wrap(apierror.KindIO, err, "reading %s", f.Path)
	}
	if bytes.Contains(head[:n], []byte("/Encrypt")) {
		return apierror.New(apierror.KindValidation,
			"%s is a password-protected PDF; provide an unprotected file", f.Path)
	}
	return nil
}
