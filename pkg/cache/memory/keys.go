package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/glyph-ai/glyph/pkg/apierror"
)

// ContentHash returns the SHA-256 of everything readable from r, hex
// encoded. Identical bytes under different paths produce the same key.
func ContentHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", apierror.Wrap(apierror.KindIO, err, "hashing file contents")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentHashFile hashes the file at path without loading it into memory.
func ContentHashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apierror.Wrap(apierror.KindIO, err, "opening %s for hashing", path)
	}
	defer f.Close()
	return ContentHash(f)
}
