// Package fingerprint computes stable content hashes over raw document
// bytes, used to deduplicate ingestion before any embedding cost is spent.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// blockSize bounds per-read memory so arbitrarily large files stream through.
const blockSize = 4096

// Sum streams r through the hash in fixed-size blocks and returns the digest
// as uppercase hex. Hashing raw bytes (not extracted text) means re-saving a
// document with identical content always fingerprints identically.
func Sum(r io.Reader) (string, error) {
	h := md5.New()
	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil))), nil
}

// SumFile computes the fingerprint of the file at path.
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Sum(f)
}

// SumBytes computes the fingerprint of an in-memory byte slice.
func SumBytes(b []byte) string {
	sum := md5.Sum(b)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
