// Package checksum computes the algorithm-tagged content digests stored in the ledger.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
)

const (
	// Prefix tags every digest with its algorithm.
	Prefix = "sha256:"
	// Missing is the digest recorded for a file that does not exist.
	Missing = Prefix + "missing"
)

// Sum returns the tagged SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return Prefix + hex.EncodeToString(h[:])
}

// File streams the file at path through SHA-256. A missing file yields
// Missing together with an error satisfying errors.Is(err, fs.ErrNotExist).
func File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Missing, 0, err
		}
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return Prefix + hex.EncodeToString(h.Sum(nil)), n, nil
}
