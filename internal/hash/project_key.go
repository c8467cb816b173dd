// Package hash derives stable identifiers for projects so that shared cache
// backends can store one record per working directory.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// ProjectKey returns the hex SHA-256 digest of the cleaned absolute form of
// dir. Two spellings of the same directory produce the same key.
func ProjectKey(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}
	return Digest([]byte(filepath.ToSlash(filepath.Clean(abs)))), nil
}

// Digest hashes data and returns the hex encoding.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
