package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Algorithm names a supported 256-bit content digest.
type Algorithm string

const (
	SHA256     Algorithm = "sha256"
	BLAKE2b256 Algorithm = "blake2b-256"

	// DigestLength is the hex length of every supported digest.
	DigestLength = 64
)

var validAlgorithms = map[Algorithm]struct{}{
	SHA256:     {},
	BLAKE2b256: {},
}

// ParseAlgorithm normalizes raw into a supported algorithm. Empty means sha256.
func ParseAlgorithm(raw string) (Algorithm, error) {
	value := Algorithm(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return SHA256, nil
	}
	if _, ok := validAlgorithms[value]; !ok {
		return "", fmt.Errorf("unsupported hash algorithm: %s", value)
	}
	return value, nil
}

// New returns a fresh hash for alg.
func New(alg Algorithm) (hash.Hash, error) {
	switch alg {
	case SHA256, "":
		return sha256.New(), nil
	case BLAKE2b256:
		return blake2b.New256(nil)
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", alg)
	}
}

// Sum reads r to EOF and returns its hex digest and length.
func Sum(alg Algorithm, r io.Reader) (string, int64, error) {
	h, err := New(alg)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ValidateDigest returns the lowercase form of raw if it is a 64-character hex digest.
func ValidateDigest(raw string) (string, error) {
	digest := strings.ToLower(strings.TrimSpace(raw))
	if len(digest) != DigestLength {
		return "", fmt.Errorf("digest must be %d hex characters", DigestLength)
	}
	for _, r := range digest {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", fmt.Errorf("digest must be lowercase hex")
		}
	}
	return digest, nil
}
