// Package credential turns plaintext passwords and one-time passwords into
// fixed-size digests and verifies candidates against stored digests.
package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// DigestSize is the length in bytes of every digest produced by a Codec.
const DigestSize = 32

// Supported algorithm names.
const (
	AlgorithmSHA256   = "sha256"
	AlgorithmArgon2ID = "argon2id"
)

// argon2id cost parameters.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

const minPepperLen = 8

var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// Codec hashes secrets deterministically. It is safe for concurrent use.
type Codec struct {
	algorithm string
	pepper    []byte
}

// NewCodec returns a codec for the named algorithm. argon2id uses pepper as
// its salt, so the same pepper must be configured for every run that reads
// the same store.
func NewCodec(algorithm string, pepper []byte) (*Codec, error) {
	switch algorithm {
	case AlgorithmSHA256:
		return &Codec{algorithm: algorithm}, nil
	case AlgorithmArgon2ID:
		if len(pepper) < minPepperLen {
			return nil, fmt.Errorf("argon2id pepper must be at least %d bytes", minPepperLen)
		}
		p := make([]byte, len(pepper))
		copy(p, pepper)
		return &Codec{algorithm: algorithm, pepper: p}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}

// Algorithm returns the configured algorithm name.
func (c *Codec) Algorithm() string { return c.algorithm }

// Hash returns the DigestSize-byte digest of plaintext.
func (c *Codec) Hash(plaintext string) []byte {
	if c.algorithm == AlgorithmArgon2ID {
		return argon2.IDKey([]byte(plaintext), c.pepper, argonTime, argonMemory, argonThreads, DigestSize)
	}
	sum := sha256.Sum256([]byte(plaintext))
	return sum[:]
}

// Verify reports whether plaintext hashes to digest. The comparison runs in
// constant time; malformed digests simply fail.
func (c *Codec) Verify(plaintext string, digest []byte) bool {
	if len(digest) != DigestSize {
		return false
	}
	return subtle.ConstantTimeCompare(c.Hash(plaintext), digest) == 1
}
