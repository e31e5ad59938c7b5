package domain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

type FingerprintAlgorithm string

const (
	// FingerprintPrimary is a Keccak-256 digest, the ledger-native form.
	FingerprintPrimary FingerprintAlgorithm = "primary"
	// FingerprintFallback is a SHA-256 digest produced when Keccak is unavailable.
	FingerprintFallback FingerprintAlgorithm = "fallback"
)

const (
	primaryPrefix  = "0x"
	fallbackPrefix = "sha256:"
)

var ErrNotLedgerNative = errors.New("fingerprint is not ledger-native")

type Fingerprint struct {
	Algorithm FingerprintAlgorithm `json:"algorithm"`
	Digest    string               `json:"digest"`
}

func NewFingerprint(algorithm FingerprintAlgorithm, sum []byte) Fingerprint {
	return Fingerprint{Algorithm: algorithm, Digest: hex.EncodeToString(sum)}
}

// ParseFingerprint decodes the tagged string form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	switch {
	case strings.HasPrefix(s, fallbackPrefix):
		f = Fingerprint{Algorithm: FingerprintFallback, Digest: strings.TrimPrefix(s, fallbackPrefix)}
	case strings.HasPrefix(s, primaryPrefix):
		f = Fingerprint{Algorithm: FingerprintPrimary, Digest: strings.TrimPrefix(s, primaryPrefix)}
	default:
		return Fingerprint{}, fmt.Errorf("unrecognised fingerprint encoding %q", s)
	}

	raw, err := hex.DecodeString(f.Digest)
	if err != nil || len(raw) != 32 {
		return Fingerprint{}, fmt.Errorf("malformed fingerprint digest %q", s)
	}
	f.Digest = strings.ToLower(f.Digest)
	return f, nil
}

func (f Fingerprint) String() string {
	if f.Algorithm == FingerprintFallback {
		return fallbackPrefix + f.Digest
	}
	return primaryPrefix + f.Digest
}

func (f Fingerprint) IsPrimary() bool {
	return f.Algorithm == FingerprintPrimary
}

// Equal never matches fingerprints of different algorithms.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Algorithm == other.Algorithm && f.Digest == other.Digest
}

// Word returns the 32-byte digest for ledger submission. Only primary
// fingerprints are accepted.
func (f Fingerprint) Word() ([32]byte, error) {
	var word [32]byte
	if !f.IsPrimary() {
		return word, fmt.Errorf("%w: %s", ErrNotLedgerNative, f.Algorithm)
	}

	raw, err := hex.DecodeString(f.Digest)
	if err != nil {
		return word, fmt.Errorf("decode digest: %w", err)
	}
	if len(raw) != len(word) {
		return word, fmt.Errorf("digest length %d, want %d", len(raw), len(word))
	}
	copy(word[:], raw)
	return word, nil
}
