package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"sync"

	"golang.org/x/crypto/sha3"

	"invoice_integrity/internal/domain"
	"invoice_integrity/pkg/canonical"
)

// keccakEmpty is Keccak-256 of the empty input, used to verify the primary
// implementation before trusting it.
const keccakEmpty = "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"

type HashFunc func() hash.Hash

// FingerprintEngine derives content fingerprints. The primary Keccak-256
// implementation is probed once; if it is missing or produces a wrong answer
// every digest for the rest of the process is SHA-256, tagged as fallback.
type FingerprintEngine struct {
	primary HashFunc
	logger  *slog.Logger

	once      sync.Once
	algorithm domain.FingerprintAlgorithm
}

type EngineOption func(*FingerprintEngine)

// WithPrimaryHash replaces the Keccak-256 constructor. A nil function marks
// the primary algorithm as unavailable.
func WithPrimaryHash(fn HashFunc) EngineOption {
	return func(e *FingerprintEngine) {
		e.primary = fn
	}
}

func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *FingerprintEngine) {
		e.logger = logger
	}
}

func NewFingerprintEngine(opts ...EngineOption) *FingerprintEngine {
	e := &FingerprintEngine{
		primary: sha3.NewLegacyKeccak256,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Algorithm reports which digest the engine produces, running the probe on
// first use.
func (e *FingerprintEngine) Algorithm() domain.FingerprintAlgorithm {
	e.once.Do(e.probe)
	return e.algorithm
}

func (e *FingerprintEngine) Digest(data []byte) domain.Fingerprint {
	if e.Algorithm() == domain.FingerprintPrimary {
		h := e.primary()
		h.Write(data)
		return domain.NewFingerprint(domain.FingerprintPrimary, h.Sum(nil))
	}

	sum := sha256.Sum256(data)
	return domain.NewFingerprint(domain.FingerprintFallback, sum[:])
}

// FingerprintInvoice serializes the view canonically and digests the result.
func (e *FingerprintEngine) FingerprintInvoice(view domain.InvoiceView) (domain.Fingerprint, []byte, error) {
	data, err := canonical.SerializeInvoice(view)
	if err != nil {
		return domain.Fingerprint{}, nil, fmt.Errorf("serialize invoice %s: %w", view.ID, err)
	}
	return e.Digest(data), data, nil
}

func (e *FingerprintEngine) probe() {
	e.algorithm = domain.FingerprintFallback

	if e.primary == nil {
		e.logger.Warn("Keccak-256 unavailable, fingerprints will use SHA-256 fallback")
		return
	}

	sum, err := knownAnswer(e.primary)
	if err != nil {
		e.logger.Warn("Keccak-256 probe failed, fingerprints will use SHA-256 fallback",
			slog.String("error", err.Error()))
		return
	}

	want, _ := hex.DecodeString(keccakEmpty)
	if !bytes.Equal(sum, want) {
		e.logger.Warn("Keccak-256 probe returned unexpected digest, fingerprints will use SHA-256 fallback",
			slog.String("digest", hex.EncodeToString(sum)))
		return
	}

	e.algorithm = domain.FingerprintPrimary
	e.logger.Info("Fingerprint engine ready", slog.String("algorithm", string(e.algorithm)))
}

func knownAnswer(fn HashFunc) (sum []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hash constructor panicked: %v", r)
		}
	}()

	h := fn()
	if h == nil {
		return nil, fmt.Errorf("hash constructor returned nil")
	}
	return h.Sum(nil), nil
}
