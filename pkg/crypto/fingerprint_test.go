package crypto

import (
	"crypto/sha256"
	"hash"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice_integrity/internal/domain"
)

func TestDigestPrimaryKnownVectors(t *testing.T) {
	engine := NewFingerprintEngine()

	tests := []struct {
		input string
		want  string
	}{
		{"", "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
		{"abc", "0x4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			fp := engine.Digest([]byte(tt.input))
			assert.Equal(t, domain.FingerprintPrimary, fp.Algorithm)
			assert.Equal(t, tt.want, fp.String())
		})
	}
}

func TestDigestFallsBackWhenPrimaryUnavailable(t *testing.T) {
	engine := NewFingerprintEngine(WithPrimaryHash(nil))

	fp := engine.Digest([]byte("abc"))
	assert.Equal(t, domain.FingerprintFallback, fp.Algorithm)
	assert.Equal(t, "sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", fp.String())
	assert.False(t, fp.IsPrimary())

	_, err := fp.Word()
	assert.ErrorIs(t, err, domain.ErrNotLedgerNative)
}

func TestDigestFallsBackOnWrongImplementation(t *testing.T) {
	// SHA-256 posing as Keccak fails the known-answer check.
	engine := NewFingerprintEngine(WithPrimaryHash(sha256.New))
	assert.Equal(t, domain.FingerprintFallback, engine.Algorithm())
}

func TestDigestFallsBackOnPanickingImplementation(t *testing.T) {
	engine := NewFingerprintEngine(WithPrimaryHash(func() hash.Hash {
		panic("no keccak in this build")
	}))
	assert.Equal(t, domain.FingerprintFallback, engine.Algorithm())
	assert.True(t, strings.HasPrefix(engine.Digest([]byte("x")).String(), "sha256:"))
}

func TestProbeRunsOnce(t *testing.T) {
	var calls int
	var mu sync.Mutex
	counting := func() hash.Hash {
		mu.Lock()
		calls++
		mu.Unlock()
		return sha256.New()
	}
	engine := NewFingerprintEngine(WithPrimaryHash(counting))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.Digest([]byte("payload"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
}

func TestFallbackNeverEqualsPrimary(t *testing.T) {
	primary := NewFingerprintEngine().Digest([]byte("abc"))
	fallback := NewFingerprintEngine(WithPrimaryHash(nil)).Digest([]byte("abc"))

	assert.False(t, primary.Equal(fallback))
	assert.False(t, fallback.Equal(primary))

	sameDigest := domain.Fingerprint{Algorithm: domain.FingerprintFallback, Digest: primary.Digest}
	assert.False(t, primary.Equal(sameDigest))
}

func TestFingerprintInvoiceDeterministic(t *testing.T) {
	view := domain.InvoiceView{
		ID:            "0190a1b2-0000-7000-8000-000000000002",
		SubmitterID:   "user-7",
		ClientName:    "Acme",
		ClientEmail:   "billing@acme.test",
		InvoiceNumber: "A-1",
		Items: []domain.LineItem{
			{Description: "Widget", Quantity: domain.MustParseAmount("3"), UnitPrice: domain.MustParseAmount("10")},
		},
		Total:     domain.MustParseAmount("30"),
		DueDate:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
	}

	first, data, err := NewFingerprintEngine().FingerprintInvoice(view)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	second, _, err := NewFingerprintEngine().FingerprintInvoice(view)
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	assert.Len(t, first.Digest, 64)

	view.Total = domain.MustParseAmount("31")
	changed, _, err := NewFingerprintEngine().FingerprintInvoice(view)
	require.NoError(t, err)
	assert.False(t, first.Equal(changed))
}
