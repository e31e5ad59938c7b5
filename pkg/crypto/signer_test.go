package crypto

import (
	"errors"
	"testing"
)

func TestSignerRoundTrip(t *testing.T) {
	signer := NewSigner("test-secret", nil)
	body := []byte(`{"invoice_number":"INV-1"}`)

	sig := signer.SignSubmission("user-1", body)
	ok, err := signer.VerifySubmission("user-1", body, sig)
	if err != nil {
		t.Fatalf("VerifySubmission failed: %v", err)
	}
	if !ok {
		t.Error("Expected signature to verify")
	}
}

func TestSignerRejectsOtherSubmitter(t *testing.T) {
	signer := NewSigner("test-secret", nil)
	body := []byte(`{"invoice_number":"INV-1"}`)

	sig := signer.SignSubmission("user-1", body)
	ok, err := signer.VerifySubmission("user-2", body, sig)
	if ok {
		t.Error("Expected signature for another submitter to be rejected")
	}
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}
}

func TestSignerRejectsTamperedBody(t *testing.T) {
	signer := NewSigner("test-secret", nil)

	sig := signer.SignSubmission("user-1", []byte(`{"total_amount":100}`))
	if ok, _ := signer.VerifySubmission("user-1", []byte(`{"total_amount":1000}`), sig); ok {
		t.Error("Expected tampered body to be rejected")
	}
}

func TestSignerKnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	signer := NewSigner("Jefe", nil)
	got := signer.Sign([]byte("what do ya want for nothing?"))
	want := "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"
	if got != want {
		t.Errorf("Sign = %s, want %s", got, want)
	}
}
