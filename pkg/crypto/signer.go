package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
)

var ErrInvalidSignature = errors.New("invalid signature")

// Signer authenticates submission payloads with HMAC-SHA256.
type Signer struct {
	secretKey []byte
	logger    *slog.Logger
}

func NewSigner(secretKey string, logger *slog.Logger) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{
		secretKey: []byte(secretKey),
		logger:    logger,
	}
}

func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write(data)
	signature := mac.Sum(nil)
	return hex.EncodeToString(signature)
}

func (s *Signer) Verify(data []byte, signature string) (bool, error) {
	expectedSignature := s.Sign(data)

	if !hmac.Equal([]byte(expectedSignature), []byte(signature)) {
		s.logger.Warn("Signature verification failed",
			slog.Int("payload_bytes", len(data)))
		return false, ErrInvalidSignature
	}

	return true, nil
}

// SignSubmission binds a request body to the submitter that sent it.
func (s *Signer) SignSubmission(submitterID string, body []byte) string {
	return s.Sign(submissionData(submitterID, body))
}

func (s *Signer) VerifySubmission(submitterID string, body []byte, signature string) (bool, error) {
	return s.Verify(submissionData(submitterID, body), signature)
}

func submissionData(submitterID string, body []byte) []byte {
	data := make([]byte, 0, len(submitterID)+1+len(body))
	data = append(data, submitterID...)
	data = append(data, ':')
	return append(data, body...)
}
