package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Signer authenticates uploaded batch payloads with HMAC-SHA256. The
// signature covers the raw bytes as received, before any parsing.
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

// Enabled reports whether a secret is configured. With no secret the signer
// accepts everything and SignBatch output is meaningless.
func (s *Signer) Enabled() bool {
	return len(s.secretKey) > 0
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
			slog.String("received", signature))
		return false, fmt.Errorf("invalid signature")
	}

	return true, nil
}

// SignBatch signs a whole batch payload.
func (s *Signer) SignBatch(payload []byte) string {
	return s.Sign(payload)
}

// VerifyBatch checks a batch payload against the signature presented with it.
// When no secret is configured every payload passes.
func (s *Signer) VerifyBatch(payload []byte, signature string) (bool, error) {
	if !s.Enabled() {
		return true, nil
	}
	return s.Verify(payload, signature)
}
