package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
)

var ErrInvalidSignature = errors.New("invalid signature")

// Signer produces HMAC-SHA256 signatures for rendered account statements so
// a holder can prove a statement came from this ledger unchanged.
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
		s.logger.Warn("Signature verification failed", slog.Int("payload_bytes", len(data)))
		return false, ErrInvalidSignature
	}

	return true, nil
}

// SignStatement binds the rendered statement body to the account and the
// moment it was generated.
func (s *Signer) SignStatement(accountNumber string, generatedAt int64, body []byte) string {
	return s.Sign(statementPayload(accountNumber, generatedAt, body))
}

func (s *Signer) VerifyStatement(accountNumber string, generatedAt int64, body []byte, signature string) (bool, error) {
	ok, err := s.Verify(statementPayload(accountNumber, generatedAt, body), signature)
	if err != nil {
		return false, fmt.Errorf("statement for %s: %w", accountNumber, err)
	}
	return ok, nil
}

func statementPayload(accountNumber string, generatedAt int64, body []byte) []byte {
	header := fmt.Sprintf("%s:%d:", accountNumber, generatedAt)
	return append([]byte(header), body...)
}
