package helpers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidQRData = errors.New("invalid QR data format")

// ConfirmationSigner produces and checks the payload encoded in a
// registration's confirmation QR code.
type ConfirmationSigner struct {
	secret []byte
}

func NewConfirmationSigner(secret string) *ConfirmationSigner {
	return &ConfirmationSigner{secret: []byte(secret)}
}

func (s *ConfirmationSigner) Signature(registrationID uuid.UUID, confirmationNumber string) string {
	data := fmt.Sprintf("%s:%s", registrationID.String(), confirmationNumber)
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// QRData is "registration:<id>;confirmation:<number>;signature:<hex>".
func (s *ConfirmationSigner) QRData(registrationID uuid.UUID, confirmationNumber string) string {
	return fmt.Sprintf("registration:%s;confirmation:%s;signature:%s",
		registrationID.String(),
		confirmationNumber,
		s.Signature(registrationID, confirmationNumber),
	)
}

// Verify parses qrData and checks its signature. It returns the embedded
// registration id and confirmation number only when the signature matches.
func (s *ConfirmationSigner) Verify(qrData string) (uuid.UUID, string, error) {
	parts := strings.Split(qrData, ";")
	if len(parts) != 3 ||
		!strings.HasPrefix(parts[0], "registration:") ||
		!strings.HasPrefix(parts[1], "confirmation:") ||
		!strings.HasPrefix(parts[2], "signature:") {
		return uuid.Nil, "", ErrInvalidQRData
	}

	registrationID, err := uuid.Parse(strings.TrimPrefix(parts[0], "registration:"))
	if err != nil {
		return uuid.Nil, "", ErrInvalidQRData
	}
	confirmationNumber := strings.TrimPrefix(parts[1], "confirmation:")
	signature := strings.TrimPrefix(parts[2], "signature:")

	expected := s.Signature(registrationID, confirmationNumber)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return uuid.Nil, "", fmt.Errorf("%w: signature mismatch", ErrInvalidQRData)
	}
	return registrationID, confirmationNumber, nil
}
