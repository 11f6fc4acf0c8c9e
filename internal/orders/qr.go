package orders

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// QRSigner mints and verifies pickup codes of the form "<orderID>.<hex token>"
// where the token is keyed BLAKE2b-256 over the order id and creation time.
type QRSigner struct {
	key []byte
}

func NewQRSigner(secret string) (*QRSigner, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("pickup qr secret required")
	}
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &QRSigner{key: key}, nil
}

// Token returns the hex token for the order. createdAt is truncated to
// microseconds so it survives a round trip through postgres.
func (s *QRSigner) Token(orderID uuid.UUID, createdAt time.Time) string {
	h, err := blake2b.New256(s.key)
	if err != nil {
		panic(err)
	}
	h.Write([]byte(orderID.String()))
	h.Write([]byte("|"))
	h.Write([]byte(createdAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

// Payload renders the string encoded in the pickup QR code.
func (s *QRSigner) Payload(orderID uuid.UUID, createdAt time.Time) string {
	return orderID.String() + "." + s.Token(orderID, createdAt)
}

// Parse splits a payload into order id and token without verifying it.
func (s *QRSigner) Parse(payload string) (uuid.UUID, string, error) {
	idPart, token, ok := strings.Cut(strings.TrimSpace(payload), ".")
	if !ok || token == "" {
		return uuid.Nil, "", errors.New("malformed pickup code")
	}
	orderID, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, "", errors.New("malformed pickup code")
	}
	return orderID, token, nil
}

// Verify compares token against the expected value in constant time.
func (s *QRSigner) Verify(orderID uuid.UUID, createdAt time.Time, token string) bool {
	expected := s.Token(orderID, createdAt)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(token))) == 1
}
