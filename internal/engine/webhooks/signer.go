package webhooks

import (
	"encoding/hex"
	"fmt"

	"hookguard/internal/platform/secrets"
)

// WireMessage is what travels to the receiver: the canonical body as the
// request body and the signature in a dedicated header.
type WireMessage struct {
	Body      []byte
	Signature string
}

// Signer produces WireMessages. It holds only the immutable secret and is
// safe for concurrent use.
type Signer struct {
	secret secrets.Secret
	mac    MAC
}

func NewSigner(secret secrets.Secret) (*Signer, error) {
	if secret.IsZero() {
		return nil, secrets.ErrSecretUnavailable
	}
	return &Signer{secret: secret, mac: HMACSHA256{}}, nil
}

// BuildMessage canonicalizes payload and signs the resulting bytes.
func (s *Signer) BuildMessage(payload any) (WireMessage, error) {
	body, err := Canonicalize(payload)
	if err != nil {
		return WireMessage{}, fmt.Errorf("build message: %w", err)
	}
	return WireMessage{Body: body, Signature: s.SignBytes(body)}, nil
}

// SignBytes signs body exactly as given and returns the lowercase hex signature.
func (s *Signer) SignBytes(body []byte) string {
	return hex.EncodeToString(s.mac.Sum(s.secret, body))
}

// Sign is a one-shot helper for callers that hold the raw key and an
// already-canonical body.
func Sign(secret string, payload []byte) string {
	return hex.EncodeToString(HMACSHA256{}.Sum(secrets.FromString(secret), payload))
}
