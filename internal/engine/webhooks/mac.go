package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"

	"hookguard/internal/platform/secrets"
)

// SignatureSize is the MAC length in bytes; on the wire it is twice that
// in lowercase hex.
const SignatureSize = sha256.Size

// MAC computes a keyed digest of body. Implementations must be
// deterministic and safe for concurrent use.
type MAC interface {
	Sum(secret secrets.Secret, body []byte) []byte
}

// HMACSHA256 is the production MAC engine.
type HMACSHA256 struct{}

func (HMACSHA256) Sum(secret secrets.Secret, body []byte) []byte {
	var sum []byte
	secret.Use(func(key []byte) {
		h := hmac.New(sha256.New, key)
		h.Write(body)
		sum = h.Sum(nil)
	})
	return sum
}
