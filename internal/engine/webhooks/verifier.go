package webhooks

import (
	"crypto/hmac"
	"encoding/hex"

	"hookguard/internal/platform/secrets"
)

type Outcome int

const (
	Rejected Outcome = iota
	Accepted
)

func (o Outcome) String() string {
	if o == Accepted {
		return "accepted"
	}
	return "rejected"
}

// Reason explains a rejection. It never carries signature material.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonMalformed         Reason = "malformed_signature"
	ReasonMismatch          Reason = "signature_mismatch"
	ReasonSecretUnavailable Reason = "secret_unavailable"
)

// Result is the terminal state of one verification. The zero value is a
// rejection, so a forgotten assignment never accepts.
type Result struct {
	Outcome Outcome
	Reason  Reason
}

func (r Result) Accepted() bool {
	return r.Outcome == Accepted
}

// Err maps a rejection to its sentinel error, or nil when accepted.
func (r Result) Err() error {
	if r.Accepted() {
		return nil
	}
	switch r.Reason {
	case ReasonMalformed:
		return ErrMalformedSignature
	case ReasonMismatch:
		return ErrSignatureMismatch
	default:
		return secrets.ErrSecretUnavailable
	}
}

func accept() Result { return Result{Outcome: Accepted} }
func reject(reason Reason) Result { return Result{Outcome: Rejected, Reason: reason} }

type VerifierOption func(*Verifier)

// WithMAC swaps the MAC engine.
func WithMAC(mac MAC) VerifierOption {
	return func(v *Verifier) {
		v.mac = mac
	}
}

// Verifier checks received bodies against their claimed signature. It
// holds only the immutable secret and is safe for concurrent use.
type Verifier struct {
	secret secrets.Secret
	mac    MAC
}

// NewVerifier never fails: a verifier built without a secret rejects
// every message with ReasonSecretUnavailable.
func NewVerifier(secret secrets.Secret, opts ...VerifierOption) *Verifier {
	v := &Verifier{secret: secret, mac: HMACSHA256{}}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify signs body exactly as received and compares the result with
// signature in constant time. body is never re-parsed.
func (v *Verifier) Verify(body []byte, signature string) Result {
	if v == nil || v.secret.IsZero() {
		return reject(ReasonSecretUnavailable)
	}

	claimed, ok := decodeSignature(signature)
	if !ok {
		return reject(ReasonMalformed)
	}

	expected := v.mac.Sum(v.secret, body)
	if !hmac.Equal(claimed, expected) {
		return reject(ReasonMismatch)
	}
	return accept()
}

// decodeSignature accepts exactly 64 lowercase hex characters.
func decodeSignature(signature string) ([]byte, bool) {
	if len(signature) != hex.EncodedLen(SignatureSize) {
		return nil, false
	}
	for i := 0; i < len(signature); i++ {
		c := signature[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return nil, false
		}
	}
	raw, err := hex.DecodeString(signature)
	if err != nil {
		return nil, false
	}
	return raw, true
}
