package middleware

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	apiContext "hookguard/internal/api/context"
	"hookguard/internal/engine/webhooks"
	"hookguard/internal/pkg/errors"
	"hookguard/internal/platform/metrics"
)

const DefaultMaxBodyBytes = 1 << 20

// SignatureMiddleware verifies inbound webhooks before any handler sees
// them. Handlers read the verified bytes from the request context, never
// from r.Body.
type SignatureMiddleware struct {
	verifier     *webhooks.Verifier
	header       string
	maxBodyBytes int64
	metrics      *metrics.Metrics
}

func NewSignatureMiddleware(verifier *webhooks.Verifier, header string, maxBodyBytes int64, m *metrics.Metrics) *SignatureMiddleware {
	if header == "" {
		header = "X-Signature"
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &SignatureMiddleware{verifier: verifier, header: header, maxBodyBytes: maxBodyBytes, metrics: m}
}

func (m *SignatureMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, m.maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if stderrors.As(err, &tooLarge) {
				errors.WriteError(w, http.StatusRequestEntityTooLarge, errors.ErrCodePayloadTooLarge, "Payload too large", nil)
				return
			}
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Could not read request body", nil)
			return
		}

		result := m.verifier.Verify(body, r.Header.Get(m.header))
		m.metrics.ObserveVerification(result.Outcome.String(), string(result.Reason))

		if !result.Accepted() {
			log.Warn().
				Str("reason", string(result.Reason)).
				Str("remote_addr", r.RemoteAddr).
				Int("body_bytes", len(body)).
				Msg("rejected webhook")
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeInvalidSignature, "Invalid webhook signature", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Body, body)
		next(w, r.WithContext(ctx))
	}
}

// VerifiedBody returns the bytes SignatureMiddleware accepted.
func VerifiedBody(r *http.Request) ([]byte, bool) {
	body, ok := r.Context().Value(apiContext.Body).([]byte)
	return body, ok
}
