package webhooks

import (
	"errors"
	"fmt"
)

var (
	ErrCanonicalization   = errors.New("payload cannot be canonicalized")
	ErrMalformedSignature = errors.New("malformed signature")
	ErrSignatureMismatch  = errors.New("signature mismatch")
)

// CanonicalizationError reports a payload that has no deterministic
// serialization. Path points at the offending field when it is known.
type CanonicalizationError struct {
	Path string
	Err  error
}

func (e *CanonicalizationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("canonicalize payload: %v", e.Err)
	}
	return fmt.Sprintf("canonicalize payload at %s: %v", e.Path, e.Err)
}

func (e *CanonicalizationError) Unwrap() error { return e.Err }

func (e *CanonicalizationError) Is(target error) bool {
	return target == ErrCanonicalization
}
