package secrets

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var ErrSecretUnavailable = errors.New("shared secret unavailable")

const redacted = "[REDACTED]"

// Secret is the shared webhook key. The zero value is unusable and every
// rendering of it (fmt, JSON, zerolog) is redacted.
type Secret struct {
	key []byte
}

func New(key []byte) Secret {
	cp := make([]byte, len(key))
	copy(cp, key)
	return Secret{key: cp}
}

func FromString(key string) Secret {
	return Secret{key: []byte(key)}
}

func (s Secret) IsZero() bool {
	return len(s.key) == 0
}

// Use hands fn a temporary copy of the key which is zeroed after fn returns.
func (s Secret) Use(fn func(key []byte)) {
	tmp := make([]byte, len(s.key))
	copy(tmp, s.key)
	defer clear(tmp)
	fn(tmp)
}

// Destroy zeroes the key in place. Call it once on shutdown.
func (s Secret) Destroy() {
	clear(s.key)
}

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

func (s Secret) MarshalZerologObject(e *zerolog.Event) {
	e.Bool("set", !s.IsZero())
}

// KeySize is the length in bytes of a generated shared secret.
const KeySize = 32

// Generate returns a fresh random key of n bytes, hex encoded, for
// provisioning a new deployment. n below KeySize is raised to KeySize.
func Generate(n int) (string, error) {
	if n < KeySize {
		n = KeySize
	}
	key := make([]byte, n)
	defer clear(key)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Provider supplies the shared secret from wherever the deployment keeps it.
type Provider interface {
	Fetch(ctx context.Context) (Secret, error)
}

type StaticProvider struct {
	Value string
}

func (p StaticProvider) Fetch(ctx context.Context) (Secret, error) {
	if p.Value == "" {
		return Secret{}, fmt.Errorf("static secret: %w", ErrSecretUnavailable)
	}
	return FromString(p.Value), nil
}

// FileProvider reads a secret mounted as a file, e.g. a Kubernetes secret volume.
type FileProvider struct {
	Path string
}

func (p FileProvider) Fetch(ctx context.Context) (Secret, error) {
	if p.Path == "" {
		return Secret{}, fmt.Errorf("secret file: no path configured: %w", ErrSecretUnavailable)
	}
	raw, err := os.ReadFile(p.Path)
	if err != nil {
		return Secret{}, fmt.Errorf("secret file %s: %v: %w", p.Path, err, ErrSecretUnavailable)
	}
	defer clear(raw)

	trimmed := strings.TrimRight(string(raw), "\r\n")
	if trimmed == "" {
		return Secret{}, fmt.Errorf("secret file %s is empty: %w", p.Path, ErrSecretUnavailable)
	}
	return FromString(trimmed), nil
}

// ChainProvider returns the first secret any of its providers yields.
type ChainProvider []Provider

func (c ChainProvider) Fetch(ctx context.Context) (Secret, error) {
	var errs []error
	for _, p := range c {
		if err := ctx.Err(); err != nil {
			return Secret{}, fmt.Errorf("%v: %w", err, ErrSecretUnavailable)
		}
		s, err := p.Fetch(ctx)
		if err == nil && !s.IsZero() {
			return s, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return Secret{}, ErrSecretUnavailable
	}
	return Secret{}, errors.Join(errs...)
}

// Load fetches the secret once at startup. Anything short of a non-empty
// secret is reported as ErrSecretUnavailable so callers fail closed.
func Load(ctx context.Context, p Provider) (Secret, error) {
	if p == nil {
		return Secret{}, ErrSecretUnavailable
	}
	s, err := p.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, ErrSecretUnavailable) {
			err = fmt.Errorf("%v: %w", err, ErrSecretUnavailable)
		}
		return Secret{}, err
	}
	if s.IsZero() {
		return Secret{}, ErrSecretUnavailable
	}
	return s, nil
}
