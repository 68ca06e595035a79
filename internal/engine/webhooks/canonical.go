package webhooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// TimestampFormat is how time.Time values appear in canonical payloads:
// ISO-8601, UTC, second precision.
const TimestampFormat = "2006-01-02T15:04:05Z"

// Payload is the event body handed to the Signer. Field order is
// irrelevant; canonicalization sorts keys.
type Payload map[string]any

// Canonicalize serializes payload to compact JSON with lexicographically
// sorted keys at every depth, no HTML escaping and UTC second-precision
// timestamps. Logically equal payloads always produce identical bytes.
//
// Numbers are re-spelled: integer literals stay exact (int64, or an
// arbitrary-precision integer beyond that range) and every other number is
// an IEEE double in the encoder's shortest form, so 1, 1.0 and 1e0 all
// canonicalize to 1.
//
// Structs are accepted and re-keyed the same way as maps, but time.Time
// fields inside structs keep the encoding/json format; put timestamps
// in a Payload when their exact rendering matters.
func Canonicalize(payload any) ([]byte, error) {
	if payload == nil {
		return nil, &CanonicalizationError{Err: fmt.Errorf("nil payload")}
	}

	w := &walker{onPath: make(map[uintptr]bool)}
	normalized, err := w.normalize(payload, "$")
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, &CanonicalizationError{Err: err}
	}

	// Round-trip through a generic tree so struct field order, tags and
	// custom marshalers all collapse into sorted objects.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, &CanonicalizationError{Err: err}
	}
	// json.Number fields of structs and custom marshalers surface only here
	tree, err = canonicalNumbers(tree, "$")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tree); err != nil {
		return nil, &CanonicalizationError{Err: err}
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

type walker struct {
	onPath map[uintptr]bool
}

func (w *walker) normalize(v any, path string) (any, error) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Truncate(time.Second).Format(TimestampFormat), nil
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return val.UTC().Truncate(time.Second).Format(TimestampFormat), nil
	case Payload:
		return w.normalizeMap(map[string]any(val), path)
	case map[string]any:
		return w.normalizeMap(val, path)
	case []any:
		return w.normalizeSlice(val, path)
	case json.Number:
		return canonicalNumber(val, path)
	case float64:
		return canonicalFloat(val, path)
	case float32:
		return canonicalFloat(float64(val), path)
	}
	return v, nil
}

func (w *walker) normalizeMap(m map[string]any, path string) (any, error) {
	if m == nil {
		return nil, nil
	}
	ptr := reflect.ValueOf(m).Pointer()
	if w.onPath[ptr] {
		return nil, &CanonicalizationError{Path: path, Err: fmt.Errorf("cyclic reference")}
	}
	w.onPath[ptr] = true
	defer delete(w.onPath, ptr)

	out := make(map[string]any, len(m))
	for k, v := range m {
		n, err := w.normalize(v, path+"."+k)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, nil
}

func (w *walker) normalizeSlice(s []any, path string) (any, error) {
	if s == nil {
		return nil, nil
	}
	if len(s) > 0 {
		ptr := reflect.ValueOf(s).Pointer()
		if w.onPath[ptr] {
			return nil, &CanonicalizationError{Path: path, Err: fmt.Errorf("cyclic reference")}
		}
		w.onPath[ptr] = true
		defer delete(w.onPath, ptr)
	}

	out := make([]any, len(s))
	for i, v := range s {
		n, err := w.normalize(v, path+"["+strconv.Itoa(i)+"]")
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// canonicalNumbers rewrites every json.Number in a decoded tree. The tree
// only holds maps, slices and scalars, so no cycle tracking is needed.
func canonicalNumbers(v any, path string) (any, error) {
	switch val := v.(type) {
	case json.Number:
		return canonicalNumber(val, path)
	case map[string]any:
		for k, elem := range val {
			n, err := canonicalNumbers(elem, path+"."+k)
			if err != nil {
				return nil, err
			}
			val[k] = n
		}
	case []any:
		for i, elem := range val {
			n, err := canonicalNumbers(elem, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			val[i] = n
		}
	}
	return v, nil
}

func canonicalNumber(n json.Number, path string) (any, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		if b, ok := new(big.Int).SetString(s, 10); ok {
			return b, nil
		}
		return nil, &CanonicalizationError{Path: path, Err: fmt.Errorf("invalid number %q", s)}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, &CanonicalizationError{Path: path, Err: fmt.Errorf("invalid number %q", s)}
	}
	return canonicalFloat(f, path)
}

// canonicalFloat rejects NaN and infinities and folds -0 into 0.
func canonicalFloat(f float64, path string) (any, error) {
	if err := checkFloat(f, path); err != nil {
		return nil, err
	}
	if f == 0 {
		return float64(0), nil
	}
	return f, nil
}

func checkFloat(f float64, path string) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &CanonicalizationError{Path: path, Err: fmt.Errorf("non-finite number %v", f)}
	}
	return nil
}
