package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"slices"
)

// Keyer derives a cache key from an operation name and its arguments.
// Equal arguments must give equal keys whatever the map iteration order.
type Keyer interface {
	Key(operation string, args any) (string, error)
}

// KeyerFunc adapts a function to Keyer.
type KeyerFunc func(operation string, args any) (string, error)

func (f KeyerFunc) Key(operation string, args any) (string, error) {
	return f(operation, args)
}

// hashHexLen is the number of hex digits of the digest kept in a key.
const hashHexLen = 16

// DefaultKeyer keys a call as "<operation>:<16 hex digits>", the digits
// being a prefix of the SHA-256 of the arguments' canonical JSON: object
// keys sorted at every depth, array order preserved. Structs hash like
// the maps they encode to.
type DefaultKeyer struct{}

func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

func (k *DefaultKeyer) Key(operation string, args any) (string, error) {
	generic, err := normalize(args)
	if err != nil {
		return "", fmt.Errorf("cache: key args for %s: %w", operation, err)
	}

	h := sha256.New()
	if err := writeCanonical(h, generic); err != nil {
		return "", fmt.Errorf("cache: key args for %s: %w", operation, err)
	}
	return operation + ":" + hex.EncodeToString(h.Sum(nil))[:hashHexLen], nil
}

// normalize turns v into the values encoding/json decodes into: maps,
// slices, strings, bools and nil, with numbers kept as json.Number so
// integers beyond 2^53 stay exact.
func normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeCanonical(w io.Writer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		io.WriteString(w, "{")
		for i, k := range keys {
			if i > 0 {
				io.WriteString(w, ",")
			}
			if err := writeScalar(w, k); err != nil {
				return err
			}
			io.WriteString(w, ":")
			if err := writeCanonical(w, val[k]); err != nil {
				return err
			}
		}
		io.WriteString(w, "}")
		return nil

	case []any:
		io.WriteString(w, "[")
		for i, item := range val {
			if i > 0 {
				io.WriteString(w, ",")
			}
			if err := writeCanonical(w, item); err != nil {
				return err
			}
		}
		io.WriteString(w, "]")
		return nil

	case json.Number:
		_, err := io.WriteString(w, val.String())
		return err

	default:
		return writeScalar(w, val)
	}
}

func writeScalar(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

var (
	_ Keyer = (*DefaultKeyer)(nil)
	_ Keyer = KeyerFunc(nil)
)
