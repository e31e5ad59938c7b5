// Package canonical produces byte-stable JSON for content fingerprinting.
//
// Object keys are sorted by UTF-16 code units at every level, strings are NFC
// normalized and escaped minimally (no HTML escaping), numbers use a single
// plain decimal form and times are rendered as RFC 3339 in UTC. Arrays keep
// their order. The same logical record therefore always yields the same bytes,
// independent of how the record was assembled.
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrSerialization reports input that has no canonical form, such as cyclic
// structures or non-finite numbers. Well-formed invoices never produce it.
var ErrSerialization = errors.New("canonical serialization failed")

// Number is a JSON number literal written verbatim. Callers are responsible
// for producing it in normalized form.
type Number string

// Marshal encodes v canonically. Supported values are nil, strings, booleans,
// integers, finite floats, json.Number, Number, time.Time, map[string]any,
// map[string]string, []any and []string.
func Marshal(v any) ([]byte, error) {
	e := &encoder{seen: make(map[uintptr]struct{})}
	if err := e.encode(v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return e.buf.Bytes(), nil
}

type encoder struct {
	buf  bytes.Buffer
	seen map[uintptr]struct{}
}

func (e *encoder) encode(v any) error {
	switch val := v.(type) {
	case nil:
		e.buf.WriteString("null")
	case string:
		return e.encodeString(val)
	case bool:
		e.buf.WriteString(strconv.FormatBool(val))
	case int:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		e.buf.WriteString(strconv.FormatInt(val, 10))
	case uint64:
		e.buf.WriteString(strconv.FormatUint(val, 10))
	case float64:
		return e.encodeFloat(val)
	case json.Number:
		if _, err := strconv.ParseFloat(string(val), 64); err != nil {
			return fmt.Errorf("invalid number %q", val)
		}
		e.buf.WriteString(string(val))
	case Number:
		if val == "" {
			return errors.New("empty number literal")
		}
		e.buf.WriteString(string(val))
	case time.Time:
		return e.encodeString(val.UTC().Format(time.RFC3339Nano))
	case map[string]string:
		obj := make(map[string]any, len(val))
		for k, s := range val {
			obj[k] = s
		}
		return e.encodeObject(obj)
	case map[string]any:
		return e.guard(val, func() error { return e.encodeObject(val) })
	case []string:
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return e.encodeArray(arr)
	case []any:
		return e.guard(val, func() error { return e.encodeArray(val) })
	default:
		return fmt.Errorf("unsupported type %T", v)
	}
	return nil
}

// guard rejects containers that are already being encoded higher up the
// current path.
func (e *encoder) guard(container any, fn func() error) error {
	rv := reflect.ValueOf(container)
	if rv.Len() == 0 {
		return fn()
	}

	ptr := rv.Pointer()
	if _, cyclic := e.seen[ptr]; cyclic {
		return errors.New("cyclic structure")
	}
	e.seen[ptr] = struct{}{}
	defer delete(e.seen, ptr)

	return fn()
}

func (e *encoder) encodeFloat(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite number %v", f)
	}
	if f == 0 {
		f = 0 // drop the sign of negative zero
	}
	e.buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

func (e *encoder) encodeArray(arr []any) error {
	e.buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encode(elem); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *encoder) encodeObject(obj map[string]any) error {
	normalized := make(map[string]any, len(obj))
	keys := make([]string, 0, len(obj))
	for k, v := range obj {
		nk := norm.NFC.String(k)
		if _, dup := normalized[nk]; dup {
			return fmt.Errorf("keys collide after normalization: %q", nk)
		}
		normalized[nk] = v
		keys = append(keys, nk)
	}
	sort.Slice(keys, func(i, j int) bool {
		return lessUTF16(keys[i], keys[j])
	})

	e.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encodeString(k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		e.buf.WriteByte(':')
		if err := e.encode(normalized[k]); err != nil {
			return fmt.Errorf("%q: %w", k, err)
		}
	}
	e.buf.WriteByte('}')
	return nil
}

const hexDigits = "0123456789abcdef"

// encodeString escapes only the quote, the backslash and control characters.
func (e *encoder) encodeString(s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("invalid UTF-8 in %q", s)
	}
	s = norm.NFC.String(s)

	e.buf.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"':
			e.buf.WriteString(`\"`)
		case r == '\\':
			e.buf.WriteString(`\\`)
		case r == '\b':
			e.buf.WriteString(`\b`)
		case r == '\f':
			e.buf.WriteString(`\f`)
		case r == '\n':
			e.buf.WriteString(`\n`)
		case r == '\r':
			e.buf.WriteString(`\r`)
		case r == '\t':
			e.buf.WriteString(`\t`)
		case r < 0x20:
			e.buf.WriteString(`\u00`)
			e.buf.WriteByte(hexDigits[r>>4])
			e.buf.WriteByte(hexDigits[r&0xF])
		default:
			e.buf.WriteRune(r)
		}
	}
	e.buf.WriteByte('"')
	return nil
}

func lessUTF16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}
