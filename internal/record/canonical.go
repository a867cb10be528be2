package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces deterministic JSON for v.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units, not UTF-8 bytes
//  2. No HTML escaping, and U+2028/U+2029 are written literally
//  3. Strings and keys are NFC normalized
//  4. json.Number is written verbatim so integers never pass through float64
//
// Keys that only differ in normalization would collide and are rejected.
// Values that are not plain JSON trees (structs, typed maps) are round-tripped
// through encoding/json first.
func MarshalCanonical(v any) ([]byte, error) {
	return encoder{nfc: true}.marshal(v)
}

// MarshalStable is MarshalCanonical without normalization: keys and strings
// are written exactly as given. Use it wherever the output is user data that
// must survive a round trip.
func MarshalStable(v any) ([]byte, error) {
	return encoder{}.marshal(v)
}

type encoder struct {
	nfc bool
}

func (e encoder) marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.write(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e encoder) normalize(s string) string {
	if e.nfc {
		return norm.NFC.String(s)
	}
	return s
}

func (e encoder) write(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		return e.writeString(buf, val)
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	case float64:
		return writeCanonicalFloat(buf, val)
	case float32:
		return writeCanonicalFloat(buf, float64(val))
	case json.Number:
		if !json.Valid([]byte(val)) {
			return fmt.Errorf("invalid number %q", string(val))
		}
		buf.WriteString(string(val))
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.write(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		return writeObject(e, buf, val)
	case Storage:
		return writeObject(e, buf, val)
	case map[string]Storage:
		obj := make(map[string]any, len(val))
		for k, s := range val {
			obj[k] = s
		}
		return writeObject(e, buf, obj)
	default:
		generic, err := toGeneric(v)
		if err != nil {
			return fmt.Errorf("unsupported type for canonical JSON: %T: %w", v, err)
		}
		return e.write(buf, generic)
	}
	return nil
}

// toGeneric converts an arbitrary marshalable value into plain JSON values.
func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeCanonicalFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("unsupported float value: %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

type canonicalField struct {
	key   string
	value any
}

func writeObject[M ~map[string]any](e encoder, buf *bytes.Buffer, obj M) error {
	fields := make([]canonicalField, 0, len(obj))
	for k, v := range obj {
		fields = append(fields, canonicalField{key: e.normalize(k), value: v})
	}
	slices.SortFunc(fields, func(a, b canonicalField) int {
		return compareKeysUTF16(a.key, b.key)
	})

	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			if f.key == fields[i-1].key {
				return fmt.Errorf("duplicate key %q after normalization", f.key)
			}
			buf.WriteByte(',')
		}
		if err := e.writeString(buf, f.key); err != nil {
			return fmt.Errorf("key %q: %w", f.key, err)
		}
		buf.WriteByte(':')
		if err := e.write(buf, f.value); err != nil {
			return fmt.Errorf("object[%q]: %w", f.key, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeString escapes only quote, backslash and control characters.
func (e encoder) writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e.normalize(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators turns the U+2028 and U+2029 escapes that
// encoding/json always emits back into literal characters. An escape is only
// real when preceded by an even number of backslashes.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) &&
			data[i+1] == 'u' && data[i+2] == '2' && data[i+3] == '0' && data[i+4] == '2' &&
			(data[i+5] == '8' || data[i+5] == '9') {
			backslashes := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				backslashes++
			}
			if backslashes%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

// compareKeysUTF16 orders keys by UTF-16 code units. Go's native string
// comparison works on UTF-8 bytes, which orders supplementary-plane
// characters differently.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
