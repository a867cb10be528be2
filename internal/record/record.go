package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ReservedField is the storage-shape key that holds the envelope metadata.
// Application payloads must not use it.
const ReservedField = "__ds"

// Envelope keys used by the host on the wire and inside ReservedField.
const (
	VersionField = "_v"
	DataField    = "_d"
)

// ErrMalformedRecord is returned when a record is missing the field its
// shape requires, or when a payload collides with ReservedField.
var ErrMalformedRecord = errors.New("malformed record")

// Wire is the host's record envelope. Version is owned by the caller and is
// carried through untouched.
//
// On the wire it is a flat object: {"_v": 1, "_d": {...}} plus any Meta
// fields.
type Wire struct {
	Version int64
	Data    map[string]any

	// Meta holds envelope fields other than _v and _d. It is stored under
	// ReservedField next to the version. Nil when there are none.
	Meta map[string]any
}

// MarshalJSON writes the flat envelope.
func (w Wire) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(w.Meta)+2)
	for k, v := range w.Meta {
		obj[k] = v
	}
	obj[VersionField] = w.Version
	obj[DataField] = w.Data
	return json.Marshal(obj)
}

// UnmarshalJSON reads the flat envelope. Numbers are kept as json.Number.
func (w *Wire) UnmarshalJSON(b []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}

	var out Wire
	for k, raw := range obj {
		switch k {
		case VersionField:
			if err := json.Unmarshal(raw, &out.Version); err != nil {
				return fmt.Errorf("wire %s: %w", VersionField, err)
			}
		case DataField:
			if err := decodeNumbers(raw, &out.Data); err != nil {
				return fmt.Errorf("wire %s: %w", DataField, err)
			}
		default:
			var v any
			if err := decodeNumbers(raw, &v); err != nil {
				return fmt.Errorf("wire %s: %w", k, err)
			}
			if out.Meta == nil {
				out.Meta = make(map[string]any)
			}
			out.Meta[k] = v
		}
	}
	*w = out
	return nil
}

func decodeNumbers(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// Storage is the flattened record shape held in the table and written to the
// persistence file.
type Storage map[string]any

// ToStorage flattens a wire record. The result holds a deep copy of w.Data
// plus ReservedField carrying the rest of the envelope.
func ToStorage(w Wire) (Storage, error) {
	if w.Data == nil {
		return nil, fmt.Errorf("to storage: %w: %s missing", ErrMalformedRecord, DataField)
	}
	if _, ok := w.Data[ReservedField]; ok {
		return nil, fmt.Errorf("to storage: %w: payload uses reserved field %q", ErrMalformedRecord, ReservedField)
	}
	for _, k := range []string{VersionField, DataField} {
		if _, ok := w.Meta[k]; ok {
			return nil, fmt.Errorf("to storage: %w: meta uses envelope field %q", ErrMalformedRecord, k)
		}
	}

	meta := make(map[string]any, len(w.Meta)+1)
	for k, v := range w.Meta {
		meta[k] = CloneValue(v)
	}
	meta[VersionField] = w.Version

	s := make(Storage, len(w.Data)+1)
	for k, v := range w.Data {
		s[k] = CloneValue(v)
	}
	s[ReservedField] = meta
	return s, nil
}

// FromStorage rebuilds the wire record from a storage-shape record. The
// reserved field must be an object with an integral version.
func FromStorage(s Storage) (Wire, error) {
	raw, ok := s[ReservedField]
	if !ok {
		return Wire{}, fmt.Errorf("from storage: %w: %s missing", ErrMalformedRecord, ReservedField)
	}
	meta, ok := raw.(map[string]any)
	if !ok {
		return Wire{}, fmt.Errorf("from storage: %w: %s is %T, want object", ErrMalformedRecord, ReservedField, raw)
	}
	version, err := toVersion(meta[VersionField])
	if err != nil {
		return Wire{}, fmt.Errorf("from storage: %w: %v", ErrMalformedRecord, err)
	}
	if _, ok := meta[DataField]; ok {
		return Wire{}, fmt.Errorf("from storage: %w: %s holds %s", ErrMalformedRecord, ReservedField, DataField)
	}

	var extra map[string]any
	for k, v := range meta {
		if k == VersionField {
			continue
		}
		if extra == nil {
			extra = make(map[string]any, len(meta)-1)
		}
		extra[k] = CloneValue(v)
	}

	data := make(map[string]any, len(s))
	for k, v := range s {
		if k == ReservedField {
			continue
		}
		data[k] = CloneValue(v)
	}
	return Wire{Version: version, Data: data, Meta: extra}, nil
}

// Clone returns a deep copy of the record.
func (s Storage) Clone() Storage {
	if s == nil {
		return nil
	}
	out := make(Storage, len(s))
	for k, v := range s {
		out[k] = CloneValue(v)
	}
	return out
}

// Version reports the envelope version held under ReservedField.
func (s Storage) Version() (int64, error) {
	w, err := FromStorage(Storage{ReservedField: s[ReservedField]})
	if err != nil {
		return 0, err
	}
	return w.Version, nil
}

// toVersion accepts the numeric forms a version can take after a trip
// through encoding/json or YAML.
func toVersion(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, fmt.Errorf("%s missing", VersionField)
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%s out of range: %d", VersionField, n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, fmt.Errorf("%s is not an integer: %v", VersionField, n)
		}
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s is not an integer: %s", VersionField, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%s is %T, want integer", VersionField, v)
	}
}
