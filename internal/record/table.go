package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/pretty"
)

// DecodeTable parses a persistence file. Numbers are kept as json.Number so
// integer payloads survive a load/save cycle unchanged.
func DecodeTable(data []byte) (map[string]Storage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode table: trailing data after top-level object")
	}
	if raw == nil {
		return nil, fmt.Errorf("decode table: top-level value is null, want object")
	}

	table := make(map[string]Storage, len(raw))
	for k, v := range raw {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode table: key %q: %w: record is %T, want object", k, ErrMalformedRecord, v)
		}
		table[k] = Storage(obj)
	}
	return table, nil
}

// EncodeTable renders a table as sorted, indented JSON terminated by a
// newline. Keys and strings are written unnormalized, so every record comes
// back byte for byte. Equal tables always encode to identical bytes.
func EncodeTable(table map[string]Storage) ([]byte, error) {
	if table == nil {
		table = map[string]Storage{}
	}
	data, err := MarshalStable(table)
	if err != nil {
		return nil, fmt.Errorf("encode table: %w", err)
	}
	return pretty.PrettyOptions(data, &pretty.Options{Width: 80, Indent: "  "}), nil
}
