// Package record converts records between the host's wire shape and the
// flattened storage shape kept in the persistence file.
//
// The wire shape is the envelope the host sends and expects back:
//
//	{"_v": 1, "_d": {"name": "elasticsearch"}}
//
// The storage shape lifts the payload to the top level and tucks the rest of
// the envelope under the reserved field, so stored records can be queried by
// their own fields:
//
//	{"name": "elasticsearch", "__ds": {"_v": 1}}
//
// Both directions are pure: inputs are never mutated or retained.
//
// The package also provides the deterministic JSON encoders. Both sort object
// keys by UTF-16 code units and never escape HTML. MarshalStable writes
// strings as given and backs the persistence file; MarshalCanonical also
// NFC-normalizes them and backs golden traces.
package record
