// Package harness runs YAML scenarios against a fresh record store.
//
// A scenario seeds an optional persistence file, opens a store on it, runs a
// list of get/set/delete steps, closes the store and checks the results:
//
//	name: roundtrip
//	description: set then get
//	steps:
//	  - op: set
//	    key: doc
//	    version: 1
//	    data: { name: elasticsearch }
//	  - op: get
//	    key: doc
//	    expect: { found: true, version: 1, data: { name: elasticsearch } }
//
// Every run records a trace with deterministic sequence numbers, so traces
// can be compared against golden files with RunWithGolden.
package harness
