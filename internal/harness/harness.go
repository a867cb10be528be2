package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/filemock/internal/config"
	"github.com/roach88/filemock/internal/record"
	"github.com/roach88/filemock/internal/store"
	"github.com/roach88/filemock/internal/testutil"
)

// dataFile is the persistence file name inside the scenario's temp dir.
const dataFile = "data.json"

// runTimeout bounds the load and the close of a single run.
const runTimeout = 10 * time.Second

// Option configures a run.
type Option func(*runner)

// WithLogger routes store logs to logger. Runs are silent by default.
func WithLogger(logger *slog.Logger) Option {
	return func(r *runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

type runner struct {
	scenario *Scenario
	store    *store.Store
	seq      *testutil.Sequence
	logger   *slog.Logger
	result   *Result
}

// Run executes a scenario against a fresh store in a temporary directory.
// Failed expectations are reported in the Result; the returned error is
// reserved for problems running the scenario at all.
//
// The store is opened with a fixed instance ID and every trace event is
// numbered from a fresh sequence, so identical scenarios produce identical
// traces.
func Run(s *Scenario, opts ...Option) (*Result, error) {
	dir, err := os.MkdirTemp("", "filemock-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if s.Initial != nil {
		if _, err := testutil.WriteDataFile(dir, dataFile, toTable(s.Initial)); err != nil {
			return nil, fmt.Errorf("failed to write initial data: %w", err)
		}
	}

	r := &runner{
		scenario: s,
		seq:      testutil.NewSequence(),
		logger:   testutil.DiscardLogger(),
		result:   NewResult(),
	}
	for _, opt := range opts {
		opt(r)
	}

	cfg := config.Config{
		Name:        s.Name,
		Version:     "scenario",
		DataDir:     dir,
		DataFile:    dataFile,
		SaveOnClose: s.SaveOnClose,
		InstanceID:  "scenario-" + s.Name,
	}
	r.store = store.Open(cfg, store.WithLogger(r.logger))

	if err := r.waitLoad(); err != nil {
		return nil, err
	}
	for i, step := range s.Steps {
		r.runStep(i, step)
	}
	if err := r.waitClose(); err != nil {
		return nil, err
	}

	if s.Final != nil {
		r.checkFinal(cfg.Path())
	}
	return r.result, nil
}

// RunFile loads a scenario file and runs it.
func RunFile(path string, opts ...Option) (*Scenario, *Result, error) {
	s, err := LoadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	result, err := Run(s, opts...)
	if err != nil {
		return s, nil, err
	}
	return s, result, nil
}

func (r *runner) waitLoad() error {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	loaded := r.store.Loaded()
	if err := loaded.Wait(ctx); err != nil && !loaded.Resolved() {
		return fmt.Errorf("load did not settle: %w", err)
	}

	ev := TraceEvent{Seq: r.seq.Next(), Op: OpLoad, Error: errorCode(loaded.Err())}
	r.result.AddTrace(ev)

	// A missing file is expected when the scenario has no initial data.
	if ev.Error != "" && r.scenario.Initial != nil {
		r.result.AddError(fmt.Sprintf("load: unexpected error: %v", loaded.Err()))
	}
	return nil
}

func (r *runner) waitClose() error {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	closed := r.store.Close()
	if err := closed.Wait(ctx); err != nil && !closed.Resolved() {
		return fmt.Errorf("close did not settle: %w", err)
	}

	ev := TraceEvent{Seq: r.seq.Next(), Op: OpClose, Error: errorCode(closed.Err())}
	r.result.AddTrace(ev)
	if ev.Error != "" {
		r.result.AddError(fmt.Sprintf("close: unexpected error: %v", closed.Err()))
	}
	return nil
}

func (r *runner) runStep(i int, step Step) {
	ev := TraceEvent{Seq: r.seq.Next(), Op: step.Op, Key: step.Key}

	var got *record.Wire
	var err error
	switch step.Op {
	case OpSet:
		version := step.Version
		ev.Version = &version
		ev.Data = step.Data
		err = r.store.Set(step.Key, record.Wire{Version: step.Version, Data: step.Data})
	case OpGet:
		got, err = r.store.Get(step.Key)
		if err == nil {
			found := got != nil
			ev.Found = &found
			if got != nil {
				ev.Version = &got.Version
				ev.Data = got.Data
			}
		}
	case OpDelete:
		err = r.store.Delete(step.Key)
	}
	ev.Error = errorCode(err)
	r.result.AddTrace(ev)

	r.checkStep(i, step, ev, got)
}

func (r *runner) checkStep(i int, step Step, ev TraceEvent, got *record.Wire) {
	prefix := fmt.Sprintf("steps[%d] %s %q", i, step.Op, step.Key)

	want := &Expect{}
	if step.Expect != nil {
		want = step.Expect
	}

	if want.Error != ev.Error {
		switch {
		case want.Error == "":
			r.result.AddError(fmt.Sprintf("%s: unexpected error %s", prefix, ev.Error))
		case ev.Error == "":
			r.result.AddError(fmt.Sprintf("%s: expected error %s, got none", prefix, want.Error))
		default:
			r.result.AddError(fmt.Sprintf("%s: expected error %s, got %s", prefix, want.Error, ev.Error))
		}
		return
	}
	if ev.Error != "" {
		return
	}

	if want.Found != nil && *want.Found != (got != nil) {
		r.result.AddError(fmt.Sprintf("%s: expected found=%t, got found=%t", prefix, *want.Found, got != nil))
		return
	}
	if (want.Version != nil || want.Data != nil) && got == nil {
		r.result.AddError(fmt.Sprintf("%s: expected a record, got none", prefix))
		return
	}
	if want.Version != nil && *want.Version != got.Version {
		r.result.AddError(fmt.Sprintf("%s: expected version %d, got %d", prefix, *want.Version, got.Version))
	}
	if want.Data != nil {
		if diff := compareJSON(want.Data, got.Data); diff != "" {
			r.result.AddError(fmt.Sprintf("%s: data mismatch: %s", prefix, diff))
		}
	}
}

func (r *runner) checkFinal(path string) {
	table, err := testutil.ReadDataFile(path)
	if err != nil {
		r.result.AddError(fmt.Sprintf("final: failed to read persistence file: %v", err))
		return
	}
	if diff := compareJSON(toTable(r.scenario.Final), table); diff != "" {
		r.result.AddError("final: table mismatch: " + diff)
	}
}

// compareJSON compares two values by their stable encoding, which makes
// YAML integers and JSON numbers with the same value equal. It returns an
// empty string when they match.
func compareJSON(want, got any) string {
	wantJSON, err := record.MarshalStable(want)
	if err != nil {
		return fmt.Sprintf("cannot encode expected value: %v", err)
	}
	gotJSON, err := record.MarshalStable(got)
	if err != nil {
		return fmt.Sprintf("cannot encode actual value: %v", err)
	}
	if string(wantJSON) != string(gotJSON) {
		return fmt.Sprintf("expected %s, got %s", wantJSON, gotJSON)
	}
	return ""
}

func toTable(m map[string]map[string]any) map[string]record.Storage {
	table := make(map[string]record.Storage, len(m))
	for k, v := range m {
		table[k] = record.Storage(v)
	}
	return table
}

// errorCode maps a store error to its code for the trace.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var se *store.Error
	if errors.As(err, &se) {
		return string(se.Code)
	}
	return "ERROR"
}
