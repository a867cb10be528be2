package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/filemock/internal/record"
)

// SetOptions holds flags for the set command.
type SetOptions struct {
	*RootOptions
	Version int64
	Data    string
}

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Raw bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one record",
		Long: `Print the record stored under key in wire shape ({"_v", "_d"}),
or null when there is none.

Example:
  filemock get doc --data-dir ./data`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args[0], cmd)
		},
	}
}

func runGet(opts *RootOptions, key string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	sess, err := opts.openSession(cmd, false)
	if err != nil {
		return err
	}

	w, getErr := sess.store.Get(key)
	if err := sess.close(cmd.Context()); err != nil {
		return err
	}
	if getErr != nil {
		_ = out.Error(storeErrorCode(getErr, "E_GET"), getErr.Error())
		return WrapExitError(ExitCommandError, "get failed", getErr)
	}

	// A missing record prints null; passing the nil *Wire through would
	// reach the formatter as a non-nil interface.
	var doc any
	if w != nil {
		doc = w
	}
	return out.Document(doc)
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set <key>",
		Short: "Write one record and save",
		Long: `Store a record under key and write the data file. The file is
created when it does not exist yet.

Example:
  filemock set doc --version 2 --data '{"name":"elasticsearch"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(opts, args[0], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Version, "version", 0, "record version")
	cmd.Flags().StringVar(&opts.Data, "data", "", "record data as a JSON object (required)")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runSet(opts *SetOptions, key string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	data, err := parseObject(opts.Data)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --data", err)
	}

	sess, err := opts.openSession(cmd, true)
	if err != nil {
		return err
	}

	if err := sess.store.Set(key, record.Wire{Version: opts.Version, Data: data}); err != nil {
		sess.discard(cmd.Context())
		_ = out.Error(storeErrorCode(err, "E_SET"), err.Error())
		return WrapExitError(ExitCommandError, "set failed", err)
	}
	if err := sess.close(cmd.Context()); err != nil {
		return err
	}

	out.VerboseLog("saved %s", sess.cfg.Path())
	if opts.Format == "json" {
		return out.Success(map[string]any{"key": key, "version": opts.Version})
	}
	return out.Success(fmt.Sprintf("set %s (version %d)", key, opts.Version))
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove one record and save",
		Long: `Remove the record stored under key and write the data file.
Deleting a key that does not exist is not an error.

Example:
  filemock delete doc`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, args[0], cmd)
		},
	}
}

func runDelete(opts *RootOptions, key string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	sess, err := opts.openSession(cmd, true)
	if err != nil {
		return err
	}

	if err := sess.store.Delete(key); err != nil {
		sess.discard(cmd.Context())
		_ = out.Error(storeErrorCode(err, "E_DELETE"), err.Error())
		return WrapExitError(ExitCommandError, "delete failed", err)
	}
	if err := sess.close(cmd.Context()); err != nil {
		return err
	}

	out.VerboseLog("saved %s", sess.cfg.Path())
	if opts.Format == "json" {
		return out.Success(map[string]any{"key": key})
	}
	return out.Success("deleted " + key)
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print every record",
		Long: `Print every record keyed by its key, in wire shape by default or in
storage shape with --raw.

Example:
  filemock dump --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "print records in storage shape")

	return cmd
}

func runDump(opts *DumpOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	sess, err := opts.openSession(cmd, false)
	if err != nil {
		return err
	}
	table := sess.store.Snapshot()
	if err := sess.close(cmd.Context()); err != nil {
		return err
	}
	out.VerboseLog("%d records in %s", len(table), sess.cfg.Path())

	if opts.Raw {
		return out.Document(table)
	}

	records := make(map[string]record.Wire, len(table))
	for key, stored := range table {
		w, err := record.FromStorage(stored)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("record %q", key), err)
		}
		records[key] = w
	}
	return out.Document(records)
}

// parseObject decodes a JSON object, keeping numbers exact.
func parseObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("want a JSON object, got null")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after JSON object")
	}
	return obj, nil
}
