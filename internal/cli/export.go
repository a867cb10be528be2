package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/filemock/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Out string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the data file to SQLite",
		Long: `Write every record into a SQLite database with one row per key.
An existing database at --out is replaced.

The data column holds the storage-shape JSON, so records can be queried with
SQLite's JSON functions:

  SELECT key FROM records WHERE json_extract(data, '$.name') = 'elasticsearch';

Example:
  filemock export --out ./records.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "path to the SQLite database (required)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	sess, err := opts.openSession(cmd, false)
	if err != nil {
		return err
	}
	table := sess.store.Snapshot()
	if err := sess.close(cmd.Context()); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	n, err := export.Export(ctx, opts.Out, table)
	if err != nil {
		return WrapExitError(ExitCommandError, "export failed", err)
	}

	if opts.Format == "json" {
		return out.Success(map[string]any{"path": opts.Out, "records": n})
	}
	return out.Success(fmt.Sprintf("exported %d records to %s", n, opts.Out))
}
