package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/filemock/internal/config"
	"github.com/roach88/filemock/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	DataDir    string
	DataFile   string

	// LookupEnv reads environment overrides. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the filemock CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{LookupEnv: os.LookupEnv}

	cmd := &cobra.Command{
		Use:   "filemock",
		Short: "filemock - file-backed mock storage",
		Long: `Inspect and edit the JSON persistence file of the file-backed mock
storage connector, export it to SQLite and run store scenarios.

Settings come from defaults, then --config, then FILE_MOCK_* environment
variables, then --data-dir and --data-file.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "directory holding the data file")
	cmd.PersistentFlags().StringVar(&opts.DataFile, "data-file", "", "data file name, relative to the data dir")

	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// loadConfig layers defaults, the config file, the environment and the
// data flags, in that order.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.ConfigFile != "" {
		var err error
		cfg, err = cfg.ApplyFile(o.ConfigFile)
		if err != nil {
			return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}

	lookup := o.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg = cfg.ApplyEnv(lookup)

	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if o.DataFile != "" {
		cfg.DataFile = o.DataFile
	}

	if err := cfg.Validate(); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg.WithInstanceID(), nil
}

// logger writes store logs to w: warnings and errors by default, everything
// with --verbose.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// session is a store opened for a single command.
type session struct {
	cfg   config.Config
	store *store.Store
}

// openSession opens the store and waits for the load to settle.
//
// Read-only sessions never save and fail when the data file cannot be
// loaded. Mutating sessions always save on close; they start from an empty
// table when the file does not exist yet, but refuse to run over a file they
// could not parse, since saving would overwrite it.
func (o *RootOptions) openSession(cmd *cobra.Command, mutating bool) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.SaveOnClose = mutating

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st := store.Open(cfg, store.WithLogger(o.logger(cmd.ErrOrStderr())))
	loaded := st.Loaded()
	if err := loaded.Wait(ctx); err != nil {
		if !loaded.Resolved() {
			return nil, WrapExitError(ExitCommandError, "load interrupted", err)
		}
		if !mutating || !errors.Is(err, os.ErrNotExist) {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", cfg.Path()), err)
		}
	}
	return &session{cfg: cfg, store: st}, nil
}

// close shuts the store down and waits for the save, if any.
func (s *session) close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.store.Close().Wait(ctx); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to save %s", s.cfg.Path()), err)
	}
	return nil
}

// discard shuts the store down without saving.
func (s *session) discard(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	_ = s.store.Discard().Wait(ctx)
}

// storeErrorCode returns the store error code of err, or fallback.
func storeErrorCode(err error, fallback string) string {
	var se *store.Error
	if errors.As(err, &se) {
		return string(se.Code)
	}
	return fallback
}
