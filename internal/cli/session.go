package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/coordinator"
)

// loadConfig resolves the effective configuration: the --config file (or
// defaults), then --db and --name on top.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.Config != "" {
		var err error
		if cfg, err = config.Load(o.Config); err != nil {
			return config.Config{}, err
		}
	}
	if o.DB != "" {
		cfg.Dir = o.DB
	}
	if o.Name != "" {
		cfg.Name = o.Name
	}
	return cfg, nil
}

// configureLogging installs the default slog handler. --verbose forces
// debug; otherwise the configured log_level applies.
func (o *RootOptions) configureLogging(cfg config.Config, w io.Writer) {
	level := cfg.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// open loads configuration, configures logging and opens a coordinator.
// The caller closes it.
func (o *RootOptions) open(cmd *cobra.Command) (*coordinator.Coordinator, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	o.configureLogging(cfg, cmd.ErrOrStderr())

	var opts []coordinator.Option
	if o.FatalHandler != nil {
		opts = append(opts, coordinator.WithFatalHandler(o.FatalHandler))
	}

	slog.Debug("opening store", "path", cfg.StorePath())
	c, err := coordinator.Open(commandContext(cmd), cfg, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	return c, nil
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// commandContext returns the command's context, or Background when the
// command was executed without one (direct Execute in tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// closeQuietly closes the coordinator, logging a failure.
func closeQuietly(c *coordinator.Coordinator) {
	if err := c.Close(); err != nil {
		slog.Error("error closing store", "error", err)
	}
}
