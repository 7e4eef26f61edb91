// Package cli holds the cobra commands of the periodic binary.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"periodic-engine/internal/config"

	"github.com/spf13/cobra"
)

// app carries what every subcommand needs after the root pre-run.
type app struct {
	configPath string
	cfg        *config.Config
}

// NewRootCmd creates the root command and its subcommands.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "periodic",
		Short:         "Batched and looped job engine",
		Long:          "periodic runs jobs that read rows from a source, apply an action to them in batches, and optionally repeat while a predicate holds.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a config file (default ./configs/config.yaml)")

	cmd.AddCommand(newServeCmd(a), newRunCmd(a))
	return cmd
}

// newLogger builds the JSON logger used by every command.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
