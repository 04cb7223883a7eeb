// Package cmd implements the devtools command line.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/devtoolspro/gateway/internal/config"
	"github.com/devtoolspro/gateway/pkg/logger"
)

// BuildInfo is set by the main package.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

type rootOptions struct {
	cfgFile string
	verbose bool
	build   BuildInfo
}

// NewRootCommand builds the devtools command tree.
func NewRootCommand(build BuildInfo) *cobra.Command {
	opts := &rootOptions{build: build}

	root := &cobra.Command{
		Use:           "devtools",
		Short:         "Developer tools gateway",
		Long:          "Developer tools gateway with tiered rate limiting, license verification and billing.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (keys use environment variable names)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newLicenseCommand(opts),
		newUsageCommand(opts),
		newTiersCommand(),
		newVersionCommand(opts),
	)

	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute(build BuildInfo) {
	if err := NewRootCommand(build).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration. Required secrets are only enforced in production.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	return o.readConfig(func(cfg *config.Config) bool { return cfg.App.IsProduction() })
}

// loadServeConfig reads configuration and always enforces required secrets.
func (o *rootOptions) loadServeConfig() (*config.Config, error) {
	return o.readConfig(func(*config.Config) bool { return true })
}

func (o *rootOptions) readConfig(strict func(*config.Config) bool) (*config.Config, error) {
	cfg, err := config.Read(o.cfgFile)
	if err != nil {
		return nil, err
	}
	if strict(cfg) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if o.verbose {
		cfg.App.LogLevel = "debug"
	}
	return cfg, nil
}

func (o *rootOptions) logger(cfg *config.Config, w io.Writer) *logger.Logger {
	return logger.New(w, cfg.App.LogLevel)
}

// errNoDatabase is returned by commands that need PostgreSQL when none is configured.
var errNoDatabase = errors.New("database is not configured (set DB_HOST and DB_PASSWORD)")

func newVersionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			b := opts.build
			if b.Version == "" {
				b.Version = "dev"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "devtools %s (commit %s, built %s)\n", b.Version, orUnknown(b.Commit), orUnknown(b.BuildDate))
		},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
