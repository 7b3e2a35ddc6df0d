// Package cmd implements the identity command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rhuss/identity/pkg/app"
	"github.com/rhuss/identity/pkg/config"
	"github.com/rhuss/identity/pkg/debug"
)

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globals carries the persistent flags and the streams shared by every
// subcommand.
type globals struct {
	configPath string
	in         io.Reader
	out        io.Writer
	errOut     io.Writer
}

// NewRootCmd builds the command tree.
func NewRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	g := &globals{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "identity",
		Short: "Pluggable HTTP authentication server",
		Long: `identity authenticates HTTP requests with Basic, Bearer (JWT), cookie and
API key schemes evaluated as an ordered chain, and manages the users those
schemes resolve to.

Configuration is read from a YAML file (--config, IDENTITY_CONFIG,
./config.yaml or /etc/identity/config.yaml), an optional .env file and
IDENTITY_* environment variables.`,
		SilenceUsage: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to the YAML config file")

	root.AddCommand(newServeCmd(g))
	root.AddCommand(newUsersCmd(g))
	root.AddCommand(newTokenCmd(g))
	return root
}

// loadConfig loads the configuration and installs the configured logger as
// the default.
func (g *globals) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(app.NewLogger(cfg.Log, g.errOut))
	debug.Init(cfg.Log.Debug)
	debug.Log("config", "configuration loaded",
		"schemes", cfg.Auth.Schemes,
		"storage", cfg.Storage.Type,
		"hasher", cfg.Hasher.Type,
		"categories", debug.Categories(),
	)
	return cfg, nil
}

// openApp loads the configuration and builds the application. The caller
// must Close the returned App.
func (g *globals) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Type == "memory" {
		slog.Warn("memory storage is not persisted, changes are lost when the command exits")
	}
	return app.New(ctx, cfg)
}
