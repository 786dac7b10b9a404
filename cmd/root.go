package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"portalsim/engine/internal/config"
	"portalsim/engine/internal/logging"
)

// app carries state shared by every subcommand once PersistentPreRunE has run.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:           "portalsim",
		Short:         "Portal room simulation daemon and tools",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (YAML)")
	flags.String("level", "", "level file (.yaml, .yml, .txt or .level); empty uses the built-in room")
	flags.String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	_ = a.v.BindPFlag("level_path", flags.Lookup("level"))
	_ = a.v.BindPFlag("logging.level", flags.Lookup("log-level"))

	root.AddCommand(
		newServeCmd(a),
		newSimulateCmd(a),
		newCheckLevelCmd(a),
		newReplayCmd(a),
		newTokenCmd(a),
		newVersionCmd(),
	)
	return root, a
}

// initialize reads the optional config file, validates the merged settings and builds
// the logger.
func (a *app) initialize() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", a.cfgFile, err)
		}
	}
	cfg, err := config.FromViper(a.v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialise logging: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	root, a := newRootCmd()
	if err := root.Execute(); err != nil {
		if a.logger != nil {
			a.logger.Error("command failed", logging.Error(err))
			_ = a.logger.Sync()
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
