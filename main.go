// Command basar narrates what a camera sees: objects around the user or
// text in front of them, switched with taps on a single key.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go.aimuz.me/basar/config"
	"go.aimuz.me/basar/internal/app"
	"go.aimuz.me/basar/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	runFlags := &runOptions{}

	rootCmd := &cobra.Command{
		Use:   "basar",
		Short: "Narrate objects and text seen by the camera",
		Long: "basar captures camera frames, sends them to a perception service and speaks the result.\n" +
			"Tap twice to detect objects, three times to read text.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, flags, runFlags)
		},
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default <user config dir>/basar/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level")
	addRunFlags(rootCmd, runFlags)

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(flags),
		newSnapCmd(flags),
		newVoicesCmd(flags),
		newConfigCmd(flags),
	)
	return rootCmd
}

// loadConfig reads the configuration and installs the logger. logDir, when
// set, sends logs to a file so they do not disturb the terminal display.
func loadConfig(flags *globalFlags, logDir string) (*config.Config, func() error, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	closeLog, err := logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Dir:    logDir,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, closeLog, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// run
// ─────────────────────────────────────────────────────────────────────────────

type runOptions struct {
	headless    bool
	controlAddr string
	hotkey      bool
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "do not show the terminal display; read commands from stdin")
	cmd.Flags().StringVar(&opts.controlAddr, "control", "", "serve the control API on this address, e.g. 127.0.0.1:7070")
	cmd.Flags().BoolVar(&opts.hotkey, "hotkey", false, "listen for the tap key system-wide")
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an assistive session (default command)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, flags, opts)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

func runSession(cmd *cobra.Command, flags *globalFlags, opts *runOptions) error {
	appOpts := app.Options{Headless: opts.headless, Input: cmd.InOrStdin()}

	var logDir string
	if app.Interactive(appOpts) {
		dir, err := config.CacheDir()
		if err != nil {
			return err
		}
		logDir = dir
	}

	cfg, closeLog, err := loadConfig(flags, logDir)
	if err != nil {
		return err
	}
	defer closeLog()

	if opts.controlAddr != "" {
		cfg.Input.ControlAddr = opts.controlAddr
	}
	if opts.hotkey {
		cfg.Input.Hotkey = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting basar", "version", version, "commit", commit, "date", date)
	return app.New(cfg, appOpts, version).Run(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// version
// ─────────────────────────────────────────────────────────────────────────────

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "basar %s (commit %s, built %s)\n", version, commit, date)
			return err
		},
	}
}
