// Package cli is the metricdeck command tree. The root command runs the
// terminal dashboard; subcommands are one-shot scripts over the same
// session, card, preview and export services.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/five82/metricdeck/internal/app"
	"github.com/five82/metricdeck/internal/config"
	"github.com/five82/metricdeck/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. METRICDECK_API_URL.
const EnvPrefix = "METRICDECK"

// consoleLevel is the stderr log level of subcommands without --log-level.
const consoleLevel = "warn"

// CLI represents the command-line interface.
type CLI struct {
	opts    Options
	v       *viper.Viper
	rootCmd *cobra.Command
}

// Options configure the CLI streams.
type Options struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
	// EnvFile is loaded before flags are resolved. Empty means ".env".
	EnvFile string
}

// New creates a CLI instance.
func New(opts Options) *CLI {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.EnvFile == "" {
		opts.EnvFile = ".env"
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	c := &CLI{opts: opts, v: v}
	c.rootCmd = c.newRootCmd()
	return c
}

// SetArgs overrides os.Args[1:].
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// Execute runs the command selected by the arguments.
func (c *CLI) Execute(ctx context.Context) error {
	return c.rootCmd.ExecuteContext(ctx)
}

// Execute runs metricdeck with the process arguments and returns the exit
// code.
func Execute(ctx context.Context) int {
	c := New(Options{})
	if err := c.Execute(ctx); err != nil {
		fmt.Fprintf(c.opts.Err, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (c *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "metricdeck",
		Short:         "Terminal dashboard for the metrics backend",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRun: func(*cobra.Command, []string) {
			c.loadEnvFile()
		},
		RunE: c.runDashboard,
	}
	cmd.SetIn(c.opts.In)
	cmd.SetOut(c.opts.Out)
	cmd.SetErr(c.opts.Err)

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default ~/.config/metricdeck/config.toml)")
	flags.String("api-url", "", "backend API base URL")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	_ = c.v.BindPFlags(flags)

	cmd.AddCommand(
		c.newLoginCmd(),
		c.newLogoutCmd(),
		c.newWhoamiCmd(),
		c.newCardCmd(),
		c.newPeriodsCmd(),
		c.newPreviewCmd(),
		c.newExportCmd(),
	)
	return cmd
}

func (c *CLI) loadEnvFile() {
	if err := godotenv.Load(c.opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(c.opts.Err, "Error loading %s file: %v\n", c.opts.EnvFile, err)
	}
}

// loadConfig reads the config file and applies flag and environment
// overrides on top of it.
func (c *CLI) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.v.GetString("config"))
	if err != nil {
		return config.Config{}, err
	}
	if url := strings.TrimSpace(c.v.GetString("api-url")); url != "" {
		cfg.APIURL = url
	}
	if level := strings.TrimSpace(c.v.GetString("log-level")); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}
	if dir := strings.TrimSpace(c.v.GetString("download-dir")); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return config.Config{}, fmt.Errorf("download dir: %w", err)
		}
		cfg.DownloadDir = expanded
	}
	return cfg, nil
}

// open wires the application. The dashboard logs to the log file; one-shot
// commands log to stderr.
func (c *CLI) open(dashboard bool) (*app.App, func(), error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logOpts := logging.Options{Level: cfg.LogLevel, Console: c.opts.Err}
	if dashboard {
		logOpts.File = cfg.LogFile
	} else if strings.TrimSpace(c.v.GetString("log-level")) == "" {
		logOpts.Level = consoleLevel
	}
	logger, closeLog, err := logging.New(logOpts)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		_ = closeLog()
		return nil, nil, err
	}
	cleanup := func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("close storage failed")
		}
		_ = closeLog()
	}
	return a, cleanup, nil
}

func (c *CLI) runDashboard(cmd *cobra.Command, _ []string) error {
	a, cleanup, err := c.open(true)
	if err != nil {
		return err
	}
	defer cleanup()
	return a.Run(cmd.Context())
}
