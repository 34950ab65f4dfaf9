// Package cmd is the shared entry point of Telegram bot binaries.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/m3rciful/timebot/core/buildinfo"
	coreconfig "github.com/m3rciful/timebot/core/config"
	"github.com/m3rciful/timebot/core/logger"
	coretelegram "github.com/m3rciful/timebot/core/telegram"
)

// ConfigCarrier exposes access to the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp is the minimal interface required to run a Telegram bot.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

func (o *Options) defaults() error {
	if o.LoadConfig == nil {
		return errors.New("cmd: LoadConfig is required")
	}
	if o.Bootstrap == nil {
		return errors.New("cmd: Bootstrap is required")
	}
	if o.ConfigEnvVar == "" {
		o.ConfigEnvVar = "CONFIG_PATH"
	}
	if o.ShutdownLogger == nil {
		o.ShutdownLogger = logger.Shutdown
	}
	if o.RunTelegram == nil {
		o.RunTelegram = coretelegram.RunTelegram
	}
	return nil
}

// Command returns the root command of a bot binary. The config path comes
// from --config, then the ConfigEnvVar environment variable, then
// DefaultConfigPath.
func Command(use, short string, opts Options) *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           use,
		Short:         short,
		Version:       buildinfo.String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return Run(ctx, cfgPath, opts)
		},
	}
	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	def := os.Getenv(env)
	if def == "" {
		def = opts.DefaultConfigPath
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", def, fmt.Sprintf("Path to the YAML config file (env %s)", env))
	return root
}

// Run loads the config at cfgPath, bootstraps the app and runs the bot until
// ctx is cancelled.
func Run(ctx context.Context, cfgPath string, opts Options) error {
	if err := opts.defaults(); err != nil {
		return err
	}
	if cfgPath == "" {
		return fmt.Errorf("cmd: config path not provided via --config or %s", opts.ConfigEnvVar)
	}

	cfg, err := opts.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config %s: %w", cfgPath, err)
	}
	if cfg.CoreConfig() == nil {
		return errors.New("cmd: loaded config is missing core configuration")
	}

	application, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	defer func() {
		if err := opts.ShutdownLogger(); err != nil {
			fmt.Fprintf(os.Stderr, "logger shutdown: %v\n", err)
		}
	}()

	runOpts, err := application.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options build failed: %w", err)
	}
	wrapLifecycle(&runOpts, time.Now())
	return opts.RunTelegram(ctx, runOpts)
}

// wrapLifecycle adds the ready and shutdown log lines around the app hooks.
func wrapLifecycle(opts *coretelegram.RunOptions, startedAt time.Time) {
	log := logger.Component("app")

	onStart := opts.OnStart
	opts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if onStart != nil {
			if err := onStart(ctx, rt); err != nil {
				return err
			}
		}
		log.LogAttrs(ctx, slog.LevelInfo, "ready",
			slog.Duration("startup_duration", time.Since(startedAt)),
		)
		return nil
	}

	onStop := opts.OnStop
	opts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		log.LogAttrs(ctx, slog.LevelInfo, "shutdown")
		if onStop != nil {
			return onStop(ctx, rt)
		}
		return nil
	}
}
