// Package cli wires configuration, logging and the bootstrap into the msgpub
// command tree.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/next-trace/scg-message-publisher/internal/bootstrap"
	"github.com/next-trace/scg-message-publisher/internal/config"
	"github.com/next-trace/scg-message-publisher/internal/logging"
)

type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string
	output     string
	version    string
}

// env is what every command runs with after flags are parsed.
type env struct {
	cfg    *config.Config
	loader *config.Loader
	log    *logging.Logger
}

// NewRootCommand builds the msgpub command tree.
func NewRootCommand(version string) *cobra.Command {
	o := &rootOptions{version: version}

	root := &cobra.Command{
		Use:   "msgpub",
		Short: "Message publisher gateway and consumer workers",
		Long: `msgpub accepts messages over HTTP and fans them out to a broker topic,
a pub/sub topic and a queue. Workers consume those destinations and log each message.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&o.configFile, "config", "", "config file (default: ./msgpub.yaml or /etc/msgpub/msgpub.yaml)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&o.logFormat, "log-format", "", "log format: json, text (overrides LOG_FORMAT)")

	root.AddCommand(
		newServeCommand(o),
		newWorkerCommand(o),
		newAdminCommand(o),
		newHealthcheckCommand(),
	)

	return root
}

// Execute runs the command tree until it returns or SIGINT/SIGTERM arrives.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(version)

	err := root.ExecuteContext(ctx)
	if err != nil {
		root.PrintErrln("Error:", err)
	}

	return err
}

// load reads the configuration, builds the logger and starts watching the config
// file. Only the log level is applied on reload.
func (o *rootOptions) load(cmd *cobra.Command) (*env, error) {
	loader, err := config.NewLoader(o.configFile)
	if err != nil {
		return nil, err
	}

	cfg, err := loader.Config()
	if err != nil {
		return nil, err
	}

	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}

	if cfg.App.Version == "" {
		cfg.App.Version = o.version
	}

	log := logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(log)

	if p := loader.Path(); p != "" {
		log.Info("config loaded", "file", p)
	}

	loader.OnChange(func(next *config.Config, ev fsnotify.Event, err error) {
		if err != nil {
			log.Warn("config reload failed", "file", ev.Name, logging.Error(err))
			return
		}

		if o.logLevel != "" {
			return
		}

		level := logging.ParseLevel(next.Logging.Level)
		if level != log.Level() {
			log.SetLevel(level)
			log.Info("log level changed", "level", level.String(), "file", ev.Name)
		}
	})

	return &env{cfg: cfg, loader: loader, log: log}, nil
}

// app builds the adapters for a command. The caller closes it.
func (e *env) app() (*bootstrap.App, error) {
	return bootstrap.New(e.cfg, e.log.Logger)
}
