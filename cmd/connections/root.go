package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goliatone/go-connections/adapters/gologger"
	promadapter "github.com/goliatone/go-connections/adapters/prometheus"
	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/providers"
	"github.com/goliatone/go-connections/security"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// app holds the flag values and the runtime built from them before a
// subcommand runs.
type app struct {
	getenv func(string) string

	configPath string
	storage    string
	dsn        string
	database   string
	appKey     string
	userID     string
	output     string
	logLevel   string
	logPretty  bool
	metrics    bool

	settings  settings
	service   *core.Service
	locator   *core.ProviderRegistry
	registry  *prom.Registry
	store     openedStore
	logger    core.Logger
	closed    bool
	errOutput io.Writer
}

func newApp(getenv func(string) string) *app {
	if getenv == nil {
		getenv = os.Getenv
	}
	return &app{getenv: getenv}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "connections",
		Short:         "Inspect and manage per-user service provider connections",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.shutdown(cmd.Context(), cmd.OutOrStdout())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML config file")
	flags.StringVar(&a.storage, "storage", "", "storage backend: memory, sqlite, postgres or mongo (env "+envStorage+")")
	flags.StringVar(&a.dsn, "dsn", "", "storage DSN or mongo URI (env "+envDSN+")")
	flags.StringVar(&a.database, "database", "", "mongo database name (env "+envDatabase+")")
	flags.StringVar(&a.appKey, "key", "", "application key used to encrypt secrets (env "+envAppKey+")")
	flags.StringVar(&a.userID, "user", "", "local user id (env "+envUser+")")
	flags.StringVarP(&a.output, "output", "o", outputText, "output format: text, json or yaml")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (env "+envLogLevel+", default warn)")
	flags.BoolVar(&a.logPretty, "log-pretty", false, "human readable logs")
	flags.BoolVar(&a.metrics, "metrics", false, "print operation counters on exit")

	root.AddCommand(
		newAddCommand(a),
		newListCommand(a),
		newPrimaryCommand(a),
		newOwnersCommand(a),
		newRemoveCommand(a),
		newRemoveAllCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	switch a.output {
	case outputText, outputJSON, outputYAML:
	default:
		return fmt.Errorf("unsupported output %q", a.output)
	}
	file, err := loadFileConfig(a.configPath)
	if err != nil {
		return err
	}
	a.settings = settings{
		Storage:  firstNonEmpty(a.storage, a.getenv(envStorage), file.Storage.Driver, storageMemory),
		DSN:      firstNonEmpty(a.dsn, a.getenv(envDSN), file.Storage.DSN),
		Database: firstNonEmpty(a.database, a.getenv(envDatabase), file.Storage.Database),
		AppKey:   firstNonEmpty(a.appKey, a.getenv(envAppKey)),
		UserID:   firstNonEmpty(a.userID, a.getenv(envUser)),
		LogLevel: firstNonEmpty(a.logLevel, a.getenv(envLogLevel), file.LogLevel, "warn"),
	}

	a.errOutput = cmd.ErrOrStderr()
	provider := gologger.NewZerologProvider(gologger.NewZerologLogger(gologger.ZerologOptions{
		Level:  a.settings.LogLevel,
		Pretty: a.logPretty,
		Out:    a.errOutput,
	}))
	a.logger = provider.GetLogger("cli")

	encryptor, err := a.encryptor()
	if err != nil {
		return err
	}
	locator, err := providers.NewRegistry()
	if err != nil {
		return err
	}
	a.locator = locator

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := openStorage(ctx, a.settings)
	if err != nil {
		return err
	}
	a.store = store

	a.registry = prom.NewRegistry()
	service, err := core.NewService(core.Config{},
		core.WithDatastore(store.store),
		core.WithProviderLocator(locator),
		core.WithTextEncryptor(encryptor),
		core.WithLoggerProvider(provider),
		core.WithMetricsRecorder(promadapter.NewRecorder(a.registry)),
		core.WithConfigProvider(core.NewCfgxConfigProvider(yamlConfigLoader{values: file.Connections})),
	)
	if err != nil {
		_ = store.close(ctx)
		return err
	}
	a.service = service
	a.logger.Debug("storage ready", "storage", a.settings.Storage, "service", service.Config().ServiceName)
	return nil
}

// encryptor derives the secret encryptor from the application key. Only
// memory storage may run without one.
func (a *app) encryptor() (core.TextEncryptor, error) {
	if a.settings.AppKey == "" {
		if a.settings.Storage != storageMemory {
			return nil, fmt.Errorf("an application key is required for %s storage (--key or %s)", a.settings.Storage, envAppKey)
		}
		a.logger.Warn("no application key set, secrets are stored in plaintext", "storage", a.settings.Storage)
		return security.NoOpTextEncryptor{}, nil
	}
	return security.NewAppKeyTextEncryptorFromString(a.settings.AppKey)
}

func (a *app) shutdown(ctx context.Context, out io.Writer) error {
	if a.closed || a.service == nil {
		return nil
	}
	a.closed = true
	if ctx == nil {
		ctx = context.Background()
	}
	var metricsErr error
	if a.metrics && a.registry != nil {
		metricsErr = printCounters(out, a.registry)
	}
	if err := a.store.close(ctx); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return metricsErr
}

func (a *app) requireUser() (string, error) {
	userID := strings.TrimSpace(a.settings.UserID)
	if userID == "" {
		return "", fmt.Errorf("a local user is required (--user or %s)", envUser)
	}
	return userID, nil
}
