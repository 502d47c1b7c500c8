package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/matchforge/configurator/internal/bootstrap"
	"github.com/matchforge/configurator/internal/client"
	"github.com/matchforge/configurator/internal/httpd"
	"github.com/matchforge/configurator/internal/notify"
	"github.com/matchforge/configurator/pkg/config"
	"github.com/matchforge/configurator/pkg/dburl"
	"github.com/matchforge/configurator/pkg/engine/remote"
	"github.com/matchforge/configurator/pkg/engine/sqlstore"
	"github.com/matchforge/configurator/pkg/logger"
	"github.com/matchforge/configurator/pkg/metrics"
	"github.com/matchforge/configurator/pkg/observability"
)

// Overridden at build time via -ldflags "-X main.version=...".
var (
	version   = "1.0.0"
	buildDate = "unknown"
)

const (
	liveEngineName  = "configurator-engine"
	shutdownTimeout = 10 * time.Second
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := newRootCommand()

	if len(os.Args) == 1 {
		args, ok := argsFromEnvironment(root)
		if !ok {
			return
		}
		root.SetArgs(args)
	}

	if err := root.Execute(); err != nil {
		logger.Error("program terminated with error", zap.Error(err))
		os.Exit(1)
	}
}

// argsFromEnvironment maps MATCHFORGE_SUBCOMMAND onto CLI arguments when
// the process was started without any; containers select the subcommand
// this way. An unknown value gets a warning and the help text.
func argsFromEnvironment(root *cobra.Command) ([]string, bool) {
	switch subcommand := os.Getenv("MATCHFORGE_SUBCOMMAND"); subcommand {
	case "service", "sleep", "version", "config", "acceptance-test":
		return []string{subcommand}, true
	case "":
		_ = root.Help()
		if os.Getenv("MATCHFORGE_DOCKER_LAUNCHED") != "" {
			return []string{"sleep"}, true
		}
		return nil, false
	default:
		logger.Warn("Bad MATCHFORGE_SUBCOMMAND", zap.String("subcommand", subcommand))
		_ = root.Help()
		return nil, false
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "configurator",
		Short: "HTTP facade over the MatchForge engine's configuration store",
		Long: `The configurator exposes the MatchForge record-matching engine's versioned
configuration store over HTTP: operators list and register data sources, and
every change is validated against a throwaway engine before it becomes the
active configuration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.AddFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "service",
		Short: "Serve the configuration HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "sleep",
		Short: "Sleep. Used for container debugging",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSleep(cmd)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("configurator v%s (updated %s)\n", version, buildDate)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the resolved settings as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(cmd)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "acceptance-test",
		Short: "Log entry and exit only. Used as a container acceptance probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAcceptanceTest(cmd)
		},
	})

	return root
}

// runService wires the store, engine, client, notifier, and HTTP server,
// then serves until a signal arrives.
func runService(cmd *cobra.Command) error {
	settings, err := config.Resolve(cmd.Flags())
	if err != nil {
		return err
	}
	settings.Subcommand = "service"
	initLogger(settings)

	log := logger.Get().With(
		zap.String("component", "service"),
		zap.String("subcommand", settings.Subcommand))

	if err := settings.Validate(); err != nil {
		return err
	}

	start := logEntry(log, settings)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	environment := "production"
	samplingRate := 0.1
	if settings.Debug {
		environment = "development"
		samplingRate = 1
	}
	if err := observability.Init(observability.Config{
		ServiceName:    "matchforge-configurator",
		ServiceVersion: version,
		Environment:    environment,
		SamplingRate:   samplingRate,
	}); err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		if err := observability.Shutdown(context.Background()); err != nil {
			log.Warn("could not shut down tracing", zap.Error(err))
		}
	}()

	// The store always connects through the canonical URL; an internal
	// database overrides it with the synthesized sqlite URL.
	storeURL := settings.DatabaseURLGeneric
	if settings.InternalDatabase != "" {
		storeURL = settings.DatabaseURLSpecific
	}
	components, err := dburl.Parse(storeURL)
	if err != nil {
		return err
	}

	store, err := sqlstore.Open(ctx, components)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("could not close configuration store", zap.Error(err))
		}
	}()

	factory, err := remote.NewFactory(settings.EngineURL, settings.EngineAPIVersion)
	if err != nil {
		return err
	}

	if err := bootstrap.New(store).Run(ctx); err != nil {
		return err
	}
	if configID, ok, err := store.GetDefaultConfigID(ctx); err == nil && ok {
		metrics.ActiveConfigID.Set(float64(configID))
	}

	settingsJSON, err := settings.EngineSettingsJSON()
	if err != nil {
		return err
	}

	live, err := factory.NewEngine(liveEngineName)
	if err != nil {
		return err
	}
	if err := live.Initialize(ctx, liveEngineName, settingsJSON, settings.Debug); err != nil {
		return err
	}
	defer func() {
		if err := live.Destroy(context.Background()); err != nil {
			log.Warn("could not destroy engine handle", zap.Error(err))
		}
	}()

	notifier, err := newNotifier(settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			log.Warn("could not close notifier", zap.Error(err))
		}
	}()

	configClient, err := client.New(client.Options{
		Store:        store,
		Factory:      factory,
		Live:         live,
		Notifier:     notifier,
		SettingsJSON: settingsJSON,
		Verbose:      settings.Debug,
	})
	if err != nil {
		return err
	}

	server := httpd.NewServer(httpd.Options{
		Addr:           settings.Addr(),
		Service:        configClient,
		MaxConnections: settings.MaxConnections,
	})

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			log.Warn("could not drain http server", zap.Error(err))
		}
		if err := <-serveErr; err != nil {
			return err
		}
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	logExit(log, settings, start)
	return nil
}

func runSleep(cmd *cobra.Command) error {
	settings, err := config.Resolve(cmd.Flags())
	if err != nil {
		return err
	}
	settings.Subcommand = "sleep"
	initLogger(settings)

	log := logger.Get().With(zap.String("subcommand", settings.Subcommand))
	start := logEntry(log, settings)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if settings.SleepTimeInSeconds > 0 {
		log.Info("Sleeping", zap.Int("seconds", settings.SleepTimeInSeconds))
		select {
		case <-time.After(time.Duration(settings.SleepTimeInSeconds) * time.Second):
		case <-ctx.Done():
		}
	} else {
		for done := false; !done; {
			log.Info("Sleeping infinitely.")
			select {
			case <-time.After(time.Hour):
			case <-ctx.Done():
				done = true
			}
		}
	}

	logExit(log, settings, start)
	return nil
}

func runConfig(cmd *cobra.Command) error {
	settings, err := config.Resolve(cmd.Flags())
	if err != nil {
		return err
	}
	settings.Subcommand = "config"

	out, err := yaml.Marshal(settings.Redacted())
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func runAcceptanceTest(cmd *cobra.Command) error {
	settings, err := config.Resolve(cmd.Flags())
	if err != nil {
		return err
	}
	settings.Subcommand = "acceptance-test"
	initLogger(settings)

	log := logger.Get().With(zap.String("subcommand", settings.Subcommand))
	start := logEntry(log, settings)
	logExit(log, settings, start)
	return nil
}

// newNotifier picks the activation event publisher: Kafka when brokers
// are configured, otherwise a no-op.
func newNotifier(settings *config.Settings) (notify.Notifier, error) {
	if settings.KafkaBootstrapServers == "" {
		return notify.Nop{}, nil
	}
	return notify.NewKafka(settings.KafkaBootstrapServers, settings.KafkaTopic)
}

func initLogger(settings *config.Settings) {
	level := settings.LogLevel
	if settings.Debug {
		level = "debug"
	}
	if err := logger.Init(logger.Config{Level: level, Encoding: "json"}); err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logging: %v\n", err)
	}
}

// logEntry emits the entry line. Settings are redacted unless debug
// logging is on.
func logEntry(log *zap.Logger, settings *config.Settings) time.Time {
	log.Info("Enter", zap.Any("settings", loggable(settings)))
	return time.Now()
}

func logExit(log *zap.Logger, settings *config.Settings, start time.Time) {
	log.Info("Exit",
		zap.Any("settings", loggable(settings)),
		zap.Duration("elapsed", time.Since(start)))
}

func loggable(settings *config.Settings) *config.Settings {
	if settings.Debug {
		return settings
	}
	return settings.Redacted()
}
