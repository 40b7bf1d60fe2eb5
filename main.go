package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	multinodetop "github.com/jondoveston/multinodetop/internal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "multinodetop [data-url]",
	Short: "Terminal dashboard for a pymultinode dispatcher",
	Long: `multinodetop polls a pymultinode dispatcher and shows active and total
CPUs, a rolling chart of usage, capacity and waiting tasks, and the
worker list.

The dispatcher status can be read from its JSON /data endpoint, from a
Prometheus text exposition, or from a Prometheus server scraping it.

Examples:
  multinodetop
  multinodetop http://dispatcher.lan:12456/data
  multinodetop --backend prometheus http://prometheus.lan:9090
  multinodetop --plain --interval 10s dispatcher.lan:12456
  MULTINODETOP_DATA_URL=http://dispatcher.lan:12456/data multinodetop`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Serve a simulated dispatcher to try the dashboard against",
	Long: `demo serves a simulated cluster on /data (JSON) and /metrics
(Prometheus text exposition).

Examples:
  multinodetop demo --listen :12456
  multinodetop http://localhost:12456/data`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runDemo,
}

func init() {
	rootCmd.Flags().String("data-url", multinodetop.DEFAULT_DATA_URL, "Dispatcher status URL")
	rootCmd.Flags().String("backend", multinodetop.BACKEND_AUTO, "Status backend: auto, json, exporter or prometheus")
	rootCmd.Flags().Duration("interval", multinodetop.PollDuration(), "Delay between the end of one round and the next")
	rootCmd.Flags().Duration("timeout", multinodetop.FetchTimeout(), "Time a single fetch may take")
	rootCmd.Flags().Int("window", multinodetop.RETENTION_WINDOW, "Number of rounds kept in the chart")
	rootCmd.Flags().Bool("plain", false, "Print a text report per round instead of the full-screen dashboard")
	rootCmd.Flags().String("log-file", "", "Write logs to this file")
	rootCmd.Flags().String("listen", "", "Serve multinodetop's own metrics on this address")
	rootCmd.Flags().Int("worker-rows", 0, "Height of the --plain worker table before it wraps into another column (0 = one column)")
	rootCmd.Flags().String("config", "", "Config file (default multinodetop.yaml in ., ~/.config/multinodetop, /etc/multinodetop)")
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")

	demoCmd.Flags().String("listen", ":12456", "Address to serve the simulated dispatcher on")
	demoCmd.Flags().Int("workers", 4, "Number of simulated workers")
	demoCmd.Flags().Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
	demoCmd.Flags().Duration("step", 2*time.Second, "Simulation tick")
	rootCmd.AddCommand(demoCmd)

	// Bind flags to Viper keys (dashes in flags become underscores in viper)
	for _, key := range []string{"data_url", "backend", "interval", "timeout", "window", "plain", "log_file", "listen", "worker_rows"} {
		if err := viper.BindPFlag(key, rootCmd.Flags().Lookup(flagName(key))); err != nil {
			log.Fatalf("failed to bind %s: %v", key, err)
		}
	}

	viper.SetEnvPrefix("multinodetop")
	viper.AutomaticEnv()
	multinodetop.SetDefaults(viper.GetViper())
	multinodetop.AddConfigPaths(viper.GetViper())
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

func run(cmd *cobra.Command, args []string) error {
	if versionFlag, _ := cmd.Flags().GetBool("version"); versionFlag {
		fmt.Printf("multinodetop version %s\n", version)
		return nil
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
	}

	// A positional URL only applies when neither the flag nor the env var set one
	if len(args) == 1 && !cmd.Flags().Changed("data-url") && os.Getenv("MULTINODETOP_DATA_URL") == "" {
		viper.Set("data_url", args[0])
	}

	cfg, err := multinodetop.LoadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Printf("Starting multinodetop %s", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := selectSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Printf("Using %s backend: %s", source.Backend, source.Name)

	var observers multinodetop.Surfaces
	if cfg.Listen != "" {
		// the session polls through this cache, so /metrics republishes what is on screen
		cache := multinodetop.NewCache(source.Fetcher)
		source.Fetcher = cache

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		)
		server := multinodetop.NewMetricsServer(
			multinodetop.WithAddr(cfg.Listen),
			multinodetop.WithRegistry(reg),
			multinodetop.WithServerLogger(logger),
		)
		metrics := multinodetop.NewRoundMetrics(reg, cache)
		observers.Extra = append(observers.Extra, metrics)
		observers.Stale = append(observers.Stale, metrics)
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Stop(shutdownCtx); err != nil {
				logger.Printf("Metrics server shutdown: %v", err)
			}
		}()
	}

	if cfg.Plain {
		return multinodetop.RunPlain(ctx, cfg, source, logger, os.Stdout, observers)
	}
	return multinodetop.RunTerminal(ctx, cfg, source, logger, observers)
}

// newLogger logs to the configured file, to stderr in plain mode, and nowhere
// while the full-screen dashboard owns the terminal
func newLogger(cfg *multinodetop.Config) (*log.Logger, func(), error) {
	flags := log.LstdFlags | log.Lmsgprefix
	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return log.New(f, "multinodetop: ", flags), func() { _ = f.Close() }, nil
	case cfg.Plain:
		return log.New(os.Stderr, "multinodetop: ", flags), func() {}, nil
	default:
		return log.New(io.Discard, "", 0), func() {}, nil
	}
}

func selectSource(ctx context.Context, cfg *multinodetop.Config, logger *log.Logger) (multinodetop.DetectedSource, error) {
	u, err := cfg.URL()
	if err != nil {
		return multinodetop.DetectedSource{}, err
	}
	if cfg.Backend != multinodetop.BACKEND_AUTO {
		return multinodetop.NewSource(cfg.Backend, u, cfg.Timeout, logger)
	}
	source, err := multinodetop.DetectSource(ctx, u, cfg.Timeout, logger)
	if errors.Is(err, multinodetop.ErrNoSource) {
		return source, fmt.Errorf("%w (tried JSON, exposition and Prometheus backends; use --backend to pick one)", err)
	}
	return source, err
}

func runDemo(cmd *cobra.Command, _ []string) error {
	listen, _ := cmd.Flags().GetString("listen")
	workers, _ := cmd.Flags().GetInt("workers")
	seed, _ := cmd.Flags().GetUint64("seed")
	step, _ := cmd.Flags().GetDuration("step")
	if workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", multinodetop.ErrInvalidConfig)
	}
	if step <= 0 {
		return fmt.Errorf("%w: step must be positive", multinodetop.ErrInvalidConfig)
	}

	logger := log.New(os.Stderr, "multinodetop demo: ", log.LstdFlags|log.Lmsgprefix)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := multinodetop.NewDemoServer(listen, multinodetop.NewDemoCluster(workers, seed), step, logger)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listen, err)
	}
	logger.Printf("Simulating %d workers, status on http://%s/data", workers, server.Addr())

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}
