package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telnet2/eventrouter/internal/bench"
	"github.com/telnet2/eventrouter/internal/benchstore"
	"github.com/telnet2/eventrouter/internal/config"
	"github.com/telnet2/eventrouter/internal/event"
	"github.com/telnet2/eventrouter/internal/logging"
	"github.com/telnet2/eventrouter/internal/ringbuffer"
	"github.com/telnet2/eventrouter/internal/router"
	"github.com/telnet2/eventrouter/internal/scope"
	"github.com/telnet2/eventrouter/internal/server"
)

var (
	benchProducers    int
	benchSubscribers  int
	benchTypes        int
	benchEvents       int
	benchEpochs       int
	benchScope        string
	benchWaitStrategy string
	benchStatsAddr    string
	benchJSON         bool
	benchQuery        string
	benchWatchConfig  bool
	benchRecord       string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure dispatch throughput",
	Long: `Run a load generator against fresh routers.

Each epoch creates a router, registers --types event types with --subscribers
subscribers each, and lets --producers goroutines publish --events events
apiece. The epoch ends once every subscriber has processed its share.

With --stats-addr the current router is exposed over HTTP while the
benchmark runs (GET /healthz, /stats, /types, websocket /stats/stream).

With --watch-config, edits to the log section of the configuration file
apply from the next epoch.`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchProducers, "producers", 4, "Number of publishing goroutines")
	benchCmd.Flags().IntVar(&benchSubscribers, "subscribers", 4, "Subscribers per event type")
	benchCmd.Flags().IntVar(&benchTypes, "types", 5, "Number of event types")
	benchCmd.Flags().IntVar(&benchEvents, "events", 250000, "Events per producer")
	benchCmd.Flags().IntVar(&benchEpochs, "epochs", 50, "Number of epochs")
	benchCmd.Flags().StringVar(&benchScope, "scope", "", "Router scope (default from config)")
	benchCmd.Flags().StringVar(&benchWaitStrategy, "wait-strategy", "", "Ring wait strategy (sleeping|yielding|blocking)")
	benchCmd.Flags().StringVar(&benchStatsAddr, "stats-addr", "", "Serve router stats on this address")
	benchCmd.Flags().BoolVar(&benchJSON, "json", false, "Print the summary as JSON")
	benchCmd.Flags().StringVar(&benchRecord, "record", "", "Record the run in this SQLite history database (default from config)")
	benchCmd.Flags().BoolVar(&benchWatchConfig, "watch-config", false, "Reload logging settings when the config file changes")
	benchCmd.Flags().StringVarP(&benchQuery, "query", "q", "", "jq expression applied to the JSON summary (implies --json)")
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg := *appConfig
	flags := cmd.Flags()
	if flags.Changed("producers") {
		cfg.Bench.Producers = benchProducers
	}
	if flags.Changed("subscribers") {
		cfg.Bench.Subscribers = benchSubscribers
	}
	if flags.Changed("types") {
		cfg.Bench.Types = benchTypes
	}
	if flags.Changed("events") {
		cfg.Bench.Events = benchEvents
	}
	if flags.Changed("epochs") {
		cfg.Bench.Epochs = benchEpochs
	}
	if flags.Changed("stats-addr") {
		cfg.Bench.StatsAddr = benchStatsAddr
	}
	if flags.Changed("record") {
		cfg.Bench.HistoryDB = benchRecord
	}
	if benchScope != "" {
		s, err := scope.Parse(benchScope)
		if err != nil {
			return err
		}
		cfg.Router.Scope = s
	}
	if benchWaitStrategy != "" {
		w, err := ringbuffer.ParseWaitStrategy(benchWaitStrategy)
		if err != nil {
			return err
		}
		cfg.Router.WaitStrategy = w
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	policy, err := cfg.Subscriber.QueuePolicy()
	if err != nil {
		return err
	}

	params := bench.Params{
		BenchConfig: cfg.Bench,
		Router:      cfg.Router,
		SubscriberOptions: []event.SubscriberOption{
			event.WithQueueCapacity(cfg.Subscriber.QueueCapacity, policy),
		},
		Timeout: cfg.Router.ShutdownTimeout.Std(),
	}

	if cfg.Bench.StatsAddr != "" {
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = cfg.Bench.StatsAddr
		srv := server.New(srvCfg, nil)
		addr, err := srv.Start()
		if err != nil {
			return fmt.Errorf("starting stats server: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logging.Warn().Err(err).Msg("stats server shutdown")
			}
		}()
		NewRenderer(cmd.ErrOrStderr(), noColor).Dim("Stats on http://%s/stats (stream: ws://%s/stats/stream)", addr, addr)
		params.OnRouter = func(r *router.EventRouter) { srv.SetSource(r) }
	}

	if benchWatchConfig && appConfigPath != "" {
		w, err := config.NewWatcher(appConfigPath, func(c *config.Config) {
			if err := applyLogConfig(c.Log); err != nil {
				logging.Warn().Err(err).Msg("keeping previous log settings")
			}
		})
		if err != nil {
			return fmt.Errorf("watching %s: %w", appConfigPath, err)
		}
		w.Start()
		defer w.Stop()
	}

	runner, err := bench.NewRunner(params)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if cfg.Bench.HistoryDB != "" {
		if err := recordRun(ctx, cfg.Bench.HistoryDB, sum); err != nil {
			return err
		}
	}

	out := NewRenderer(cmd.OutOrStdout(), noColor)
	if benchJSON || benchQuery != "" {
		return out.JSON(sum, benchQuery)
	}

	for _, res := range sum.Epochs {
		out.Result(res.Received == res.Dispatches, "Epoch #%d: processed %d events in %d ms (%.0f/s)",
			res.Epoch, res.Received, res.Elapsed.Milliseconds(), res.Throughput())
	}
	out.Line("")
	out.Heading("Avg: processed approx %d events in %d ms", sum.Dispatches, sum.Average.Milliseconds())
	return nil
}

func recordRun(ctx context.Context, path string, sum *bench.Summary) error {
	store, err := benchstore.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Save(ctx, sum); err != nil {
		return fmt.Errorf("recording run %s: %w", sum.RunID, err)
	}
	logging.Debug().Str("run", sum.RunID).Str("db", path).Msg("run recorded")
	return nil
}
