// Command vthreads runs the concurrency demonstrations in sequence: a
// single unit, a future, a paired line server and client, and a bulk
// fan-out of tasks.
package main

import (
	"context"
	"flag"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"

	"github.com/jmp/vthreads"
	"github.com/jmp/vthreads/bulk"
	"github.com/jmp/vthreads/config"
	"github.com/jmp/vthreads/scenario"
	"github.com/jmp/vthreads/server"
	"github.com/jmp/vthreads/stats"
)

func main() {
	var (
		configPath = flag.String("config", "vthreads.toml", "path to the TOML configuration")
		port       = flag.Int("port", -1, "server port, overriding the configuration")
		logLevel   = flag.String("log-level", "", "log level, overriding the configuration")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [port]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *port >= 0 {
		cfg.Port = *port
	}
	if flag.NArg() > 0 {
		p, err := strconv.Atoi(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", flag.Arg(0), err)
			os.Exit(2)
		}
		cfg.Port = p
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := config.NewLogger(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder, closeRecorder, err := cfg.Stats.OpenRecorder(ctx)
	if err != nil {
		logger.Err().
			Err(err).
			Log("stats unavailable")
		return err
	}
	defer func() {
		if err := closeRecorder(); err != nil {
			logger.Warning().
				Err(err).
				Log("closing stats")
		}
	}()

	mode, err := bulk.ParseMode(cfg.BulkMode)
	if err != nil {
		return err
	}

	common := []scenario.Option{
		scenario.WithLogger(logger),
		scenario.WithRecorder(recorder),
	}

	runner := scenario.NewRunner(logger,
		scenario.NewEasy(common...),
		scenario.NewFuture(common...),
		scenario.NewClientServer(cfg.Host, cfg.Port, append(common,
			scenario.WithServerOptions(
				server.WithSentinel(cfg.Sentinel),
				server.WithEcho(cfg.Echo),
				server.WithDrainTimeout(cfg.DrainTimeout),
				server.WithMaxConns(cfg.MaxConns),
			),
		)...),
		scenario.NewTasks(cfg.BulkTasks, append(common,
			scenario.WithOutput(os.Stdout),
			scenario.WithBulkOptions(
				bulk.WithMode(mode),
				bulk.WithBatchSize(cfg.BulkBatchSize),
				bulk.WithMaxUnits(cfg.MaxUnits),
			),
		)...),
	)

	err = runner.Run(ctx)
	logTotals(ctx, logger, recorder)
	return err
}

// logTotals logs the recorded event counts, in name order.
func logTotals(ctx context.Context, logger *vthreads.Logger, recorder stats.Recorder) {
	var totals map[string]int64
	switch r := recorder.(type) {
	case *stats.Memory:
		totals = make(map[string]int64)
		for k, v := range r.Totals() {
			totals[k.String()] = v
		}

	case *stats.Redis:
		var err error
		totals, err = r.Totals(ctx)
		if err != nil {
			logger.Warning().
				Err(err).
				Log("reading stats")
			return
		}

	default:
		return
	}

	ev := logger.Info()
	for _, k := range slices.Sorted(maps.Keys(totals)) {
		ev = ev.Int64(k, totals[k])
	}
	ev.Log("stats")
}
