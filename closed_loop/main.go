package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rate-ctrl-core/utils"
)

func main() {
	var (
		mode      = flag.String("mode", "", "sim|can (default: scenario meta.mode, else sim)")
		iface     = flag.String("iface", "vcan0", "SocketCAN interface name")
		mapPath   = flag.String("map", "config/can/can_map.csv", "Path to can_map.csv")
		scenPath  = flag.String("scenario", "closed_loop/scenarios/hover_step.json", "Scenario JSON file")
		logLevel  = flag.String("log", "info", "trace|debug|info|warn|error|critical")
		logPath   = flag.String("logfile", "closed_loop.log", "Log file path")
		metricsAt = flag.String("metrics", "", "Prometheus listen address, e.g. :9102 (empty = off)")
		plotPath  = flag.String("plot", "", "Trace plot output (png/svg/pdf), empty = off")
	)
	flag.Parse()

	log, err := utils.NewFileLogger(*logPath, utils.ParseLevel(*logLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open " + *logPath + ": " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *utils.ControlMetrics
	if *metricsAt != "" {
		metrics = utils.NewControlMetrics()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: *metricsAt, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server: %v", err)
			}
		}()
		defer srv.Close()
		log.Info("Serving metrics on %s/metrics", *metricsAt)
	}

	cfg := RunnerConfig{
		Mode:         *mode,
		Interface:    *iface,
		MapPath:      *mapPath,
		ScenarioPath: *scenPath,
		PlotPath:     *plotPath,
	}

	runner, err := NewRunner(ctx, cfg, log, metrics)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}
	defer runner.Close()

	if _, err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		os.Exit(1)
	}
}
