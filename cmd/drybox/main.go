// Command drybox runs a single DryBox scenario to completion, writing its
// deterministic artifacts into --out, per spec.md §6.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/spf13/pflag"

	"github.com/Icing-Project/DryBox"
	_ "github.com/Icing-Project/DryBox/internal/adapter/builtin"
	"github.com/Icing-Project/DryBox/internal/scenario"
	"github.com/Icing-Project/DryBox/kernel/adapter"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		scenarioPath = pflag.String("scenario", "", "path to a scenario YAML file")
		leftSpec     = pflag.String("left", "", "left adapter spec (path[:ClassName])")
		rightSpec    = pflag.String("right", "", "right adapter spec (path[:ClassName])")
		outDir       = pflag.String("out", "./drybox-out", "artifacts output directory")
		tickMsFlag   = pflag.Int("tick-ms", 0, "override scenario tick_ms")
		seedFlag     = pflag.Int64("seed", -1, "override scenario seed")
		noUI         = pflag.Bool("no-ui", true, "disable any graphical front-end (always true; no-op flag kept for CLI parity)")
		metricsAddr  = pflag.String("metrics-addr", "", "serve live rolling bearer stats as Prometheus metrics on this address (e.g. :9090); disabled if empty")
	)
	pflag.Parse()
	_ = noUI

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if *scenarioPath == "" {
		logger.Error("missing required flag", "flag", "--scenario")
		return drybox.ExitScenarioError
	}

	sc, err := scenario.Load(*scenarioPath)
	if err != nil {
		logger.Error("scenario load failed", "error", err)
		return drybox.ExitCode(err)
	}
	if *tickMsFlag > 0 {
		sc.TickMs = int64(*tickMsFlag)
	}
	if *seedFlag >= 0 {
		sc.Seed = uint64(*seedFlag)
	}
	if *leftSpec != "" {
		sc.Left.Adapter = *leftSpec
	}
	if *rightSpec != "" {
		sc.Right.Adapter = *rightSpec
	}
	sc.RunID = xid.New().String()

	log := logger.With("run_id", sc.RunID, "seed", sc.Seed, "mode", string(sc.Mode))

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Error("failed to create output directory", "error", err)
		return drybox.ExitScenarioError
	}

	left, err := adapter.Resolve(sc.Left.Adapter)
	if err != nil {
		log.Error("left adapter resolve failed", "error", err)
		return drybox.ExitEndpointError
	}
	right, err := adapter.Resolve(sc.Right.Adapter)
	if err != nil {
		log.Error("right adapter resolve failed", "error", err)
		return drybox.ExitEndpointError
	}

	if err := scenario.WriteResolved(fmt.Sprintf("%s/scenario.resolved.yaml", *outDir), sc); err != nil {
		log.Error("failed to write resolved scenario", "error", err)
		return drybox.ExitScenarioError
	}

	runner, err := drybox.NewRunner(sc, left, right)
	if err != nil {
		log.Error("runner init failed", "error", err)
		return drybox.ExitCode(err)
	}

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(runner.Collector())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
		log.Info("serving prometheus metrics", "addr", *metricsAddr)
	}

	log.Info("run starting", "duration_ms", sc.DurationMs, "tick_ms", sc.TickMs)
	exitCode, err := runner.Run(*outDir)
	if err != nil {
		log.Error("run failed", "error", err, "exit_code", exitCode)
		return exitCode
	}
	log.Info("run complete", "exit_code", exitCode)
	return exitCode
}
