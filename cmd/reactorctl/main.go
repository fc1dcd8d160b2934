// Command reactorctl is a thin illustration of wiring the reactor engine
// into a service process: config + logger + telemetry + metrics around a
// small hard-coded reactor. Just enough to exercise the ambient stack
// end to end.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/reactorrun/reactor/internal/platform/config"
	"github.com/reactorrun/reactor/internal/platform/logger"
	"github.com/reactorrun/reactor/internal/platform/metrics"
	"github.com/reactorrun/reactor/internal/platform/telemetry"
	"github.com/reactorrun/reactor/pkg/reactor"
	rmw "github.com/reactorrun/reactor/pkg/reactor/middleware"
)

const serviceName = "reactorctl"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reactorctl: config:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger)
	log.Info("starting reactorctl", "version", cfg.Version)

	tel, err := telemetry.New(telemetry.Config{
		ServiceName:    serviceName,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
	})
	if err != nil {
		log.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer tel.Close()

	m := metrics.NewMetrics("reactor", tel.Registerer())

	if cfg.Telemetry.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", tel.MetricsHandler())
		go func() {
			if err := http.ListenAndServe(":9464", mux); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	r := buildSignupReactor()
	r.AddMiddleware(rmw.NewLogging(log))
	r.AddMiddleware(rmw.NewMetrics(m))
	if cfg.Telemetry.TracingEnabled {
		r.AddMiddleware(rmw.NewTelemetry(tel.Tracer()))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := reactor.DefaultOptions()
	if cfg.Executor.MaxConcurrency > 0 {
		opts.MaxConcurrency = cfg.Executor.MaxConcurrency
	}
	opts.HaltTimeout = cfg.Executor.HaltTimeout
	opts.AsyncEnabled = cfg.Executor.AsyncEnabled

	value, halted, err := reactor.Run(ctx, r, map[string]interface{}{
		"email": "marty@mcfly.example",
		"plan":  "pro",
	}, opts)

	switch {
	case err != nil:
		log.Error("reactor run failed", "error", err)
		os.Exit(1)
	case halted != nil:
		log.Info("reactor halted; resume to continue")
	default:
		log.Info("reactor completed", "result", fmt.Sprintf("%v", value))
	}
}
