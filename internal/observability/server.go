package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// meterName is the instrumentation scope for translate-loop instruments.
const meterName = "lingfang"

// MetricsServer exposes Prometheus metrics plus health and readiness
// endpoints for a running translation loop.
type MetricsServer struct {
	provider *sdkmetric.MeterProvider
	server   *http.Server
	listener net.Listener
}

// StartMetricsServer starts an HTTP server at addr with /metrics, /healthz,
// and /readyz endpoints. Each call creates an independent Prometheus
// registry to avoid collector conflicts when called multiple times.
// Instruments must be created from [MetricsServer.Meter]; the global meter
// provider does not feed the scrape endpoint.
func StartMetricsServer(addr string, checks ...ReadyCheck) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(
		promexporter.WithRegisterer(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	// Attach the exporter as a reader so instruments created from Meter
	// are collected on every scrape.
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", HealthHandler())
	mux.Handle("/readyz", ReadyHandler(checks...))

	var lc net.ListenConfig

	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		shutdownErr := provider.Shutdown(context.Background())

		return nil, errors.Join(fmt.Errorf("listen on %s: %w", addr, err), shutdownErr)
	}

	srv := &http.Server{Handler: mux}

	go func() {
		serveErr := srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Warn("metrics server stopped", "error", serveErr)
		}
	}()

	return &MetricsServer{provider: provider, server: srv, listener: listener}, nil
}

// Meter returns the meter backing the scrape endpoint.
func (ms *MetricsServer) Meter() metric.Meter {
	return ms.provider.Meter(meterName)
}

// Addr returns the address the server is listening on.
func (ms *MetricsServer) Addr() string {
	return ms.listener.Addr().String()
}

// Close gracefully shuts down the HTTP server and the meter provider behind it.
func (ms *MetricsServer) Close() error {
	shutdownErr := ms.server.Shutdown(context.Background())
	providerErr := ms.provider.Shutdown(context.Background())

	if err := errors.Join(shutdownErr, providerErr); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}

	return nil
}
