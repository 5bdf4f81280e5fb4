package prometheus

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
)

const (
	// defaultReadHeaderTimeout is the timeout for reading request headers.
	defaultReadHeaderTimeout = 10 * time.Second
	// defaultShutdownTimeout bounds the graceful stop in Serve.
	defaultShutdownTimeout = 5 * time.Second
)

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithRegistry serves reg instead of a registry holding the session and
// runtime metrics.
func WithRegistry(reg *prometheus.Registry) ExporterOption {
	return func(e *Exporter) {
		e.registry = reg
	}
}

// Exporter serves Prometheus metrics over HTTP next to a liveness probe.
type Exporter struct {
	addr     string
	registry *prometheus.Registry
}

// NewExporter creates an exporter for addr.
func NewExporter(addr string, opts ...ExporterOption) *Exporter {
	e := &Exporter{addr: addr}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = prometheus.NewRegistry()
		e.registry.MustRegister(allMetrics...)
		e.registry.MustRegister(collectors.NewGoCollector())
		e.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return e
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves /metrics and /health.
func (e *Exporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve listens on the exporter address until ctx is done, then shuts the
// server down gracefully.
func (e *Exporter) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.addr)
	if err != nil {
		return err
	}
	return e.serve(ctx, ln)
}

func (e *Exporter) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           e.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("metrics exporter listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
