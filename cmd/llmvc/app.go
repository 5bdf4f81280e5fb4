package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wlyh514/discord-llmvc-bot/pkg/config"
	"github.com/wlyh514/discord-llmvc-bot/runtime/agent"
	"github.com/wlyh514/discord-llmvc-bot/runtime/events"
	"github.com/wlyh514/discord-llmvc-bot/runtime/identity"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
	"github.com/wlyh514/discord-llmvc-bot/runtime/metrics/prometheus"
	"github.com/wlyh514/discord-llmvc-bot/runtime/session"
	"github.com/wlyh514/discord-llmvc-bot/runtime/stt"
	"github.com/wlyh514/discord-llmvc-bot/runtime/telemetry"
	"github.com/wlyh514/discord-llmvc-bot/runtime/transport/wsbridge"
	"github.com/wlyh514/discord-llmvc-bot/runtime/tts"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// app owns every long-lived component of `llmvc serve`.
type app struct {
	cfg *config.Config
	ctx context.Context //nolint:containedctx // parent of sessions started from gateway callbacks

	bus      *events.EventBus
	bridge   *wsbridge.Server
	manager  *session.Manager
	exporter *prometheus.Exporter // nil when metrics are disabled

	tracerProvider *sdktrace.TracerProvider // nil when tracing is disabled
	spans          *telemetry.OTelEventListener
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, ctx: ctx, bus: events.NewEventBus()}
	a.bus.SubscribeAll(events.LogListener())

	if cfg.Metrics.Enabled {
		a.exporter = prometheus.NewExporter(cfg.Metrics.Listen)
		a.bus.SubscribeAll(prometheus.NewMetricsListener().Listener())
	}
	if err := a.setupTracing(ctx); err != nil {
		return nil, err
	}

	svc, newAgent, err := a.services()
	if err != nil {
		a.shutdown(ctx)
		return nil, err
	}

	a.bridge = wsbridge.NewServer(cfg.BridgeConfig(), a.onConnect)
	svc.Identity = identity.NewCache(a.bridge.Roster(), cfg.Identity.CacheTTL)
	a.manager = session.NewManager(svc, newAgent, cfg.SessionConfig())
	return a, nil
}

func (a *app) setupTracing(ctx context.Context) error {
	tc := a.cfg.Tracing
	if !tc.Enabled {
		return nil
	}
	if err := telemetry.SetupPropagation(tc.Propagators...); err != nil {
		return err
	}
	tp, err := telemetry.NewTracerProvider(ctx, tc.Endpoint, tc.ServiceName)
	if err != nil {
		return err
	}
	otel.SetTracerProvider(tp)
	a.tracerProvider = tp
	a.spans = telemetry.NewOTelEventListener(telemetry.Tracer(tp))
	a.bus.SubscribeAll(a.spans.OnEvent)
	logger.Info("tracing enabled", "endpoint", tc.Endpoint, "propagators", tc.Propagators)
	return nil
}

// services builds the OpenAI-backed collaborators shared by all sessions.
func (a *app) services() (session.Services, session.AgentFactory, error) {
	oc := a.cfg.OpenAI

	var sttOpts []stt.OpenAIOption
	var ttsOpts []tts.OpenAIOption
	var agentOpts []agent.OpenAIOption
	if oc.BaseURL != "" {
		sttOpts = append(sttOpts, stt.WithOpenAIBaseURL(oc.BaseURL))
		ttsOpts = append(ttsOpts, tts.WithOpenAIBaseURL(oc.BaseURL))
		agentOpts = append(agentOpts, agent.WithBaseURL(oc.BaseURL))
	}
	if a.cfg.Speech.STTModel != "" {
		sttOpts = append(sttOpts, stt.WithOpenAIModel(a.cfg.Speech.STTModel))
	}

	var transcriber stt.Service = stt.NewOpenAI(oc.APIKey, sttOpts...)
	if a.cfg.Speech.VAD.Enabled {
		gated, err := stt.NewGated(transcriber, a.cfg.VADParams())
		if err != nil {
			return session.Services{}, nil, fmt.Errorf("invalid speech gate: %w", err)
		}
		transcriber = gated
	}

	if sc := a.cfg.Agent.Search; sc.Enabled {
		var searchOpts []agent.DuckDuckGoOption
		if sc.BaseURL != "" {
			searchOpts = append(searchOpts, agent.WithSearchBaseURL(sc.BaseURL))
		}
		agentOpts = append(agentOpts, agent.WithSearcher(agent.NewDuckDuckGo(searchOpts...)))
	}

	agentCfg := a.cfg.AgentConfig()
	newAgent := func() agent.Agent {
		return agent.NewOpenAI(oc.APIKey, agentCfg, agentOpts...)
	}

	return session.Services{
		STT:    transcriber,
		TTS:    tts.NewOpenAI(oc.APIKey, ttsOpts...),
		Events: a.bus,
	}, newAgent, nil
}

// onConnect starts a session for a new gateway connection.
func (a *app) onConnect(c *wsbridge.Conn) {
	if _, err := a.manager.StartSession(a.ctx, c); err != nil {
		logger.Error("failed to start voice session", "connection_id", c.ID(), "error", err)
	}
}

// run serves the gateway on ln, and the metrics exporter when enabled,
// until ctx is done.
func (a *app) run(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	mux := http.NewServeMux()
	mux.Handle(a.cfg.Server.Path, otelhttp.NewHandler(a.bridge, "gateway"))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	g.Go(func() error {
		logger.Info("gateway listening", "addr", ln.Addr().String(), "path", a.cfg.Server.Path)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway server: %w", err)
		}
		return nil
	})
	if a.exporter != nil {
		g.Go(func() error { return a.exporter.Serve(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		a.shutdown(shutdownCtx)
		return err
	})

	err := g.Wait()
	logger.Info("llmvc stopped")
	return err
}

// shutdown ends every session and flushes observability sinks.
func (a *app) shutdown(ctx context.Context) {
	if a.manager != nil {
		a.manager.EndAll()
	}
	if a.bridge != nil {
		a.bridge.Close()
	}
	a.bus.Close()
	if a.spans != nil {
		a.spans.Flush()
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}
}
