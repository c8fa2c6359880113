// Package app wires the voxmerge subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the merger, the
// broadcast hub, the optional recorder and the HTTP server; Run starts them
// and blocks until the context is cancelled; Shutdown tears everything down.
//
// For testing, inject doubles via functional options (WithMixer,
// WithMetrics, WithListener). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxmerge/internal/config"
	"github.com/MrWong99/voxmerge/internal/health"
	"github.com/MrWong99/voxmerge/internal/merger"
	"github.com/MrWong99/voxmerge/internal/observe"
	"github.com/MrWong99/voxmerge/internal/recorder"
	"github.com/MrWong99/voxmerge/internal/transport/ws"
	"github.com/MrWong99/voxmerge/pkg/audio"
)

const (
	// recorderBuffer is the hub buffer of the recorder subscription, in
	// chunks (about 23 s at the default layout).
	recorderBuffer = 1024

	// serverShutdownTimeout bounds the graceful HTTP shutdown in Run.
	serverShutdownTimeout = 5 * time.Second
)

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	metrics        *observe.Metrics
	metricsHandler http.Handler
	mixer          audio.Mixer

	// Subsystems: initialised in New, torn down in Shutdown.
	merger   *merger.Merger
	hub      *ws.Hub
	recorder *recorder.Recorder
	server   *http.Server
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics sets the metric instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics. Without it /metrics is not served.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithMixer replaces the merger's default sum-and-clip mixer.
func WithMixer(m audio.Mixer) Option {
	return func(a *App) { a.mixer = m }
}

// WithListener serves HTTP on l instead of listening on the configured
// address.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. All resources are acquired synchronously:
// on error, anything acquired so far is released.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	// ── 1. Merger ────────────────────────────────────────────────────────
	if err := a.initMerger(); err != nil {
		return nil, fmt.Errorf("app: init merger: %w", err)
	}

	// ── 2. Broadcast hub ─────────────────────────────────────────────────
	a.hub = ws.NewHub(a.merger.Output(), a.metrics)

	// ── 3. Recorder (optional) ───────────────────────────────────────────
	if cfg.Recording.Enabled() {
		rec, err := recorder.Create(cfg.Recording.Path, cfg.Audio.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("app: init recorder: %w", err)
		}
		a.recorder = rec
		a.closers = append(a.closers, rec.Close)
	}

	// ── 4. HTTP server ───────────────────────────────────────────────────
	if err := a.initServer(ctx); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	slog.Info("app initialised",
		"layout", a.merger.Layout().String(),
		"max_streams", a.merger.MaxStreams(),
		"addr", a.Addr(),
		"recording", cfg.Recording.Path,
	)
	return a, nil
}

func (a *App) initMerger() error {
	opts := []merger.Option{
		merger.WithLayout(a.cfg.Audio.Layout()),
		merger.WithMaxStreams(a.cfg.Audio.MaxStreams),
		merger.WithMetrics(a.metrics),
	}
	if a.mixer != nil {
		opts = append(opts, merger.WithMixer(a.mixer))
	}
	m, err := merger.New(opts...)
	if err != nil {
		return err
	}
	a.merger = m

	reg, err := a.metrics.ObserveSinkDepth(m.Output().Len)
	if err != nil {
		return fmt.Errorf("observe sink depth: %w", err)
	}
	a.closers = append(a.closers, reg.Unregister)
	return nil
}

func (a *App) initServer(ctx context.Context) error {
	mux := http.NewServeMux()
	health.New(health.Running("merger", a.merger)).Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	mux.HandleFunc("GET /streams", a.listStreams)
	mux.Handle("GET /streams/{id}", ws.NewIngestHandler(a.merger, a.metrics))
	mux.Handle("GET /listen", ws.NewListenHandler(a.hub, a.cfg.Server.ListenerBuffer))

	a.server = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if a.listener == nil {
		var lc net.ListenConfig
		l, err := lc.Listen(ctx, "tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return err
		}
		a.listener = l
	}
	return nil
}

// streamsResponse is the JSON body of GET /streams.
type streamsResponse struct {
	Streams    []string       `json:"streams"`
	Buffered   map[string]int `json:"buffered"`
	MaxStreams int            `json:"max_streams"`
	Running    bool           `json:"running"`
}

func (a *App) listStreams(w http.ResponseWriter, _ *http.Request) {
	ids := a.merger.Streams()
	resp := streamsResponse{
		Streams:    ids,
		Buffered:   make(map[string]int, len(ids)),
		MaxStreams: a.merger.MaxStreams(),
		Running:    a.merger.Running(),
	}
	for _, id := range ids {
		// A stream deregistered since Streams() is simply left out.
		if n, err := a.merger.Buffered(id); err == nil {
			resp.Buffered[id] = n
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(resp)
}

// Addr returns the address the HTTP server listens on.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Merger exposes the merger, e.g. for in-process producers.
func (a *App) Merger() *merger.Merger { return a.merger }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the merge loop, the hub, the recorder and the HTTP server, and
// blocks until ctx is cancelled or a component fails. On cancellation Run
// returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	a.merger.Start()
	defer a.merger.Stop()

	eg, egCtx := errgroup.WithContext(ctx)

	// Subscribe before the hub starts so the recording misses nothing.
	if a.recorder != nil {
		sub := a.hub.Subscribe("recorder", recorderBuffer)
		eg.Go(func() error { return a.recorder.Run(egCtx, sub.C) })
	}

	eg.Go(func() error { return a.hub.Run(egCtx) })

	eg.Go(func() error {
		if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(egCtx), serverShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("app: http shutdown", "err", err)
		}
		return nil
	})

	slog.Info("app running", "addr", a.Addr())
	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the merger and the HTTP server and runs the remaining
// closers in order. If ctx expires first, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.merger.Stop()
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// release releases resources acquired by a failed New.
func (a *App) release() {
	if a.listener != nil {
		_ = a.listener.Close()
	}
	for _, c := range a.closers {
		_ = c()
	}
}
