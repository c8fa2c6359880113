package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-audio/wav"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/voxmerge/internal/app"
	"github.com/MrWong99/voxmerge/internal/config"
	"github.com/MrWong99/voxmerge/internal/observe"
	"github.com/MrWong99/voxmerge/pkg/audio"
	audiomock "github.com/MrWong99/voxmerge/pkg/audio/mock"
)

// testConfig returns a config with a fast 10 ms layout listening on a
// random local port.
func testConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Audio:  config.AudioConfig{SampleRate: 8000, ChunkSamples: 80, MaxStreams: 4},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// startApp runs a in the background and returns a stop function that
// cancels Run and returns its error.
func startApp(t *testing.T, a *app.App) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitReady(t, "http://"+a.Addr())
	var result error
	var stopped bool
	stop = func() error {
		if !stopped {
			stopped = true
			cancel()
			select {
			case result = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("Run did not return after cancel")
			}
		}
		return result
	}
	t.Cleanup(func() {
		_ = stop()
		_ = a.Shutdown(context.Background())
	})
	return stop
}

func waitReady(t *testing.T, base string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/readyz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("app never became ready")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func TestNew_InvalidLayout(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Audio.SampleRate = -1
	if _, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t))); err == nil {
		t.Fatal("expected error for invalid layout")
	}
}

func TestNew_ListenFails(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	cfg := testConfig()
	cfg.Server.ListenAddr = l.Addr().String()
	if _, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t))); err == nil {
		t.Fatal("expected error for address in use")
	}
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Recording.Path = filepath.Join(t.TempDir(), "mix.wav")

	a, err := app.New(context.Background(), cfg,
		app.WithMetrics(testMetrics(t)),
		app.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		})),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stop := startApp(t, a)
	base := "http://" + a.Addr()
	wsBase := "ws://" + a.Addr()

	listener := dial(t, wsBase+"/listen")
	producer := dial(t, wsBase+"/streams/alice")

	// Wait for the stream to be registered.
	deadline := time.Now().Add(2 * time.Second)
	for len(a.Merger().Streams()) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("producer never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get(base + "/streams")
	if err != nil {
		t.Fatalf("GET /streams: %v", err)
	}
	var body struct {
		Streams    []string       `json:"streams"`
		Buffered   map[string]int `json:"buffered"`
		MaxStreams int            `json:"max_streams"`
		Running    bool           `json:"running"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode /streams: %v", err)
	}
	resp.Body.Close()
	if len(body.Streams) != 1 || body.Streams[0] != "alice" || body.MaxStreams != 4 || !body.Running {
		t.Errorf("/streams = %+v", body)
	}
	if _, ok := body.Buffered["alice"]; !ok {
		t.Errorf("/streams buffered = %v, want an entry for alice", body.Buffered)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := producer.Write(ctx, websocket.MessageBinary, audio.Constant(1234, 80)); err != nil {
		t.Fatalf("producer write: %v", err)
	}

	// Every merged chunk reaches the listener; wait for the non-silent one.
	for {
		_, data, err := listener.Read(ctx)
		if err != nil {
			t.Fatalf("listener read: %v", err)
		}
		if len(data) != 160 {
			t.Fatalf("chunk length = %d, want 160", len(data))
		}
		if audio.Samples(data)[0] == 1234 {
			break
		}
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", resp.StatusCode)
	}

	if err := stop(); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if a.Merger().Running() {
		t.Error("merger still running after Run returned")
	}

	f, err := os.Open(cfg.Recording.Path)
	if err != nil {
		t.Fatalf("open recording: %v", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("recording is not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode recording: %v", err)
	}
	if len(buf.Data) == 0 || len(buf.Data)%80 != 0 {
		t.Errorf("recorded %d samples, want a positive multiple of 80", len(buf.Data))
	}
}

func TestRun_ReadinessTracksMerger(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stop := startApp(t, a)
	_ = stop()

	if a.Merger().Running() {
		t.Error("merger running after Run returned")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestRun_UsesInjectedMixer(t *testing.T) {
	t.Parallel()

	mx := &audiomock.Mixer{Result: audio.Constant(-7, 80)}
	notify := mx.Notify()
	a, err := app.New(context.Background(), testConfig(),
		app.WithMetrics(testMetrics(t)),
		app.WithMixer(mx),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	startApp(t, a)

	if _, err := a.Merger().Register("bot"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	select {
	case <-notify:
	case <-time.After(2 * time.Second):
		t.Fatal("injected mixer never called")
	}
}

func TestWithListener(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cfg := testConfig()
	cfg.Server.ListenAddr = "unused"

	a, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t)), app.WithListener(l))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Addr() != l.Addr().String() {
		t.Errorf("Addr = %q, want %q", a.Addr(), l.Addr().String())
	}
	startApp(t, a)

	resp, err := http.Get("http://" + a.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
}
