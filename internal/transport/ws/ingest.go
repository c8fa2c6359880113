package ws

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxmerge/internal/merger"
	"github.com/MrWong99/voxmerge/internal/observe"
	"github.com/MrWong99/voxmerge/pkg/audio"
)

// Limits on the format a producer may declare.
const (
	maxIngestRate     = 384000
	maxIngestChannels = 8

	// readLimit bounds a single websocket message.
	readLimit = 1 << 20
)

// Registrar is the part of the merger the ingest handler needs.
type Registrar interface {
	Register(id string) (*merger.Producer, error)
	Deregister(id string) error
	Layout() audio.Layout
}

// IngestHandler accepts producer connections at /streams/{id}. The stream
// is registered before the websocket upgrade so that registration failures
// are reported as plain HTTP errors:
//
//   - 409 Conflict when id is already live
//   - 503 Service Unavailable when the stream limit is reached
//   - 400 Bad Request for an invalid rate or channels query parameter
//
// Producers may declare their native format with ?rate=&channels=; chunks
// are then converted to the merger's mono layout and re-cut to whole
// canonical chunks before being pushed. Producers already in the merger's
// format are pushed as sent.
type IngestHandler struct {
	reg     Registrar
	metrics *observe.Metrics
}

// NewIngestHandler creates an [IngestHandler]. met may be nil.
func NewIngestHandler(reg Registrar, met *observe.Metrics) *IngestHandler {
	if met == nil {
		met = observe.DefaultMetrics()
	}
	return &IngestHandler{reg: reg, metrics: met}
}

// ServeHTTP implements [http.Handler].
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "missing stream id", http.StatusBadRequest)
		return
	}
	layout := h.reg.Layout()
	format, err := parseFormat(r, layout)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	producer, err := h.reg.Register(id)
	switch {
	case errors.Is(err, merger.ErrDuplicateStream):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, merger.ErrTooManyStreams):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx := observe.WithStream(r.Context(), id)
	log := observe.Logger(ctx)
	defer func() {
		if err := h.reg.Deregister(id); err != nil {
			log.Warn("ingest: deregister failed", "err", err)
		}
	}()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("ingest: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	// Converted frames no longer line up with the producer's own chunking,
	// so they are re-cut to the canonical size before reaching the merger.
	conv := audio.NewConverter(format, layout)
	var chunker *audio.Chunker
	if !conv.Identity() {
		chunker = audio.NewChunker(layout.ChunkSamples)
	}
	log.Info("ingest: producer connected", "format", format.String())

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Info("ingest: producer disconnected")
			default:
				log.Warn("ingest: read failed", "err", err)
			}
			return
		}
		if typ != websocket.MessageBinary {
			conn.Close(websocket.StatusUnsupportedData, "binary PCM frames only")
			return
		}

		pcm := conv.Convert(data)
		if len(pcm) == 0 {
			continue
		}
		chunks := [][]byte{pcm}
		if chunker != nil {
			chunks = chunker.Write(pcm)
		}
		for _, chunk := range chunks {
			if err := producer.Push(chunk); err != nil {
				conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			h.metrics.IngestChunks.Add(ctx, 1)
		}
	}
}

// parseFormat reads the optional rate and channels query parameters,
// defaulting to the merger's own mono layout.
func parseFormat(r *http.Request, layout audio.Layout) (audio.Format, error) {
	f := audio.Mono(layout.SampleRate)
	q := r.URL.Query()

	if v := q.Get("rate"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 || rate > maxIngestRate {
			return f, fmt.Errorf("invalid rate %q: want 1..%d", v, maxIngestRate)
		}
		f.SampleRate = rate
	}
	if v := q.Get("channels"); v != "" {
		ch, err := strconv.Atoi(v)
		if err != nil || ch <= 0 || ch > maxIngestChannels {
			return f, fmt.Errorf("invalid channels %q: want 1..%d", v, maxIngestChannels)
		}
		f.Channels = ch
	}
	return f, nil
}
