package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxmerge/internal/transport/ws"
)

type chanSource chan []byte

func (c chanSource) Next(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestListen_ReceivesChunksUntilHubStops(t *testing.T) {
	t.Parallel()

	src := make(chanSource)
	hub := ws.NewHub(src, nil)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go func() { _ = hub.Run(hubCtx) }()

	mux := http.NewServeMux()
	mux.Handle("GET /listen", ws.NewListenHandler(hub, 8))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, wsURL(srv)+"/listen")
	eventually(t, "subscription", func() bool { return hub.Subscribers() == 1 })

	src <- []byte{7, 0, 8, 0}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if typ != websocket.MessageBinary || string(data) != string([]byte{7, 0, 8, 0}) {
		t.Errorf("got %v %v, want binary [7 0 8 0]", typ, data)
	}

	stopHub()
	_, _, err = conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Errorf("close status = %v (err %v), want StatusGoingAway", got, err)
	}
}

func TestListen_ClientDisconnectUnsubscribes(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub(make(chanSource), nil)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go func() { _ = hub.Run(hubCtx) }()

	srv := httptest.NewServer(ws.NewListenHandler(hub, 1))
	defer srv.Close()

	conn := dial(t, wsURL(srv))
	eventually(t, "subscription", func() bool { return hub.Subscribers() == 1 })

	conn.Close(websocket.StatusNormalClosure, "done")
	eventually(t, "unsubscribe", func() bool { return hub.Subscribers() == 0 })
}
