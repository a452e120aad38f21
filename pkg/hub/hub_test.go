package hub

import (
	"context"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	fws "github.com/gofiber/websocket/v2"
	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-arlens/internal/log"
)

func startHub(t *testing.T, opts Options, port string) *Hub {
	t.Helper()
	opts.Logger = log.Discard()
	h := New("test", opts)

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", fws.New(func(c *fws.Conn) {
		NewClient(h, c).Run()
	}))
	go app.Listen(":" + port)
	time.Sleep(100 * time.Millisecond)

	t.Cleanup(func() {
		cancel()
		_ = app.Shutdown()
	})
	return h
}

func dial(t *testing.T, port string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:"+port+"/ws", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func waitCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("ClientCount = %d, want %d", h.ClientCount(), want)
}

func TestNew(t *testing.T) {
	h := New("overlays", Options{Logger: log.Discard()})
	if h.ClientCount() != 0 {
		t.Error("ClientCount should be 0 initially")
	}
	if h.IsRunning() {
		t.Error("hub should not be running before Run")
	}
}

func TestBroadcastWithoutClients(t *testing.T) {
	h := New("overlays", Options{Logger: log.Discard()})

	// Should not block even though nothing drains the queue.
	for i := 0; i < 300; i++ {
		h.Broadcast(NewJSONMessage([]byte(`{}`)))
	}
	if err := h.BroadcastJSON(make(chan int)); err == nil {
		t.Error("BroadcastJSON should fail for unencodable values")
	}
}

func TestBroadcastReachesClients(t *testing.T) {
	h := startHub(t, Options{}, "18090")

	a := dial(t, "18090")
	b := dial(t, "18090")
	waitCount(t, h, 2)

	if err := h.BroadcastJSON(map[string]int{"seq": 1}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	for _, ws := range []*websocket.Conn{a, b} {
		ws.SetReadDeadline(time.Now().Add(time.Second))
		typ, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("Read error: %v", err)
		}
		if typ != websocket.TextMessage || string(data) != `{"seq":1}` {
			t.Errorf("message = %d %s", typ, data)
		}
	}

	a.Close()
	waitCount(t, h, 1)
}

func TestReplayLatest(t *testing.T) {
	h := startHub(t, Options{Replay: true}, "18091")

	first := dial(t, "18091")
	waitCount(t, h, 1)
	h.BroadcastJSON(map[string]int{"seq": 7})
	first.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := first.ReadMessage(); err != nil {
		t.Fatalf("Read error: %v", err)
	}

	late := dial(t, "18091")
	late.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := late.ReadMessage()
	if err != nil {
		t.Fatalf("late client read error: %v", err)
	}
	if string(data) != `{"seq":7}` {
		t.Errorf("replayed = %s, want the latest broadcast", data)
	}
}

func TestRunStopsClients(t *testing.T) {
	h := New("overlays", Options{Logger: log.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if !h.IsRunning() {
		t.Error("hub should be running")
	}
	cancel()
	<-done
	if h.IsRunning() {
		t.Error("hub should have stopped")
	}
}

func TestOnMessageRepliesToSender(t *testing.T) {
	h := startHub(t, Options{OnMessage: func(data []byte) []byte {
		if string(data) == "ignore" {
			return nil
		}
		return append([]byte("re:"), data...)
	}}, "18094")

	a := dial(t, "18094")
	b := dial(t, "18094")
	waitCount(t, h, 2)

	a.WriteMessage(websocket.TextMessage, []byte("ignore"))
	a.WriteMessage(websocket.TextMessage, []byte("hi"))
	a.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := a.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if string(data) != "re:hi" {
		t.Errorf("reply = %s, want re:hi", data)
	}

	// Replies are not broadcast.
	b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, data, err := b.ReadMessage(); err == nil {
		t.Errorf("other client received %s", data)
	}
}
