package feed_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/danhigham/vkplay/internal/bus"
	"github.com/danhigham/vkplay/internal/events"
	"github.com/danhigham/vkplay/internal/feed"
)

func startHub(t *testing.T) (*feed.Hub, *httptest.Server) {
	t.Helper()
	hub := feed.NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, hub *feed.Hub, srv *httptest.Server, channel string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?channel=" + channel
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	key := channel
	if key == "" {
		key = feed.AllChannels
	}
	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients(key) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client on %q never registered", channel)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) feed.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env feed.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return env
}

func TestHub_StreamsChannel(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, hub, srv, "readMessage")

	hub.Mirror(events.TypingEvent{PeerID: 5, UserID: 5, IsTyping: true})
	hub.Mirror(events.ReadStatusEvent{EventType: events.CodeReadIncoming, PeerID: 7, MessageID: 42})

	env := readEnvelope(t, conn)
	if env.Type != "readMessage" || env.PeerID != 7 {
		t.Errorf("envelope = %+v, want readMessage for peer 7", env)
	}
	if env.Data["message_id"] != float64(42) || env.Data["incoming"] != true {
		t.Errorf("data = %v", env.Data)
	}
	if env.TS == 0 {
		t.Error("ts not set")
	}
}

func TestHub_AllChannels(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, hub, srv, "")

	hub.Mirror(events.MessageEvent{Kind: events.MessageEdit, MessageID: 10, PeerID: 99, Text: "hi"})
	env := readEnvelope(t, conn)
	if env.Type != "editMessage" || env.Data["text"] != "hi" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestHub_AsBusMirror(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, hub, srv, "typing")

	b := bus.New(nil)
	b.AddMirror(hub)
	b.Publish(events.TypingEvent{PeerID: 2000000003, UserID: 8, IsTyping: true, InChat: true})

	env := readEnvelope(t, conn)
	if env.Type != "typing" || env.PeerID != 2000000003 || env.Data["in_chat"] != true {
		t.Errorf("envelope = %+v", env)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, hub, srv, "typing")
	_ = conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients("typing") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not unregistered after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
