package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"nse-monitor/internal/models"
	"nse-monitor/internal/notify"
)

type rawEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) rawEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev rawEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectGreetingAndBroadcasts(t *testing.T) {
	h := NewHub([]string{"*"}, zerolog.Nop())
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	if ev := read(t, conn); ev.Event != EventConnected {
		t.Fatalf("first event = %q, want connected", ev.Event)
	}
	waitClients(t, h, 1)

	alert := models.Alert{Symbol: "TESTCO", Price: 110, Threshold: 100, Kind: models.AlertUpper, Timestamp: time.Now()}
	if err := h.Send(context.Background(), notify.NewNotification(alert)); err != nil {
		t.Fatal(err)
	}
	ev := read(t, conn)
	if ev.Event != EventAlert {
		t.Fatalf("event = %q", ev.Event)
	}
	var payload map[string]interface{}
	json.Unmarshal(ev.Data, &payload)
	if payload["symbol"] != "TESTCO" || payload["type"] != "UPPER" || payload["message"] != "TESTCO crossed UPPER threshold" {
		t.Errorf("alert payload = %v", payload)
	}

	h.PublishPrices(context.Background(), map[string]float64{"TESTCO": 110})
	ev = read(t, conn)
	var prices map[string]float64
	json.Unmarshal(ev.Data, &prices)
	if ev.Event != EventPriceUpdate || prices["TESTCO"] != 110 {
		t.Errorf("price event = %s %v", ev.Event, prices)
	}
}

func TestRefreshPricesRepliesToRequester(t *testing.T) {
	h := NewHub([]string{"*"}, zerolog.Nop())
	h.OnRefresh(func(context.Context) map[string]float64 {
		return map[string]float64{"INFY": 1500.25}
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	requester := dial(t, srv)
	other := dial(t, srv)
	read(t, requester)
	read(t, other)
	waitClients(t, h, 2)

	if err := requester.WriteJSON(Event{Event: EventRefreshPrices}); err != nil {
		t.Fatal(err)
	}
	ev := read(t, requester)
	var prices map[string]float64
	json.Unmarshal(ev.Data, &prices)
	if ev.Event != EventPriceUpdate || prices["INFY"] != 1500.25 {
		t.Errorf("refresh reply = %s %v", ev.Event, prices)
	}

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var none rawEvent
	if err := other.ReadJSON(&none); err == nil {
		t.Errorf("other client received %q", none.Event)
	}
}

func TestSlowRefreshKeepsReading(t *testing.T) {
	started := make(chan struct{}, 1)
	h := NewHub([]string{"*"}, zerolog.Nop())
	h.OnRefresh(func(ctx context.Context) map[string]float64 {
		started <- struct{}{}
		<-ctx.Done()
		return nil
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	read(t, conn)
	waitClients(t, h, 1)

	if err := conn.WriteJSON(Event{Event: EventRefreshPrices}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh not called")
	}

	// The read loop must notice the disconnect while the fetch is still running.
	conn.Close()
	waitClients(t, h, 0)
}

func TestDisconnectRemovesClient(t *testing.T) {
	h := NewHub([]string{"*"}, zerolog.Nop())
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	read(t, conn)
	waitClients(t, h, 1)

	conn.Close()
	waitClients(t, h, 0)
}

func TestOriginCheck(t *testing.T) {
	h := NewHub([]string{"http://allowed.example"}, zerolog.Nop())
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": []string{"http://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Error("disallowed origin connected")
	}

	header.Set("Origin", "http://allowed.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	conn.Close()
}
