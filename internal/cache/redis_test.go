package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"nse-monitor/internal/models"
)

func newSink(t *testing.T) (*RedisPriceSink, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sink := NewRedisPriceSink(client, "", "")
	sink.now = func() time.Time { return time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC) }
	return sink, mr, client
}

func TestPublishPricesStoresSnapshots(t *testing.T) {
	sink, mr, _ := newSink(t)
	ctx := context.Background()

	if err := sink.PublishPrices(ctx, map[string]float64{"TCS": 3890.5, "INFY": 1500}); err != nil {
		t.Fatalf("PublishPrices: %v", err)
	}

	raw, err := mr.Get("stock:TCS")
	if err != nil {
		t.Fatalf("key not written: %v", err)
	}
	var q models.Quote
	if err := json.Unmarshal([]byte(raw), &q); err != nil || q.Price != 3890.5 || q.Symbol != "TCS" {
		t.Errorf("snapshot = %q (%v)", raw, err)
	}

	snaps, err := sink.Snapshots(ctx, []string{"TCS", "INFY", "MISSING"})
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 2 || snaps["INFY"].Price != 1500 {
		t.Errorf("snapshots = %v", snaps)
	}
}

func TestPublishPricesNotifiesSubscribers(t *testing.T) {
	sink, _, client := newSink(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "prices.SBIN")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := sink.PublishPrices(ctx, map[string]float64{"SBIN": 765.4}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-sub.Channel():
		var q models.Quote
		json.Unmarshal([]byte(msg.Payload), &q)
		if msg.Channel != "prices.SBIN" || q.Price != 765.4 {
			t.Errorf("message = %s %s", msg.Channel, msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestPublishEmptyIsNoop(t *testing.T) {
	sink, mr, _ := newSink(t)
	if err := sink.PublishPrices(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if len(mr.Keys()) != 0 {
		t.Errorf("keys written: %v", mr.Keys())
	}
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Dial(context.Background(), mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	client.Close()

	addr := mr.Addr()
	mr.Close()
	if _, err := Dial(context.Background(), addr, "", 0); err == nil {
		t.Error("Dial to closed server should fail")
	}
}
