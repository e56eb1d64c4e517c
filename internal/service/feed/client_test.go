package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"TradePulse/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordTick(string)               {}
func (nopMetrics) RecordSignal(string, string)     {}
func (nopMetrics) RecordOrder(string)              {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordLatency(string, float64)   {}
func (nopMetrics) RecordPendingOrders(int)         {}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// The upstream interleaves binary quotes with ping control frames while
// the client's own heartbeat is writing. Run with -race: quote frames
// must come through and every upstream ping must be answered.
func TestReadQuotesWhileControlTrafficFlows(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	pongs := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub map[string]interface{}
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if string(data) == "pong" {
					mu.Lock()
					pongs++
					mu.Unlock()
				}
			}
		}()

		for i := 0; i < 5; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				return
			}
			frame := EncodeQuoteFrame("2885", uint64(i+1), time.Now(),
				2954.25, 2954.00, 2954.50, 2970.10, 2931.00, 125000)
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
		<-done
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(testLogger(t), "key", wsURL, []string{"RELIANCE"}, testTokens,
		time.Millisecond, time.Millisecond, nopMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if err := c.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ticks, errs := c.Read(ctx)
	received := 0
	deadline := time.After(2 * time.Second)
	for received < 5 {
		select {
		case tick := <-ticks:
			if tick.Symbol != "RELIANCE" {
				t.Fatalf("symbol = %s", tick.Symbol)
			}
			received++
		case err := <-errs:
			t.Fatalf("read: %v", err)
		case <-deadline:
			t.Fatalf("received %d quotes before timeout, want 5", received)
		}
	}

	waitPongs := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := pongs
		mu.Unlock()
		if n >= 5 {
			break
		}
		if time.Now().After(waitPongs) {
			t.Fatalf("upstream pings answered = %d, want 5", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribeRequiresConnection(t *testing.T) {
	c := New(testLogger(t), "key", "ws://unused", []string{"RELIANCE"}, testTokens,
		time.Millisecond, time.Minute, nopMetrics{})
	if err := c.Subscribe(context.Background()); err == nil {
		t.Fatal("expected not-connected error")
	}
	if c.IsConnected() {
		t.Fatal("client must not report connected before Connect")
	}
}
