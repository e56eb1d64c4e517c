package middleware

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordTick(string)            {}
func (nopMetrics) RecordSignal(string, string)  {}
func (nopMetrics) RecordOrder(string)           {}
func (nopMetrics) RecordError(string)           {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordLatency(string, float64)   {}
func (nopMetrics) RecordPendingOrders(int)         {}

type captureSink struct {
	mu    sync.Mutex
	ticks []*models.Tick
	fail  bool
}

func (s *captureSink) Publish(_ context.Context, t *models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("bus unavailable")
	}
	s.ticks = append(s.ticks, t)
	return nil
}

func (s *captureSink) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

func (s *captureSink) snapshot() []*models.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Tick(nil), s.ticks...)
}

func tick(symbol string, price float64, src time.Time) *models.Tick {
	return &models.Tick{Symbol: symbol, LastPrice: price, SourceTime: src}
}

func TestProcessForwardsInOrder(t *testing.T) {
	sink := &captureSink{}
	p := NewIngestPipeline(sink, nopMetrics{}, WithMaxRPS(1000))

	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := p.Process(context.Background(), tick("RELIANCE", 100+float64(i), base.Add(time.Duration(i)*time.Millisecond))); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}

	if len(sink.ticks) != 5 {
		t.Fatalf("forwarded %d ticks, want 5", len(sink.ticks))
	}
	for i := 1; i < len(sink.ticks); i++ {
		if sink.ticks[i].SourceTime.Before(sink.ticks[i-1].SourceTime) {
			t.Fatalf("tick %d out of order: %v before %v", i, sink.ticks[i].SourceTime, sink.ticks[i-1].SourceTime)
		}
	}
	for _, tk := range sink.ticks {
		if tk.IngestTime.IsZero() {
			t.Fatal("ingest time not stamped")
		}
	}
}

func TestProcessRejectsInvalidTick(t *testing.T) {
	sink := &captureSink{}
	p := NewIngestPipeline(sink, nopMetrics{})

	cases := []*models.Tick{
		{Symbol: "", LastPrice: 100, SourceTime: time.Now()},
		{Symbol: "TCS", LastPrice: 0, SourceTime: time.Now()},
		{Symbol: "TCS", LastPrice: 100},
	}
	for i, tk := range cases {
		if err := p.Process(context.Background(), tk); err == nil {
			t.Fatalf("case %d: invalid tick accepted", i)
		}
	}
	if len(sink.ticks) != 0 {
		t.Fatalf("invalid ticks reached the sink: %d", len(sink.ticks))
	}
}

func TestProcessThrottlesPerSymbol(t *testing.T) {
	sink := &captureSink{}
	p := NewIngestPipeline(sink, nopMetrics{}, WithMaxRPS(1))

	now := time.Now().UTC()
	// first tick per symbol consumes the bucket; the burst after is dropped
	for i := 0; i < 10; i++ {
		if err := p.Process(context.Background(), tick("RELIANCE", 100, now)); err != nil {
			t.Fatalf("throttled tick returned error: %v", err)
		}
	}
	if err := p.Process(context.Background(), tick("TCS", 200, now)); err != nil {
		t.Fatalf("second symbol: %v", err)
	}

	var reliance, tcs int
	for _, tk := range sink.ticks {
		switch tk.Symbol {
		case "RELIANCE":
			reliance++
		case "TCS":
			tcs++
		}
	}
	if reliance != 1 {
		t.Fatalf("RELIANCE forwarded %d ticks, want 1", reliance)
	}
	if tcs != 1 {
		t.Fatalf("TCS forwarded %d ticks, want 1 (throttle must be per symbol)", tcs)
	}
}

func TestProcessBuffersOnPublishFailure(t *testing.T) {
	sink := &captureSink{fail: true}
	p := NewIngestPipeline(sink, nopMetrics{}, WithMaxRPS(1000), WithBufferSize(8))

	if err := p.Process(context.Background(), tick("INFY", 1500, time.Now().UTC())); err == nil {
		t.Fatal("expected downstream error")
	}

	// bus recovers; the background flusher drains the buffer
	sink.setFail(false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sink.snapshot()) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("buffered tick never flushed; sink has %d ticks", len(sink.snapshot()))
}
