package strategy

import (
	"testing"

	"TradePulse/internal/domain/models"
)

func TestTickBufferEvictsOldest(t *testing.T) {
	b := NewTickBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Push(models.Tick{Symbol: "X", LastPrice: float64(i)})
	}
	if b.Len() != 3 {
		t.Fatalf("len = %d, want 3", b.Len())
	}
	closes := b.Closes()
	want := []float64{3, 4, 5}
	for i, v := range want {
		if closes[i] != v {
			t.Fatalf("closes = %v, want %v", closes, want)
		}
	}
	last, ok := b.Last()
	if !ok || last.LastPrice != 5 {
		t.Fatalf("last = %v ok=%v", last.LastPrice, ok)
	}
}

func TestTickBufferEmpty(t *testing.T) {
	b := NewTickBuffer(4)
	if _, ok := b.Last(); ok {
		t.Fatal("empty buffer must not report a last tick")
	}
	if got := b.Closes(); len(got) != 0 {
		t.Fatalf("closes = %v, want empty", got)
	}
}
