package strategy

import "TradePulse/internal/domain/models"

// TickBuffer is a bounded rolling window of ticks for one symbol.
// Owned exclusively by one strategy instance; oldest ticks are
// overwritten once capacity is reached.
type TickBuffer struct {
	data []models.Tick
	head int // index of oldest element
	size int
}

// NewTickBuffer creates a buffer holding at most capacity ticks.
func NewTickBuffer(capacity int) *TickBuffer {
	if capacity <= 0 {
		capacity = 256
	}
	return &TickBuffer{data: make([]models.Tick, capacity)}
}

// Push appends a tick, evicting the oldest when full.
func (b *TickBuffer) Push(t models.Tick) {
	idx := (b.head + b.size) % len(b.data)
	b.data[idx] = t
	if b.size < len(b.data) {
		b.size++
	} else {
		b.head = (b.head + 1) % len(b.data)
	}
}

// Len returns the number of buffered ticks.
func (b *TickBuffer) Len() int { return b.size }

// Last returns the most recent tick.
func (b *TickBuffer) Last() (models.Tick, bool) {
	if b.size == 0 {
		return models.Tick{}, false
	}
	idx := (b.head + b.size - 1) % len(b.data)
	return b.data[idx], true
}

// Closes returns last prices in chronological order.
func (b *TickBuffer) Closes() []float64 {
	out := make([]float64, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.data[(b.head+i)%len(b.data)].LastPrice
	}
	return out
}

// Highs returns session highs in chronological order.
func (b *TickBuffer) Highs() []float64 {
	out := make([]float64, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.data[(b.head+i)%len(b.data)].High
	}
	return out
}

// Lows returns session lows in chronological order.
func (b *TickBuffer) Lows() []float64 {
	out := make([]float64, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.data[(b.head+i)%len(b.data)].Low
	}
	return out
}
