package models

import "time"

// Tick is a single normalized market price update for one symbol.
// Immutable once published to the tick stream; ordering is guaranteed
// per symbol per consumer group, not globally across symbols.
type Tick struct {
	Symbol     string    `json:"symbol"`
	LastPrice  float64   `json:"last_price"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Volume     int64     `json:"volume"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	SourceTime time.Time `json:"source_time"`
	IngestTime time.Time `json:"ingest_time"`
}

// Valid reports whether the tick carries the minimum fields required
// before it may enter the stream.
func (t *Tick) Valid() bool {
	if t == nil || t.Symbol == "" {
		return false
	}
	if t.LastPrice <= 0 || t.SourceTime.IsZero() {
		return false
	}
	return true
}
