package feed

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"TradePulse/internal/domain/models"
)

// Frame modes published by the upstream socket.
const (
	ModeLTP   byte = 1 // last traded price only
	ModeQuote byte = 2 // full quote with depth top
)

// Fixed header layout, little-endian:
//
//	offset 0   mode (1 byte)
//	offset 1   exchange id (1 byte)
//	offset 2   symbol token, NUL-terminated (25 bytes)
//	offset 27  sequence (8 bytes)
//	offset 35  exchange timestamp, epoch ms (8 bytes)
//	offset 43  last traded price, fixed-point paise (4 bytes)
//
// Quote frames append volume (8), bid (4), ask (4), high (4), low (4).
const (
	headerLen = 47
	quoteLen  = headerLen + 24

	symbolTokenLen = 25
	priceDivisor   = 100.0
)

// DecodeFrame parses one binary frame into a normalized tick. The
// symbol token is resolved through tokens; unknown tokens keep the raw
// token string so downstream can still account for them.
func DecodeFrame(data []byte, tokens map[string]string) (*models.Tick, error) {
	if len(data) < headerLen {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}

	mode := data[0]
	if mode != ModeLTP && mode != ModeQuote {
		return nil, fmt.Errorf("unknown frame mode %d", mode)
	}
	if mode == ModeQuote && len(data) < quoteLen {
		return nil, fmt.Errorf("quote frame too short: %d bytes", len(data))
	}

	token := parseToken(data[2 : 2+symbolTokenLen])
	if token == "" {
		return nil, fmt.Errorf("empty symbol token")
	}
	symbol, ok := tokens[token]
	if !ok {
		symbol = token
	}

	tsMillis := int64(binary.LittleEndian.Uint64(data[35:43]))
	if tsMillis <= 0 {
		return nil, fmt.Errorf("non-positive timestamp %d", tsMillis)
	}
	lastPaise := int32(binary.LittleEndian.Uint32(data[43:47]))
	if lastPaise <= 0 {
		return nil, fmt.Errorf("non-positive price %d", lastPaise)
	}

	tick := &models.Tick{
		Symbol:     symbol,
		LastPrice:  float64(lastPaise) / priceDivisor,
		SourceTime: time.UnixMilli(tsMillis).UTC(),
	}

	if mode == ModeQuote {
		tick.Volume = int64(binary.LittleEndian.Uint64(data[47:55]))
		tick.Bid = float64(int32(binary.LittleEndian.Uint32(data[55:59]))) / priceDivisor
		tick.Ask = float64(int32(binary.LittleEndian.Uint32(data[59:63]))) / priceDivisor
		tick.High = float64(int32(binary.LittleEndian.Uint32(data[63:67]))) / priceDivisor
		tick.Low = float64(int32(binary.LittleEndian.Uint32(data[67:71]))) / priceDivisor
	}

	return tick, nil
}

// EncodeQuoteFrame builds a quote-mode frame. Used by tests and the
// local replay tool; prices are rounded to the fixed-point grid.
func EncodeQuoteFrame(token string, seq uint64, ts time.Time, last, bid, ask, high, low float64, volume int64) []byte {
	buf := make([]byte, quoteLen)
	buf[0] = ModeQuote
	buf[1] = 1
	copy(buf[2:2+symbolTokenLen], token)
	binary.LittleEndian.PutUint64(buf[27:35], seq)
	binary.LittleEndian.PutUint64(buf[35:43], uint64(ts.UnixMilli()))
	binary.LittleEndian.PutUint32(buf[43:47], uint32(toPaise(last)))
	binary.LittleEndian.PutUint64(buf[47:55], uint64(volume))
	binary.LittleEndian.PutUint32(buf[55:59], uint32(toPaise(bid)))
	binary.LittleEndian.PutUint32(buf[59:63], uint32(toPaise(ask)))
	binary.LittleEndian.PutUint32(buf[63:67], uint32(toPaise(high)))
	binary.LittleEndian.PutUint32(buf[67:71], uint32(toPaise(low)))
	return buf
}

func toPaise(price float64) int32 {
	return int32(price*priceDivisor + 0.5)
}

func parseToken(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
