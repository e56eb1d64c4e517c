package strategy

import talib "github.com/markcheno/go-talib"

// Thin wrappers over the indicator library that surface only the
// latest value and enforce warm-up lengths: below the documented
// warm-up no value is produced.

// RSI needs period+1 samples before its first value.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	out := talib.Rsi(closes, period)
	return out[len(out)-1], true
}

// SMA needs period samples.
func SMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}
	out := talib.Sma(closes, period)
	return out[len(out)-1], true
}

// EMA needs period samples.
func EMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}
	out := talib.Ema(closes, period)
	return out[len(out)-1], true
}

// MACD needs slow+signal samples; returns the MACD line and its
// signal line.
func MACD(closes []float64, fast, slow, signal int) (macd, sig float64, ok bool) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal {
		return 0, 0, false
	}
	m, s, _ := talib.Macd(closes, fast, slow, signal)
	return m[len(m)-1], s[len(s)-1], true
}

// Bollinger needs period samples; returns upper, middle, lower bands.
func Bollinger(closes []float64, period int, dev float64) (upper, middle, lower float64, ok bool) {
	if period <= 0 || len(closes) < period {
		return 0, 0, 0, false
	}
	u, m, l := talib.BBands(closes, period, dev, dev, talib.SMA)
	n := len(closes) - 1
	return u[n], m[n], l[n], true
}

// Stochastic needs kPeriod+dPeriod samples; returns %K and %D.
func Stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) (k, d float64, ok bool) {
	n := len(closes)
	if kPeriod <= 0 || dPeriod <= 0 || n < kPeriod+dPeriod || len(highs) != n || len(lows) != n {
		return 0, 0, false
	}
	sk, sd := talib.Stoch(highs, lows, closes, kPeriod, dPeriod, talib.SMA, dPeriod, talib.SMA)
	return sk[n-1], sd[n-1], true
}

// DX needs 2*period samples; returns the directional index.
func DX(highs, lows, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period <= 0 || n < 2*period || len(highs) != n || len(lows) != n {
		return 0, false
	}
	out := talib.Dx(highs, lows, closes, period)
	return out[n-1], true
}
