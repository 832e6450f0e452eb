package indicators

import (
	"math"

	"FinFeed/internal/domain/models"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// Compute derives the latest indicator values from an ascending daily series.
// Indicators lacking enough history stay null.
func Compute(s *models.Series) models.TechnicalIndicators {
	out := models.TechnicalIndicators{}
	if s == nil || len(s.Points) == 0 {
		return out
	}
	out.Symbol = s.Symbol
	out.Source = s.Source
	out.AsOf = s.Points[len(s.Points)-1].Date

	closes := make([]float64, len(s.Points))
	for i, p := range s.Points {
		closes[i] = p.Close
	}

	out.SMA20 = last(SMA(closes, 20))
	out.SMA50 = last(SMA(closes, 50))
	ema12 := EMA(closes, 12)
	ema26 := EMA(closes, 26)
	out.EMA12 = last(ema12)
	out.EMA26 = last(ema26)
	out.RSI14 = last(RSI(closes, 14))

	macd, signal, hist := MACD(closes, 12, 26, 9)
	out.MACD = last(macd)
	out.MACDSignal = last(signal)
	out.MACDHistogram = last(hist)

	upper, middle, lower := Bollinger(closes, 20, 2)
	out.BollingerUpper = last(upper)
	out.BollingerMiddle = last(middle)
	out.BollingerLower = last(lower)

	out.ATR14 = last(ATR(s.Points, 14))
	return out
}

func last(xs []float64) null.Float {
	if len(xs) == 0 {
		return null.Float{}
	}
	v := xs[len(xs)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return null.Float{}
	}
	return null.FloatFrom(round(v))
}

func round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(4).InexactFloat64()
}

// SMA returns the simple moving average aligned to the end of data.
func SMA(data []float64, period int) []float64 {
	if period <= 0 || len(data) < period {
		return nil
	}
	out := make([]float64, 0, len(data)-period+1)
	sum := 0.0
	for i, v := range data {
		sum += v
		if i >= period {
			sum -= data[i-period]
		}
		if i >= period-1 {
			out = append(out, sum/float64(period))
		}
	}
	return out
}

// EMA seeds with the SMA of the first period values.
func EMA(data []float64, period int) []float64 {
	if period <= 0 || len(data) < period {
		return nil
	}
	k := 2.0 / (float64(period) + 1.0)
	seed := 0.0
	for _, v := range data[:period] {
		seed += v
	}
	ema := seed / float64(period)
	out := make([]float64, 0, len(data)-period+1)
	out = append(out, ema)
	for _, v := range data[period:] {
		ema = v*k + ema*(1-k)
		out = append(out, ema)
	}
	return out
}

// RSI uses Wilder smoothing.
func RSI(data []float64, period int) []float64 {
	if period <= 0 || len(data) < period+1 {
		return nil
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		ch := data[i] - data[i-1]
		if ch > 0 {
			gain += ch
		} else {
			loss -= ch
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	out := []float64{rsi(avgGain, avgLoss)}
	for i := period + 1; i < len(data); i++ {
		ch := data[i] - data[i-1]
		g, l := 0.0, 0.0
		if ch > 0 {
			g = ch
		} else {
			l = -ch
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out = append(out, rsi(avgGain, avgLoss))
	}
	return out
}

func rsi(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD returns the MACD line, its signal line and the histogram, all aligned to the end of data.
func MACD(data []float64, fast, slow, signal int) (line, sig, hist []float64) {
	fastEMA := EMA(data, fast)
	slowEMA := EMA(data, slow)
	if slowEMA == nil || fastEMA == nil {
		return nil, nil, nil
	}
	offset := len(fastEMA) - len(slowEMA)
	line = make([]float64, len(slowEMA))
	for i := range slowEMA {
		line[i] = fastEMA[i+offset] - slowEMA[i]
	}
	sig = EMA(line, signal)
	if sig == nil {
		return line, nil, nil
	}
	offset = len(line) - len(sig)
	hist = make([]float64, len(sig))
	for i := range sig {
		hist[i] = line[i+offset] - sig[i]
	}
	return line, sig, hist
}

// Bollinger returns upper, middle and lower bands using the population standard deviation.
func Bollinger(data []float64, period int, k float64) (upper, middle, lower []float64) {
	middle = SMA(data, period)
	if middle == nil {
		return nil, nil, nil
	}
	upper = make([]float64, len(middle))
	lower = make([]float64, len(middle))
	for i, m := range middle {
		window := data[i : i+period]
		variance := 0.0
		for _, v := range window {
			variance += (v - m) * (v - m)
		}
		sd := math.Sqrt(variance / float64(period))
		upper[i] = m + k*sd
		lower[i] = m - k*sd
	}
	return upper, middle, lower
}

// ATR uses Wilder smoothing of the true range.
func ATR(points []models.HistoricalPoint, period int) []float64 {
	if period <= 0 || len(points) < period+1 {
		return nil
	}
	tr := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		p, prev := points[i], points[i-1]
		tr = append(tr, math.Max(p.High-p.Low, math.Max(math.Abs(p.High-prev.Close), math.Abs(p.Low-prev.Close))))
	}
	atr := 0.0
	for _, v := range tr[:period] {
		atr += v
	}
	atr /= float64(period)
	out := []float64{atr}
	for _, v := range tr[period:] {
		atr = (atr*float64(period-1) + v) / float64(period)
		out = append(out, atr)
	}
	return out
}

// Complete reports whether every indicator could be computed.
func Complete(ti models.TechnicalIndicators) bool {
	for _, f := range []null.Float{
		ti.SMA20, ti.SMA50, ti.EMA12, ti.EMA26, ti.RSI14, ti.MACD, ti.MACDSignal,
		ti.MACDHistogram, ti.BollingerUpper, ti.BollingerMiddle, ti.BollingerLower, ti.ATR14,
	} {
		if !f.Valid {
			return false
		}
	}
	return true
}
