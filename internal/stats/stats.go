// Package stats provides the numeric primitives behind the market indicators.
// Short or degenerate inputs get defined fallback values rather than errors.
package stats

import "math"

// Mean returns the arithmetic mean of values. It must not be called with
// an empty slice.
func Mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation of values (divide by N).
// Fewer than two values yield 0.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// ZScore returns how many standard deviations value lies from mean.
// A zero stdDev saturates to 0 instead of dividing by zero.
func ZScore(value, mean, stdDev float64) float64 {
	if stdDev == 0 {
		return 0
	}
	return (value - mean) / stdDev
}

// EMA returns the exponential moving average of series with smoothing factor
// 2/(period+1), seeded by the simple mean of the first period elements.
// A series shorter than period falls back to its last element, and an empty
// series to 0.
func EMA(series []float64, period int) float64 {
	if len(series) < period {
		if len(series) == 0 {
			return 0
		}
		return series[len(series)-1]
	}

	k := 2 / float64(period+1)
	ema := Mean(series[:period])
	for _, v := range series[period:] {
		ema = (v-ema)*k + ema
	}
	return ema
}

// Round2 rounds v to two decimal places. All stored price, demand, supply,
// and mismatch values pass through this at generation time.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
