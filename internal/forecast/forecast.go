// Package forecast implements C2, a short-horizon point forecast with a
// symmetric confidence band (spec §4.2). The reference model is a trend
// slope over the trailing K samples -- a stand-in for a learned model; the
// contract downstream depends on is only the shape of the return values.
package forecast

// DefaultConfidenceWidth is the reference delta (in the series' units)
// applied symmetrically around each point forecast.
const DefaultConfidenceWidth = 0.8

// Forecaster produces an H-step point forecast with a fixed confidence
// band from a dense window read.
type Forecaster struct {
	horizon         int
	confidenceWidth float64
}

// New creates a Forecaster with a fixed horizon H and the reference
// confidence width.
func New(horizon int) *Forecaster {
	return &Forecaster{horizon: horizon, confidenceWidth: DefaultConfidenceWidth}
}

// Horizon returns the configured H.
func (f *Forecaster) Horizon() int {
	return f.horizon
}

// Predict computes preds/lo/hi, each of length H, from series (spec §4.2):
// a trend slope over the trailing K=min(10,len-1) samples projects
// preds[i] = series[-1] + (i+1)*slope*0.5; lo/hi are preds +/- a fixed
// confidence width. An empty or constant series yields a flat projection.
func (f *Forecaster) Predict(series []float64) (preds, lo, hi []float64) {
	preds = make([]float64, f.horizon)
	lo = make([]float64, f.horizon)
	hi = make([]float64, f.horizon)

	var last float64
	if len(series) > 0 {
		last = series[len(series)-1]
	}
	slope := trendSlope(series)

	for i := 0; i < f.horizon; i++ {
		p := last + float64(i+1)*slope*0.5
		preds[i] = p
		lo[i] = p - f.confidenceWidth
		hi[i] = p + f.confidenceWidth
	}
	return preds, lo, hi
}

// trendSlope computes the average per-step delta over the trailing
// K=min(10,len-1) samples of series. Returns 0 for a series with fewer
// than 2 samples or with no net change (constant series).
func trendSlope(series []float64) float64 {
	n := len(series)
	if n < 2 {
		return 0
	}
	k := n - 1
	if k > 10 {
		k = 10
	}
	start := n - 1 - k
	return (series[n-1] - series[start]) / float64(k)
}
