package analysis

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

// PowerSpectrum returns the magnitude of the first half of the DFT of the
// mean-removed series.
func PowerSpectrum(data []float64) []float64 {
	if len(data) < 2 {
		return nil
	}
	mean := stat.Mean(data, nil)
	centered := make([]float64, len(data))
	for i, v := range data {
		centered[i] = v - mean
	}

	spectrum := fft.FFTReal(centered)
	ps := make([]float64, len(spectrum)/2)
	for i := range ps {
		ps[i] = cmplx.Abs(spectrum[i])
	}
	return ps
}

// DominantPeriod returns the period, in steps, of the strongest non-DC
// component of a series sampled every sampleEvery steps.
func DominantPeriod(data []float64, sampleEvery int) (float64, bool) {
	ps := PowerSpectrum(data)
	if len(ps) < 2 {
		return 0, false
	}
	best := 1
	for k := 2; k < len(ps); k++ {
		if ps[k] > ps[best] {
			best = k
		}
	}
	if ps[best] == 0 {
		return 0, false
	}
	return float64(len(data)) / float64(best) * float64(sampleEvery), true
}
