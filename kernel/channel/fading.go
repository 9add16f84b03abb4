package channel

import (
	"math"
	"math/rand"
)

// DefaultPaths is the default number of Jakes oscillators (spec.md §4.5).
const DefaultPaths = 8

// FadingModel is a Jakes-style sum-of-sinusoids Rayleigh channel: L complex
// oscillators with evenly spaced angles of arrival and pseudo-random initial
// phases, combined with AWGN at the same configured SNR. State (elapsed
// logical time) persists across ticks so the gain evolves continuously.
type FadingModel struct {
	snrDB     float64
	rng       *rand.Rand
	dopplerHz float64
	tickS     float64
	alpha     []float64
	phi0      []float64
	elapsedS  float64
}

// NewFading builds a fading model with numPaths oscillators (DefaultPaths if
// numPaths<=0), doppler frequency dopplerHz, and the scenario's logical tick
// duration. r must be this channel's dedicated "fading" RNG stream.
func NewFading(numPaths int, dopplerHz float64, tickMs int, snrDB float64, r *rand.Rand) *FadingModel {
	if numPaths <= 0 {
		numPaths = DefaultPaths
	}
	alpha := make([]float64, numPaths)
	phi0 := make([]float64, numPaths)
	for n := 0; n < numPaths; n++ {
		alpha[n] = 2 * math.Pi * float64(n+1) / float64(numPaths)
		phi0[n] = r.Float64() * 2 * math.Pi
	}
	return &FadingModel{
		snrDB:     snrDB,
		rng:       r,
		dopplerHz: dopplerHz,
		tickS:     float64(tickMs) / 1000.0,
		alpha:     alpha,
		phi0:      phi0,
	}
}

// gain advances the channel by one tick and returns the instantaneous
// fading envelope |h(t)|, divided by the number of paths so it never exceeds
// 1; its mean-square over time is about 1/numPaths.
func (m *FadingModel) gain() float64 {
	t := m.elapsedS
	var re, im float64
	for n, alpha := range m.alpha {
		theta := 2*math.Pi*m.dopplerHz*math.Cos(alpha)*t + m.phi0[n]
		re += math.Cos(theta)
		im += math.Sin(theta)
	}
	m.elapsedS += m.tickS
	return math.Hypot(re, im) / float64(len(m.alpha))
}

// Process applies the current fading gain multiplicatively to block, then
// AWGN at the model's configured SNR, per spec.md §4.5.
func (m *FadingModel) Process(block []int16) (out []int16, snrEstDB float64, gain float64) {
	g := m.gain()
	faded := make([]int16, len(block))
	for i, v := range block {
		faded[i] = clipInt16(float64(v) * g)
	}
	y, snrEst := applyAWGN(faded, m.snrDB, m.rng)
	return y, snrEst, g
}
