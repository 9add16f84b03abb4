package channel

import (
	"math"
	"math/rand"
)

// clipInt16 saturates a float sample to the int16 range, the same clamp
// bridge/pcm helpers apply implicitly via uint16 wraparound - done
// explicitly here since AWGN can push samples outside int16 range.
func clipInt16(v float64) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}

// AWGNModel adds i.i.d. Gaussian noise to a PCM16 block so its power ratio
// to the input matches the configured SNR, per spec.md §4.5.
type AWGNModel struct {
	SNRdB float64
	rng   *rand.Rand
}

// NewAWGN builds an AWGN model drawing from its own dedicated RNG stream.
func NewAWGN(snrDB float64, r *rand.Rand) *AWGNModel {
	return &AWGNModel{SNRdB: snrDB, rng: r}
}

// Process applies AWGN to block and reports the estimated delivered SNR.
func (m *AWGNModel) Process(block []int16) (out []int16, snrEstDB float64) {
	return applyAWGN(block, m.SNRdB, m.rng)
}

func applyAWGN(x []int16, snrDB float64, r *rand.Rand) (y []int16, snrEstDB float64) {
	n := len(x)
	if n == 0 {
		n = 1
	}
	var sumSq float64
	for _, v := range x {
		f := float64(v)
		sumSq += f * f
	}
	ps := sumSq / float64(n)

	if math.IsInf(snrDB, 1) {
		return append([]int16(nil), x...), math.Inf(1)
	}

	pn := ps / math.Pow(10, snrDB/10)
	sigma := math.Sqrt(pn)

	y = make([]int16, len(x))
	var noisePowerSum, signalPowerSum float64
	for i, v := range x {
		noise := sigma * r.NormFloat64()
		out := float64(v) + noise
		y[i] = clipInt16(out)
		noisePowerSum += noise * noise
		signalPowerSum += float64(y[i]) * float64(y[i])
	}
	if len(x) == 0 {
		return y, snrDB
	}
	noisePower := noisePowerSum / float64(len(x))
	if noisePower <= 0 {
		return y, math.Inf(1)
	}
	signalPower := signalPowerSum / float64(len(x))
	return y, 10 * math.Log10(signalPower/noisePower)
}
