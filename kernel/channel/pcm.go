package channel

import (
	"encoding/binary"
	"math"
)

// BlockSamples is the fixed AudioBlock size spec.md §3 mandates: 160 PCM16
// samples (20ms at 8kHz), mono, contiguous.
const BlockSamples = 160

// BytesToSamples converts a little-endian PCM16 byte block into []int16,
// adapted from bridge/pcm/pcm16_helpers.go's PCM16BytesToSample.
func BytesToSamples(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return out
}

// SamplesToBytes is BytesToSamples' inverse.
func SamplesToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(v))
	}
	return out
}

// Energy computes a simple RMS-like energy metric for a PCM16 block,
// generalized from bridge/media_bridge.go's pcm16leMonoEnergy (which worked
// on raw bytes tied to one format) into a format-agnostic []int16 helper.
func Energy(block []int16) float64 {
	if len(block) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range block {
		f := float64(v) / 32768.0
		sumSq += f * f
	}
	return math.Sqrt(sumSq / float64(len(block)))
}
