// Package rng provisions deterministic per-subsystem PRNG streams from a
// single 64-bit master seed, so that re-running a scenario with the same
// seed reproduces byte-identical artifacts regardless of how many other
// subsystems also draw from the master seed.
package rng

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"
)

// Standard subsystem labels, per DryBox's RNG partitioning rules. Each label
// gets its own independent stream; adding a new subsystem never perturbs the
// sequences already handed out to existing labels.
const (
	LabelBearerLtoR = "bearer_LtoR"
	LabelBearerRtoL = "bearer_RtoL"
	LabelAWGN       = "awgn"
	LabelFading     = "fading"
	LabelVocoderL   = "vocoder_L"
	LabelVocoderR   = "vocoder_R"
	LabelAdapterL   = "adapter_L"
	LabelAdapterR   = "adapter_R"
)

// New returns a *rand.Rand seeded deterministically from masterSeed and
// label. Two calls with the same (masterSeed, label) always produce the same
// stream; two different labels under the same masterSeed produce
// independent, non-overlapping streams.
func New(masterSeed uint64, label string) *rand.Rand {
	return rand.New(rand.NewSource(derive(masterSeed, label)))
}

// derive folds masterSeed and label into a single int64 seed via FNV-1a.
// FNV is not cryptographic, which is fine here: the goal is stream
// separation, not secrecy (key material uses kernel/keys' HKDF instead).
func derive(masterSeed uint64, label string) int64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], masterSeed)
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(label))
	return int64(h.Sum64())
}

// Uniform draws a value in [lo, hi) using r. Returns lo when hi<=lo.
func Uniform(r *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + r.Float64()*(hi-lo)
}
