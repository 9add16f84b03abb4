// Package vocoder implements DryBox's block-level vocoder mocks, VAD/DTX,
// and packet-loss concealment (spec.md §4.6).
package vocoder

import (
	"fmt"
	"math/rand"

	"github.com/Icing-Project/DryBox/kernel/channel"
)

// Kind names a vocoder mock. The exact spectral effect of each mock is not
// bit-exact to any real codec - spec.md §9 leaves the numeric parameters
// informal, so the chosen quantization step and low-pass taps are recorded
// here and echoed into scenario.resolved.yaml by the caller.
type Kind string

const (
	KindNone Kind = "none"
	KindAMR  Kind = "amr12k2_mock"
	KindEVS  Kind = "evs13k2_mock"
	KindOpus Kind = "opus_nb_mock"
)

// mockParams is the per-kind numeric profile: quantizeStep coarsens
// amplitude resolution, lowpassTaps smooths (simulating reduced bandwidth).
type mockParams struct {
	QuantizeStep int
	LowpassTaps  bool
}

var profiles = map[Kind]mockParams{
	KindNone: {QuantizeStep: 1, LowpassTaps: false},
	KindAMR:  {QuantizeStep: 8, LowpassTaps: false},
	KindEVS:  {QuantizeStep: 4, LowpassTaps: false},
	KindOpus: {QuantizeStep: 4, LowpassTaps: true},
}

// Params exposes a kind's numeric profile so callers can record it into
// scenario.resolved.yaml.
func Params(k Kind) (quantizeStep int, lowpass bool, err error) {
	p, ok := profiles[k]
	if !ok {
		return 0, false, fmt.Errorf("vocoder: unknown kind %q", k)
	}
	return p.QuantizeStep, p.LowpassTaps, nil
}

// Config is a vocoder's scenario-level configuration.
type Config struct {
	Kind        Kind
	VADDTX      bool
	LossRate    float64 // audio-level loss probability, per spec.md §4.6(c)
	TickMs      int
}

// EventSink receives vocoder-emitted events (dtx_enter/dtx_exit), mirroring
// adapter.Context's EmitEvent so the caller can route it into the same
// events.jsonl stream.
type EventSink func(eventType string, payload any)

// Vocoder is a stateful block transform: encode_decode(block, t_ms) ->
// (block', lost), per spec.md §4.6.
type Vocoder struct {
	cfg    Config
	params mockParams
	rng    *rand.Rand
	emit   EventSink

	frameCount      int64
	vadHangover     int
	vadActive       bool
	energyThreshold float64
	hangoverFrames  int
}

// New builds a Vocoder drawing randomness from a dedicated per-side RNG
// stream (vocoder_L / vocoder_R, per spec.md §4.8).
func New(cfg Config, r *rand.Rand, emit EventSink) (*Vocoder, error) {
	p, ok := profiles[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("vocoder: unknown kind %q", cfg.Kind)
	}
	if emit == nil {
		emit = func(string, any) {}
	}
	return &Vocoder{
		cfg:             cfg,
		params:          p,
		rng:             r,
		emit:            emit,
		energyThreshold: 0.02,
		hangoverFrames:  3,
		vadActive:       true,
	}, nil
}

// EncodeDecode applies the vocoder's coarse quantization/low-pass, then VAD
// gating, then a probabilistic loss mark - in that order, per spec.md §4.6.
func (v *Vocoder) EncodeDecode(block []int16, tMs int64) (out []int16, lost bool) {
	v.frameCount++

	shaped := v.shape(block)
	shaped = v.applyVAD(shaped, tMs)

	if v.rng.Float64() < v.cfg.LossRate {
		return shaped, true
	}
	return shaped, false
}

// shape runs the kind-specific coarse quantization and optional low-pass.
func (v *Vocoder) shape(block []int16) []int16 {
	if v.params.QuantizeStep <= 1 && !v.params.LowpassTaps {
		return append([]int16(nil), block...)
	}
	out := make([]int16, len(block))
	copy(out, block)
	if v.params.LowpassTaps {
		out = lowpass3(out)
	}
	if v.params.QuantizeStep > 1 {
		for i, s := range out {
			out[i] = quantize(s, v.params.QuantizeStep)
		}
	}
	return out
}

// applyVAD runs energy-threshold VAD with hangover. When the frame is quiet,
// DTX is enabled, and hangover has expired, it substitutes a quiet
// comfort-noise-like block and flags the transition via emit.
func (v *Vocoder) applyVAD(block []int16, tMs int64) []int16 {
	if !v.cfg.VADDTX {
		return block
	}
	energy := channel.Energy(block)
	if energy >= v.energyThreshold {
		if !v.vadActive {
			v.emit("dtx_exit", map[string]any{"t_ms": tMs})
		}
		v.vadActive = true
		v.vadHangover = v.hangoverFrames
		return block
	}
	if v.vadHangover > 0 {
		v.vadHangover--
		return block
	}
	if v.vadActive {
		v.emit("dtx_enter", map[string]any{"t_ms": tMs})
		v.vadActive = false
	}
	return comfortNoise(len(block), v.rng)
}

func quantize(s int16, step int) int16 {
	if step <= 1 {
		return s
	}
	v := int(s) / step * step
	return int16(v)
}

// lowpass3 is a 3-tap FIR smoothing pass approximating the bandwidth
// reduction of a narrowband codec.
func lowpass3(x []int16) []int16 {
	if len(x) < 3 {
		return x
	}
	out := make([]int16, len(x))
	out[0] = x[0]
	out[len(x)-1] = x[len(x)-1]
	for i := 1; i < len(x)-1; i++ {
		sum := int32(x[i-1]) + 2*int32(x[i]) + int32(x[i+1])
		out[i] = int16(sum / 4)
	}
	return out
}

// comfortNoise produces a low-level pseudo-random block standing in for DTX
// comfort noise.
func comfortNoise(n int, r *rand.Rand) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(r.NormFloat64() * 40)
	}
	return out
}
