package builtin

import (
	"math"

	"github.com/Icing-Project/DryBox/kernel/adapter"
)

func init() {
	adapter.Register("builtin/tone", func() any { return &Tone{} })
}

// toneFreqHz is the default test-tone frequency: 440Hz, a standard A4
// reference tone, chosen the way bridge's test fixtures generate PCM test
// signals.
const toneFreqHz = 440.0

// Tone is an AudioBlockAdapter that generates a fixed-frequency sine wave on
// PullTxBlock and records the RMS energy of whatever it receives on
// PushRxBlock. It exists for end-to-end tests of the channel/vocoder path
// where a deterministic, analyzable signal is more useful than a real codec.
type Tone struct {
	ctx       *adapter.Context
	freqHz    float64
	sampRate  int
	blockLen  int
	phase     float64
	lastRxRMS float64
}

// Capabilities implements adapter.CapabilityProvider.
func (t *Tone) Capabilities() adapter.Capabilities {
	params := adapter.DefaultAudioParams()
	return adapter.Capabilities{
		ABIVersion:  "1",
		AudioBlock:  true,
		AudioParams: &params,
	}
}

// Init implements adapter.Initializer. A "freq_hz" key, when present,
// overrides the default 440Hz tone.
func (t *Tone) Init(cfg map[string]any) error {
	t.freqHz = toneFreqHz
	if v, ok := cfg["freq_hz"]; ok {
		if f, ok := v.(float64); ok {
			t.freqHz = f
		}
	}
	return nil
}

// Start implements adapter.Lifecycle.
func (t *Tone) Start(ctx *adapter.Context) error {
	t.ctx = ctx
	if t.freqHz == 0 {
		t.freqHz = toneFreqHz
	}
	params, _ := adapter.ResolveAudioParams(nil)
	t.sampRate = params.SampleRate
	t.blockLen = params.BlockSamples
	return nil
}

// Stop implements adapter.Lifecycle.
func (t *Tone) Stop() error { return nil }

// OnTimer implements adapter.Lifecycle; Tone has no timer-driven behavior.
func (t *Tone) OnTimer(tMs int64) {}

// PullTxBlock implements adapter.AudioBlockAdapter: a fixed sine wave at
// quarter-scale amplitude, continuous across calls via the running phase.
func (t *Tone) PullTxBlock(tMs int64) []int16 {
	out := make([]int16, t.blockLen)
	step := 2 * math.Pi * t.freqHz / float64(t.sampRate)
	const amplitude = 8192.0
	for i := range out {
		out[i] = int16(amplitude * math.Sin(t.phase))
		t.phase += step
	}
	for t.phase > 2*math.Pi {
		t.phase -= 2 * math.Pi
	}
	return out
}

// PushRxBlock implements adapter.AudioBlockAdapter: tracks the RMS of the
// received block so a test can assert a tone survived the channel.
func (t *Tone) PushRxBlock(pcm []int16, tMs int64) {
	var sumSq float64
	for _, s := range pcm {
		sumSq += float64(s) * float64(s)
	}
	if len(pcm) > 0 {
		t.lastRxRMS = math.Sqrt(sumSq / float64(len(pcm)))
	}
	t.ctx.EmitEvent("tone_rx", map[string]any{"rms": t.lastRxRMS})
}

// LastRxRMS returns the RMS of the most recently received block, for tests.
func (t *Tone) LastRxRMS() float64 { return t.lastRxRMS }
