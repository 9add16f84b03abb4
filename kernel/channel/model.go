package channel

import (
	"fmt"
	"math/rand"
)

// Model is the runner-facing channel interface: a per-tick PCM16 block
// transform reporting the estimated delivered SNR.
type Model interface {
	Process(block []int16) (out []int16, snrEstDB float64)
}

type awgnAdapter struct{ m *AWGNModel }

func (a awgnAdapter) Process(block []int16) ([]int16, float64) { return a.m.Process(block) }

type fadingAdapter struct{ m *FadingModel }

func (a fadingAdapter) Process(block []int16) ([]int16, float64) {
	out, snr, _ := a.m.Process(block)
	return out, snr
}

// Config mirrors the scenario's channel.{type,snr_db,doppler_hz,num_paths}
// block (spec.md §3).
type Config struct {
	Kind      string
	SNRdB     float64
	DopplerHz float64
	NumPaths  int
}

// New builds the configured channel model, wiring it to the dedicated
// "awgn" or "fading" RNG stream.
func New(cfg Config, tickMs int, awgnRNG, fadingRNG *rand.Rand) (Model, error) {
	switch cfg.Kind {
	case "", "awgn":
		return awgnAdapter{NewAWGN(cfg.SNRdB, awgnRNG)}, nil
	case "rayleigh", "fading":
		return fadingAdapter{NewFading(cfg.NumPaths, cfg.DopplerHz, tickMs, cfg.SNRdB, fadingRNG)}, nil
	default:
		return nil, fmt.Errorf("channel: unknown kind %q", cfg.Kind)
	}
}
