// Package scenario loads and validates a DryBox scenario YAML file into a
// drybox.Scenario, following the same yamlConfig -> validate -> Config
// two-struct pattern bridge/config.go uses. This package is a boundary
// collaborator: the kernel (package drybox) never imports it.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Icing-Project/DryBox/kernel/bearer"
	"github.com/Icing-Project/DryBox/kernel/channel"
	"github.com/Icing-Project/DryBox/kernel/vocoder"

	"github.com/Icing-Project/DryBox"
)

const (
	defaultTickMs    = 20
	defaultMTUBytes  = 1024
	defaultLinkBudget = 32
)

type yamlScenario struct {
	Mode       string `yaml:"mode"`
	DurationMs int64  `yaml:"duration_ms"`
	TickMs     int64  `yaml:"tick_ms"`
	Seed       int64  `yaml:"seed"`

	Network struct {
		Bearer      string  `yaml:"bearer"`
		LatencyMs   int     `yaml:"latency_ms"`
		JitterMs    int     `yaml:"jitter_ms"`
		LossRate    float64 `yaml:"loss_rate"`
		ReorderRate float64 `yaml:"reorder_rate"`
		MTU         int     `yaml:"mtu"`
		Budget      int     `yaml:"budget"`
	} `yaml:"network"`

	Channel struct {
		Type      string  `yaml:"type"`
		SNRdB     float64 `yaml:"snr_db"`
		DopplerHz float64 `yaml:"doppler_hz"`
		NumPaths  int     `yaml:"num_paths"`
	} `yaml:"channel"`

	Vocoder struct {
		Type   string `yaml:"type"`
		VADDTX bool   `yaml:"vad_dtx"`
	} `yaml:"vocoder"`

	Left  yamlEndpoint `yaml:"left"`
	Right yamlEndpoint `yaml:"right"`

	Crypto struct {
		LeftPriv  string `yaml:"left_priv"`
		RightPriv string `yaml:"right_priv"`
	} `yaml:"crypto"`

	Acceptance struct {
		RequireEvent string `yaml:"require_event"`
		WithinMs     int64  `yaml:"within_ms"`
	} `yaml:"acceptance"`
}

type yamlEndpoint struct {
	Adapter string  `yaml:"adapter"`
	Gain    float64 `yaml:"gain"`
	Modem   string  `yaml:"modem"`
}

// Load reads path, validates its contents, and returns a resolved
// drybox.Scenario. Every validation failure is wrapped in a
// drybox.ScenarioError so the CLI boundary can map it to exit code 4.
func Load(path string) (drybox.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return drybox.Scenario{}, &drybox.ScenarioError{Field: "path", Err: fmt.Errorf("read scenario file: %w", err)}
	}

	var yc yamlScenario
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return drybox.Scenario{}, &drybox.ScenarioError{Field: "yaml", Err: fmt.Errorf("parse scenario file: %w", err)}
	}

	s := drybox.Scenario{
		TickMs:     defaultTickMs,
		LinkBudget: defaultLinkBudget,
	}

	switch drybox.Mode(yc.Mode) {
	case drybox.ModeByte, drybox.ModeAudio:
		s.Mode = drybox.Mode(yc.Mode)
	default:
		return drybox.Scenario{}, &drybox.ScenarioError{Field: "mode", Err: fmt.Errorf("must be %q or %q, got %q", drybox.ModeByte, drybox.ModeAudio, yc.Mode)}
	}

	if yc.DurationMs <= 0 {
		return drybox.Scenario{}, &drybox.ScenarioError{Field: "duration_ms", Err: fmt.Errorf("must be positive, got %d", yc.DurationMs)}
	}
	s.DurationMs = yc.DurationMs

	if yc.TickMs > 0 {
		s.TickMs = yc.TickMs
	}

	if yc.Seed < 0 {
		return drybox.Scenario{}, &drybox.ScenarioError{Field: "seed", Err: fmt.Errorf("must be non-negative, got %d", yc.Seed)}
	}
	s.Seed = uint64(yc.Seed)

	bc := bearer.Config{
		LatencyMs:   yc.Network.LatencyMs,
		JitterMs:    yc.Network.JitterMs,
		LossRate:    yc.Network.LossRate,
		ReorderRate: yc.Network.ReorderRate,
		MTUBytes:    defaultMTUBytes,
	}
	if yc.Network.MTU > 0 {
		bc.MTUBytes = yc.Network.MTU
	}
	if bc.LossRate < 0 || bc.LossRate > 1 {
		return drybox.Scenario{}, &drybox.ScenarioError{Field: "network.loss_rate", Err: fmt.Errorf("must be in [0,1], got %v", bc.LossRate)}
	}
	if bc.ReorderRate < 0 || bc.ReorderRate > 1 {
		return drybox.Scenario{}, &drybox.ScenarioError{Field: "network.reorder_rate", Err: fmt.Errorf("must be in [0,1], got %v", bc.ReorderRate)}
	}
	s.Bearer = bc
	if yc.Network.Budget > 0 {
		s.LinkBudget = yc.Network.Budget
	}

	cc := channel.Config{
		Kind:      yc.Channel.Type,
		SNRdB:     yc.Channel.SNRdB,
		DopplerHz: yc.Channel.DopplerHz,
		NumPaths:  yc.Channel.NumPaths,
	}
	switch cc.Kind {
	case "", "awgn", "rayleigh", "fading":
	default:
		return drybox.Scenario{}, &drybox.ScenarioError{Field: "channel.type", Err: fmt.Errorf("unknown channel kind %q", cc.Kind)}
	}
	s.Channel = cc

	vc := vocoder.Config{Kind: vocoder.Kind(yc.Vocoder.Type), VADDTX: yc.Vocoder.VADDTX, LossRate: bc.LossRate}
	if vc.Kind == "" {
		vc.Kind = vocoder.KindNone
	}
	if _, _, err := vocoder.Params(vc.Kind); err != nil {
		return drybox.Scenario{}, &drybox.ScenarioError{Field: "vocoder.type", Err: err}
	}
	s.Vocoder = vc

	if yc.Left.Adapter == "" {
		return drybox.Scenario{}, &drybox.ScenarioError{Field: "left.adapter", Err: fmt.Errorf("required")}
	}
	if yc.Right.Adapter == "" {
		return drybox.Scenario{}, &drybox.ScenarioError{Field: "right.adapter", Err: fmt.Errorf("required")}
	}
	s.Left = drybox.EndpointSpec{Adapter: yc.Left.Adapter, Gain: yc.Left.Gain, Modem: yc.Left.Modem}
	s.Right = drybox.EndpointSpec{Adapter: yc.Right.Adapter, Gain: yc.Right.Gain, Modem: yc.Right.Modem}

	if yc.Crypto.LeftPriv != "" || yc.Crypto.RightPriv != "" {
		s.Crypto = &drybox.CryptoSpec{LeftPriv: yc.Crypto.LeftPriv, RightPriv: yc.Crypto.RightPriv}
	}

	if yc.Acceptance.RequireEvent != "" {
		s.AcceptanceCheck = &drybox.AcceptanceCheck{RequireEvent: yc.Acceptance.RequireEvent, WithinMs: yc.Acceptance.WithinMs}
	}

	return s, nil
}

// WriteResolved writes the immutable resolved scenario back out as YAML, the
// artifact spec.md §6 calls scenario.resolved.yaml.
func WriteResolved(path string, s drybox.Scenario) error {
	out := map[string]any{
		"mode":        string(s.Mode),
		"duration_ms": s.DurationMs,
		"tick_ms":     s.TickMs,
		"seed":        s.Seed,
		"run_id":      s.RunID,
		"network": map[string]any{
			"latency_ms":   s.Bearer.LatencyMs,
			"jitter_ms":    s.Bearer.JitterMs,
			"loss_rate":    s.Bearer.LossRate,
			"reorder_rate": s.Bearer.ReorderRate,
			"mtu":          s.Bearer.MTUBytes,
			"budget":       s.LinkBudget,
		},
		"channel": map[string]any{
			"type":       s.Channel.Kind,
			"snr_db":     s.Channel.SNRdB,
			"doppler_hz": s.Channel.DopplerHz,
			"num_paths":  s.Channel.NumPaths,
		},
		"left":  map[string]any{"adapter": s.Left.Adapter, "gain": s.Left.Gain, "modem": s.Left.Modem},
		"right": map[string]any{"adapter": s.Right.Adapter, "gain": s.Right.Gain, "modem": s.Right.Modem},
	}

	quantizeStep, lowpass, err := vocoder.Params(s.Vocoder.Kind)
	if err == nil {
		out["vocoder"] = map[string]any{
			"type":    string(s.Vocoder.Kind),
			"vad_dtx": s.Vocoder.VADDTX,
			"params": map[string]any{
				"quantize_step": quantizeStep,
				"lowpass_taps":  lowpass,
			},
		}
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal scenario.resolved.yaml: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
