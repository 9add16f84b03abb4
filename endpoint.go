package drybox

import (
	"fmt"
	"math/rand"

	"github.com/Icing-Project/DryBox/kernel/adapter"
	"github.com/Icing-Project/DryBox/kernel/keys"
)

// endpoint wraps one side's raw adapter value (whatever kernel/adapter.Resolve
// returned) with the side label and the type assertions the runner needs,
// so Runner itself never juggles `any`.
type endpoint struct {
	side adapter.Side
	raw  any

	lifecycle adapter.Lifecycle
	caps      adapter.CapabilityProvider
	byteLink  adapter.ByteLinkAdapter
	audio     adapter.AudioBlockAdapter

	capabilities adapter.Capabilities
	ctx          *adapter.Context
}

func newEndpoint(side adapter.Side, raw any) (*endpoint, error) {
	lifecycle, ok := raw.(adapter.Lifecycle)
	if !ok {
		return nil, &EndpointError{Side: string(side), Op: "resolve", Err: fmt.Errorf("adapter does not implement Lifecycle")}
	}
	caps, ok := raw.(adapter.CapabilityProvider)
	if !ok {
		return nil, &EndpointError{Side: string(side), Op: "resolve", Err: fmt.Errorf("adapter does not implement CapabilityProvider")}
	}
	e := &endpoint{side: side, raw: raw, lifecycle: lifecycle, caps: caps}
	e.byteLink, _ = raw.(adapter.ByteLinkAdapter)
	e.audio, _ = raw.(adapter.AudioBlockAdapter)
	return e, nil
}

func (e *endpoint) init(cfg map[string]any) error {
	if initr, ok := e.raw.(adapter.Initializer); ok {
		if err := initr.Init(cfg); err != nil {
			return &EndpointError{Side: string(e.side), Op: "init", Err: err}
		}
	}
	return nil
}

func (e *endpoint) start(tickMs int, seed uint64, outDir string, crypto *keys.Material, r *rand.Rand, nowFn func() int64, emit func(string, any)) error {
	e.capabilities = e.caps.Capabilities()
	e.ctx = adapter.NewContext(e.side, tickMs, seed, outDir, crypto, r, nowFn, emit)
	if err := e.lifecycle.Start(e.ctx); err != nil {
		return &EndpointError{Side: string(e.side), Op: "start", Err: err}
	}
	return nil
}

func (e *endpoint) stop() error {
	if err := e.lifecycle.Stop(); err != nil {
		return &EndpointError{Side: string(e.side), Op: "stop", Err: err}
	}
	return nil
}

func (e *endpoint) onTimer(tMs int64) {
	e.lifecycle.OnTimer(tMs)
}
