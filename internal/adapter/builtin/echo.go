// Package builtin provides the two reference adapters DryBox ships so a
// scenario file can exercise the ByteLink and AudioBlock ABIs without an
// external peer binary: Echo (ByteLink) and Tone (AudioBlock). Both
// self-register via init(), the same pattern bridge/lk_codecs.go uses for
// media-sdk's codec registry.
package builtin

import (
	"github.com/Icing-Project/DryBox/kernel/adapter"
)

func init() {
	adapter.Register("builtin/echo", func() any { return &Echo{} })
}

// Echo is a ByteLinkAdapter that reflects every SDU it receives back onto
// the link. By default the echo is queued for the next poll; a "delay_ticks"
// Init key adds a fixed queueing delay expressed in ticks rather than
// wall-clock time. It exists for end-to-end tests of the bearer/SAR path
// where the peer's own semantics shouldn't be the thing under test.
type Echo struct {
	ctx     *adapter.Context
	pending [][]byte
	delay   int
	queue   []delayedSDU
}

type delayedSDU struct {
	sdu     []byte
	atTick  int64
	enqueue int64
}

// Capabilities implements adapter.CapabilityProvider.
func (e *Echo) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		ABIVersion:  "1",
		ByteLink:    true,
		SDUMaxBytes: 65535,
	}
}

// Init implements adapter.Initializer. A "delay_ticks" key, when present,
// holds the queueing delay before a received SDU is echoed back.
func (e *Echo) Init(cfg map[string]any) error {
	if v, ok := cfg["delay_ticks"]; ok {
		if n, ok := v.(int); ok {
			e.delay = n
		}
	}
	return nil
}

// Start implements adapter.Lifecycle.
func (e *Echo) Start(ctx *adapter.Context) error {
	e.ctx = ctx
	return nil
}

// Stop implements adapter.Lifecycle.
func (e *Echo) Stop() error { return nil }

// OnTimer implements adapter.Lifecycle: it releases any SDU whose delay has
// elapsed into the outbound queue PollLinkTx drains.
func (e *Echo) OnTimer(tMs int64) {
	if e.delay <= 0 {
		return
	}
	kept := e.queue[:0]
	for _, d := range e.queue {
		if tMs >= d.atTick {
			e.pending = append(e.pending, d.sdu)
		} else {
			kept = append(kept, d)
		}
	}
	e.queue = kept
}

// OnLinkRx implements adapter.ByteLinkAdapter.
func (e *Echo) OnLinkRx(sdu []byte) {
	cp := append([]byte(nil), sdu...)
	if e.delay <= 0 {
		e.pending = append(e.pending, cp)
		return
	}
	now := e.ctx.NowMs()
	e.queue = append(e.queue, delayedSDU{sdu: cp, atTick: now + int64(e.delay)*int64(e.ctx.TickMs), enqueue: now})
}

// PollLinkTx implements adapter.ByteLinkAdapter.
func (e *Echo) PollLinkTx(budget int) [][]byte {
	if len(e.pending) == 0 {
		return nil
	}
	n := len(e.pending)
	if budget > 0 && budget < n {
		n = budget
	}
	out := e.pending[:n]
	e.pending = e.pending[n:]
	return out
}
