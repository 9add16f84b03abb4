// Package drybox is the simulation kernel: the discrete-event runner and
// the ByteLink/AudioBlock pipelines it drives, per spec.md §1. Everything
// outside this package (scenario-file loading, CLI parsing, adapter
// registration) is a boundary collaborator that depends on drybox, never
// the reverse.
package drybox

import (
	"github.com/Icing-Project/DryBox/kernel/bearer"
	"github.com/Icing-Project/DryBox/kernel/channel"
	"github.com/Icing-Project/DryBox/kernel/vocoder"
)

// Mode selects which pipeline the runner drives, per spec.md §3.
type Mode string

const (
	ModeByte  Mode = "byte"
	ModeAudio Mode = "audio"
)

// EndpointSpec is one side's adapter wiring: the adapter spec string, a
// linear output gain, and an optional named "modem" hint passed through to
// the adapter's Init config, per spec.md §6's `left`/`right` scenario keys.
type EndpointSpec struct {
	Adapter string
	Gain    float64
	Modem   string
}

// CryptoSpec carries explicit per-side key material from the scenario's
// optional crypto block (spec.md §6). A nil *CryptoSpec on Scenario means
// both sides derive their material via kernel/keys.Derive instead.
type CryptoSpec struct {
	LeftPriv  string
	RightPriv string
}

// AcceptanceCheck is the optional post-run check from spec.md §7: the run
// fails with exit code 2 if RequireEvent was never observed within
// WithinMs of logical time. **[EXPANDED]**
type AcceptanceCheck struct {
	RequireEvent string
	WithinMs     int64
}

// Scenario is the resolved, immutable configuration the kernel consumes —
// drybox's name for spec.md §3's ResolvedScenario. Building one is the
// scenario-file loader's job (internal/scenario), not the kernel's.
type Scenario struct {
	Mode       Mode
	DurationMs int64
	TickMs     int64
	Seed       uint64

	Bearer  bearer.Config
	Channel channel.Config
	Vocoder vocoder.Config

	Left  EndpointSpec
	Right EndpointSpec
	Crypto *CryptoSpec

	// LinkBudget is poll_link_tx's budget argument; spec.md §4.2 defaults it
	// to 32 when unset.
	LinkBudget int

	// RunID and AcceptanceCheck are additive fields (spec.md §4 expansion):
	// neither affects the SHA-256(pubkeys.txt) determinism invariant.
	RunID           string
	AcceptanceCheck *AcceptanceCheck
}

func (s Scenario) tickMs() int64 {
	if s.TickMs <= 0 {
		return 20
	}
	return s.TickMs
}

func (s Scenario) linkBudget() int {
	if s.LinkBudget <= 0 {
		return 32
	}
	return s.LinkBudget
}
