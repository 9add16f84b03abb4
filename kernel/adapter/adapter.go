// Package adapter defines the ABI a peer under test implements, and the
// in-process registry DryBox uses to resolve an "adapter spec" string into a
// live Adapter value. spec.md §9 notes that dynamic-library and subprocess
// loading are both valid mechanisms for a systems reimplementation; this
// kernel picks the simplest one a Go process can offer natively: an
// in-process trait object registered ahead of time by whatever binary embeds
// the kernel (see internal/adapter/builtin, whose init() registers the
// reference adapters, and cmd/drybox, which imports it for that effect).
package adapter

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/Icing-Project/DryBox/kernel/keys"
)

// Side identifies which endpoint of the simulated link an adapter plays.
type Side string

const (
	SideLeft  Side = "L"
	SideRight Side = "R"
)

// AudioParams describes the PCM framing an adapter advertises. A nil
// *AudioParams means "use the kernel default" (8kHz, 160-sample blocks).
type AudioParams struct {
	SampleRate   int
	BlockSamples int
}

// Capabilities is the fixed-shape negotiation record every adapter
// constructor must be able to produce without first calling Start.
type Capabilities struct {
	ABIVersion  string
	ByteLink    bool
	AudioBlock  bool
	SDUMaxBytes int
	AudioParams *AudioParams
}

// ErrIncompatibleMode is returned by the runner when neither adapter
// advertises the scenario's requested mode.
var ErrIncompatibleMode = fmt.Errorf("adapter does not advertise the requested mode")

// Context is the read/write handle the kernel hands each adapter. It is the
// only channel through which an adapter observes logical time, draws
// randomness, or emits artifacts; the kernel owns every underlying sink.
type Context struct {
	Side   Side
	TickMs int
	Seed   uint64
	OutDir string
	Crypto *keys.Material

	rng    *rand.Rand
	nowFn  func() int64
	emitFn func(eventType string, payload any)
}

// NewContext builds a Context. emit and now must be non-nil.
func NewContext(side Side, tickMs int, seed uint64, outDir string, crypto *keys.Material, r *rand.Rand, now func() int64, emit func(string, any)) *Context {
	return &Context{
		Side:   side,
		TickMs: tickMs,
		Seed:   seed,
		OutDir: outDir,
		Crypto: crypto,
		rng:    r,
		nowFn:  now,
		emitFn: emit,
	}
}

// NowMs returns the current logical time.
func (c *Context) NowMs() int64 { return c.nowFn() }

// EmitEvent appends a free-form, JSON-safe event to the run's event log.
func (c *Context) EmitEvent(eventType string, payload any) { c.emitFn(eventType, payload) }

// RNG returns this side's seeded PRNG stream.
func (c *Context) RNG() *rand.Rand { return c.rng }

// Lifecycle is the subset of the adapter ABI every adapter implements
// regardless of mode.
type Lifecycle interface {
	Start(ctx *Context) error
	Stop() error
	OnTimer(tMs int64)
}

// Initializer is optional: adapters that need scenario-level configuration
// before Start implement it; the runner probes for it via a type assertion.
type Initializer interface {
	Init(cfg map[string]any) error
}

// CapabilityProvider is required of every registered adapter: a free
// function (here, a method with no side effects) returning its negotiation
// record.
type CapabilityProvider interface {
	Capabilities() Capabilities
}

// ByteLinkAdapter is Mode A of the ABI (spec.md §4.7).
type ByteLinkAdapter interface {
	Lifecycle
	CapabilityProvider
	OnLinkRx(sdu []byte)
	PollLinkTx(budget int) [][]byte
}

// AudioBlockAdapter is Mode B of the ABI. Both callbacks carry t_ms, per the
// canonical signature spec.md §9 settles on.
type AudioBlockAdapter interface {
	Lifecycle
	CapabilityProvider
	PullTxBlock(tMs int64) []int16
	PushRxBlock(pcm []int16, tMs int64)
}

// Constructor builds a fresh adapter instance. Adapters are stateful and
// single-use per run, the same way bridge/lk_codecs.go resolves a codec by
// name into a fresh negotiated instance per call rather than sharing one.
type Constructor func() any

var (
	registryMu sync.Mutex
	registry   = map[string]Constructor{}
)

// Register associates a name with a constructor. Called at process init by
// any package providing adapters (see internal/adapter/builtin for the two
// reference fixtures this repository ships).
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// Spec is a parsed "path[:ClassName]" adapter spec. For the in-process
// registry, "path" is the registered name and "ClassName" is ignored unless
// the registry groups several constructors under one name (it currently
// doesn't); ClassName defaults to "Adapter" per spec.md §6.
type Spec struct {
	Name      string
	ClassName string
}

// ParseSpec splits "path[:ClassName]" into its components.
func ParseSpec(raw string) Spec {
	if idx := strings.IndexByte(raw, ':'); idx >= 0 {
		return Spec{Name: raw[:idx], ClassName: raw[idx+1:]}
	}
	return Spec{Name: raw, ClassName: "Adapter"}
}

// Resolve looks up a registered constructor and instantiates it.
func Resolve(raw string) (any, error) {
	spec := ParseSpec(raw)
	registryMu.Lock()
	ctor, ok := registry[spec.Name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("adapter %q is not registered", spec.Name)
	}
	return ctor(), nil
}

// NegotiateMode checks that at least one side advertises the scenario's
// requested mode, returning ErrIncompatibleMode otherwise (spec.md §4.7:
// exit code 4 upstream).
func NegotiateMode(mode string, left, right Capabilities) error {
	switch mode {
	case "byte":
		if !left.ByteLink && !right.ByteLink {
			return ErrIncompatibleMode
		}
	case "audio":
		if !left.AudioBlock && !right.AudioBlock {
			return ErrIncompatibleMode
		}
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	return nil
}

// DefaultAudioParams is the kernel's preferred PCM framing (spec.md §4.7):
// 8kHz sample rate, 160-sample (20ms) blocks.
func DefaultAudioParams() AudioParams {
	return AudioParams{SampleRate: 8000, BlockSamples: 160}
}

// ResolveAudioParams implements the negotiation rule: the kernel prefers its
// own defaults over whatever an adapter advertises, and reports the
// divergence (the caller is expected to emit an "audioparams_override"
// event when overridden is true).
func ResolveAudioParams(advertised *AudioParams) (resolved AudioParams, overridden bool) {
	def := DefaultAudioParams()
	if advertised == nil {
		return def, false
	}
	if advertised.SampleRate != def.SampleRate || advertised.BlockSamples != def.BlockSamples {
		return def, true
	}
	return def, false
}
