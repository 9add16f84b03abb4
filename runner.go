package drybox

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/Icing-Project/DryBox/kernel/adapter"
	"github.com/Icing-Project/DryBox/kernel/bearer"
	"github.com/Icing-Project/DryBox/kernel/channel"
	"github.com/Icing-Project/DryBox/kernel/keys"
	"github.com/Icing-Project/DryBox/kernel/link"
	"github.com/Icing-Project/DryBox/kernel/rng"
	"github.com/Icing-Project/DryBox/kernel/sar"
	"github.com/Icing-Project/DryBox/kernel/telemetry"
	"github.com/Icing-Project/DryBox/kernel/vocoder"
)

// Runner drives one Scenario end-to-end: the logical-clock tick loop gluing
// SAR, the bearer, the channel/vocoder/PLC chain, and the telemetry sinks
// together (spec.md §4.1). Single-threaded, cooperative, no internal
// suspension points — the shape spec.md §5 mandates, kept even though the
// teacher's media bridge ran one goroutine per direction against wall-clock
// tickers.
type Runner struct {
	scenario Scenario

	left, right *endpoint

	bearer *bearer.Bearer
	sarEnc [2]sar.Encoder
	sarTbl *sar.Table

	channelLtoR, channelRtoL channel.Model
	vocL, vocR               *vocoder.Vocoder
	plcAtR, plcAtL           *vocoder.PLC

	metricsW *telemetry.MetricsWriter
	eventsW  *telemetry.EventWriter
	captureW *telemetry.CaptureWriter

	nowMs          int64
	acceptanceSeen bool
	acceptanceAtMs int64
	statsCollector *telemetry.Collector
	lastSNR        [2]float64

	// snapMu guards lastBearerSnap: Tick (the run loop's goroutine) writes it
	// every tick, while Collector()'s prometheus.Collector may be scraped
	// concurrently from an HTTP handler goroutine (cmd/drybox's --metrics-addr).
	snapMu         sync.Mutex
	lastBearerSnap [2]bearer.Snapshot
}

// NewRunner builds a Runner for scenario, resolving left/right into typed
// endpoints. left and right are whatever kernel/adapter.Resolve returned.
func NewRunner(scenario Scenario, left, right any) (*Runner, error) {
	l, err := newEndpoint(adapter.SideLeft, left)
	if err != nil {
		return nil, err
	}
	r, err := newEndpoint(adapter.SideRight, right)
	if err != nil {
		return nil, err
	}
	return &Runner{scenario: scenario, left: l, right: r}, nil
}

// Snapshot implements telemetry.StatsProvider, backing Runner.Collector().
func (rn *Runner) Snapshot(dir string) telemetry.SideSnapshot {
	var d link.Direction
	if dir == "R->L" {
		d = link.RtoL
	}
	rn.snapMu.Lock()
	s := rn.lastBearerSnap[d]
	rn.snapMu.Unlock()
	return telemetry.SideSnapshot{LossRate: s.LossRate, ReorderRate: s.ReorderRate, JitterMs: s.JitterMs, GoodputBps: s.GoodputBps}
}

// Collector returns a live prometheus.Collector mirroring this run's rolling
// bearer stats. Purely additive: scraping it never touches the deterministic
// artifacts (spec.md §5.8 expansion).
func (rn *Runner) Collector() *telemetry.Collector {
	if rn.statsCollector == nil {
		rn.statsCollector = telemetry.NewCollector(rn)
	}
	return rn.statsCollector
}

// Run executes the scenario to completion, writing every artifact into
// outDir, and returns the spec.md §6 exit code alongside any error.
func (rn *Runner) Run(outDir string) (exitCode int, err error) {
	if err := rn.setup(outDir); err != nil {
		return ExitCode(err), err
	}
	defer func() {
		rn.metricsW.Close()
		rn.eventsW.Close()
		rn.captureW.Close()
	}()

	if err := rn.left.init(map[string]any{"gain": rn.scenario.Left.Gain, "modem": rn.scenario.Left.Modem}); err != nil {
		return ExitCode(err), err
	}
	if err := rn.right.init(map[string]any{"gain": rn.scenario.Right.Gain, "modem": rn.scenario.Right.Modem}); err != nil {
		return ExitCode(err), err
	}

	leftCaps := rn.left.caps.Capabilities()
	rightCaps := rn.right.caps.Capabilities()
	if err := adapter.NegotiateMode(string(rn.scenario.Mode), leftCaps, rightCaps); err != nil {
		failure := &ScenarioError{Field: "mode", Err: err}
		return ExitCode(failure), failure
	}

	leftRNG := rng.New(rn.scenario.Seed, rng.LabelAdapterL)
	rightRNG := rng.New(rn.scenario.Seed, rng.LabelAdapterR)
	leftCrypto, rightCrypto, err := rn.resolveCrypto()
	if err != nil {
		return ExitCode(err), err
	}
	if err := rn.writePubkeys(outDir, leftCrypto, rightCrypto); err != nil {
		return ExitCode(err), err
	}

	if err := rn.left.start(int(rn.scenario.tickMs()), rn.scenario.Seed, outDir, leftCrypto, leftRNG, rn.now, rn.emitFor(adapter.SideLeft)); err != nil {
		return ExitCode(err), err
	}
	if err := rn.right.start(int(rn.scenario.tickMs()), rn.scenario.Seed, outDir, rightCrypto, rightRNG, rn.now, rn.emitFor(adapter.SideRight)); err != nil {
		return ExitCode(err), err
	}

	tick := rn.scenario.tickMs()
	for t := int64(0); t < rn.scenario.DurationMs; t += tick {
		rn.nowMs = t
		if err := rn.Tick(t); err != nil {
			_ = rn.left.stop()
			_ = rn.right.stop()
			return ExitCode(err), err
		}
	}

	if err := rn.left.stop(); err != nil {
		return ExitCode(err), err
	}
	if err := rn.right.stop(); err != nil {
		return ExitCode(err), err
	}

	if ac := rn.scenario.AcceptanceCheck; ac != nil {
		if !rn.acceptanceSeen || rn.acceptanceAtMs > ac.WithinMs {
			failure := &AcceptanceFailure{Check: ac.RequireEvent, Detail: fmt.Sprintf("not observed within %dms", ac.WithinMs)}
			return ExitCode(failure), failure
		}
	}

	return ExitOK, nil
}

func (rn *Runner) now() int64 { return rn.nowMs }

func (rn *Runner) emitFor(side adapter.Side) func(string, any) {
	return func(eventType string, payload any) {
		rn.recordEvent(side, eventType, payload)
		if ac := rn.scenario.AcceptanceCheck; ac != nil && eventType == ac.RequireEvent && !rn.acceptanceSeen {
			rn.acceptanceSeen = true
			rn.acceptanceAtMs = rn.nowMs
		}
	}
}

func (rn *Runner) recordEvent(side adapter.Side, eventType string, payload any) {
	_ = rn.eventsW.WriteEvent(telemetry.Event{TMs: rn.nowMs, Side: string(side), Type: eventType, Payload: payload})
}

func (rn *Runner) setup(outDir string) error {
	rn.bearer = bearer.New(rn.scenario.Bearer, rn.scenario.Seed)
	rttEst := 2 * int64(rn.scenario.Bearer.LatencyMs)
	rn.sarTbl = sar.NewTable(rttEst)

	if rn.scenario.Mode == ModeAudio {
		awgnLtoR := rng.New(rn.scenario.Seed, rng.LabelAWGN+"_LtoR")
		fadingLtoR := rng.New(rn.scenario.Seed, rng.LabelFading+"_LtoR")
		awgnRtoL := rng.New(rn.scenario.Seed, rng.LabelAWGN+"_RtoL")
		fadingRtoL := rng.New(rn.scenario.Seed, rng.LabelFading+"_RtoL")

		var err error
		rn.channelLtoR, err = channel.New(rn.scenario.Channel, int(rn.scenario.tickMs()), awgnLtoR, fadingLtoR)
		if err != nil {
			return &ScenarioError{Field: "channel", Err: err}
		}
		rn.channelRtoL, err = channel.New(rn.scenario.Channel, int(rn.scenario.tickMs()), awgnRtoL, fadingRtoL)
		if err != nil {
			return &ScenarioError{Field: "channel", Err: err}
		}

		vocCfg := rn.scenario.Vocoder
		vocCfg.TickMs = int(rn.scenario.tickMs())
		rn.vocL, err = vocoder.New(vocCfg, rng.New(rn.scenario.Seed, rng.LabelVocoderL), rn.emitFor(adapter.SideLeft))
		if err != nil {
			return &ScenarioError{Field: "vocoder", Err: err}
		}
		rn.vocR, err = vocoder.New(vocCfg, rng.New(rn.scenario.Seed, rng.LabelVocoderR), rn.emitFor(adapter.SideRight))
		if err != nil {
			return &ScenarioError{Field: "vocoder", Err: err}
		}
		rn.plcAtR = vocoder.NewPLC(int(rn.scenario.tickMs()))
		rn.plcAtL = vocoder.NewPLC(int(rn.scenario.tickMs()))
	}

	var err error
	rn.metricsW, err = telemetry.NewMetricsWriter(filepath.Join(outDir, "metrics.csv"))
	if err != nil {
		return err
	}
	rn.eventsW, err = telemetry.NewEventWriter(filepath.Join(outDir, "events.jsonl"))
	if err != nil {
		return err
	}
	rn.captureW, err = telemetry.NewCaptureWriter(filepath.Join(outDir, "capture.dbxcap"))
	if err != nil {
		return err
	}
	return nil
}

func (rn *Runner) resolveCrypto() (left, right *keys.Material, err error) {
	if cs := rn.scenario.Crypto; cs != nil && cs.LeftPriv != "" {
		m, err := keys.Load(cs.LeftPriv)
		if err != nil {
			return nil, nil, &ScenarioError{Field: "crypto.left_priv", Err: err}
		}
		left = &m
	} else {
		m, err := keys.Derive(rn.scenario.Seed, "L", rn.scenario.Left.Adapter, rn.scenario.Right.Adapter)
		if err != nil {
			return nil, nil, &ScenarioError{Field: "crypto", Err: err}
		}
		left = &m
	}
	if cs := rn.scenario.Crypto; cs != nil && cs.RightPriv != "" {
		m, err := keys.Load(cs.RightPriv)
		if err != nil {
			return nil, nil, &ScenarioError{Field: "crypto.right_priv", Err: err}
		}
		right = &m
	} else {
		m, err := keys.Derive(rn.scenario.Seed, "R", rn.scenario.Left.Adapter, rn.scenario.Right.Adapter)
		if err != nil {
			return nil, nil, &ScenarioError{Field: "crypto", Err: err}
		}
		right = &m
	}
	left.SetPeer(right.Pub)
	right.SetPeer(left.Pub)
	return left, right, nil
}

func (rn *Runner) writePubkeys(outDir string, left, right *keys.Material) error {
	return writePubkeysFile(filepath.Join(outDir, "pubkeys.txt"), left, right)
}

// Tick advances the simulation by one tick, in the strict order spec.md
// §4.1 mandates: left timer, right timer, mode-specific I/O, metrics row,
// capture flush.
func (rn *Runner) Tick(tMs int64) error {
	for _, purged := range rn.sarTbl.Purge(tMs) {
		side := adapter.SideLeft
		if purged.Dir == link.RtoL {
			side = adapter.SideRight
		}
		rn.recordEvent(side, "sar_timeout", map[string]any{"frag_id": purged.FragID, "age_ms": purged.Age})
	}

	rn.left.onTimer(tMs)
	rn.right.onTimer(tMs)

	switch rn.scenario.Mode {
	case ModeByte:
		// Phase A (enqueue) runs for both directions before Phase B
		// (deliver) runs for either: spec.md §5's ordering guarantee that
		// L→R precedes R→L "at the bearer enqueue stage" only makes sense
		// as two full passes, not direction-by-direction processing — a PDU
		// an adapter emits from inside on_link_rx must wait for the next
		// tick's poll_link_tx, even when latency_ms=0, the same way a real
		// reply can never beat the tick that produced it.
		if err := rn.enqueueByteLink(tMs, link.LtoR, rn.left); err != nil {
			return err
		}
		if err := rn.enqueueByteLink(tMs, link.RtoL, rn.right); err != nil {
			return err
		}
		if err := rn.deliverByteLink(tMs, link.LtoR, rn.right); err != nil {
			return err
		}
		if err := rn.deliverByteLink(tMs, link.RtoL, rn.left); err != nil {
			return err
		}
	case ModeAudio:
		if err := rn.stepAudio(tMs); err != nil {
			return err
		}
	default:
		return &ScenarioError{Field: "mode", Err: fmt.Errorf("unknown mode %q", rn.scenario.Mode)}
	}

	rn.emitMetricsRow(tMs, link.LtoR)
	rn.emitMetricsRow(tMs, link.RtoL)
	return rn.captureW.Flush()
}

// enqueueByteLink is ByteLink step phase A (spec.md §4.2): poll src's queued
// SDUs, SAR-encode each, and enqueue every resulting fragment into the
// bearer for direction dir.
func (rn *Runner) enqueueByteLink(tMs int64, dir link.Direction, src *endpoint) error {
	if src.byteLink == nil {
		return nil
	}
	for _, sdu := range src.byteLink.PollLinkTx(rn.scenario.linkBudget()) {
		if len(sdu) > src.capabilities.SDUMaxBytes && src.capabilities.SDUMaxBytes > 0 {
			return &EndpointError{Side: string(src.side), Op: "poll_link_tx", Err: fmt.Errorf("sdu of %d bytes exceeds sdu_max_bytes=%d", len(sdu), src.capabilities.SDUMaxBytes)}
		}
		frags, err := rn.sarEnc[dir].Encode(sdu, rn.scenario.Bearer.MTUBytes)
		if err != nil {
			return &EndpointError{Side: string(src.side), Op: "sar_encode", Err: err}
		}
		for _, f := range frags {
			wire := f.Encode()
			_ = rn.captureW.AppendRecord(tMs, uint8(dir), telemetry.CaptureLayerByteLink, telemetry.CaptureEventTx, wire)
			result := rn.bearer.Enqueue(dir, wire, tMs)
			if result.Dropped {
				_ = rn.captureW.AppendRecord(tMs, uint8(dir), telemetry.CaptureLayerBearer, telemetry.CaptureEventDrop, wire)
			}
		}
	}
	return nil
}

// deliverByteLink is ByteLink step phase B (spec.md §4.2): drain whatever
// the bearer has scheduled for delivery by tMs in direction dir and feed it
// into dst's reassembly table, invoking OnLinkRx for every completed group.
func (rn *Runner) deliverByteLink(tMs int64, dir link.Direction, dst *endpoint) error {
	for _, pdu := range rn.bearer.Dequeue(dir, tMs) {
		_ = rn.captureW.AppendRecord(tMs, uint8(dir), telemetry.CaptureLayerBearer, telemetry.CaptureEventRx, pdu.Payload)
		frag, err := sar.DecodeFragment(pdu.Payload)
		if err != nil {
			return &EndpointError{Side: string(dst.side), Op: "sar_decode", Err: err}
		}
		sdu, complete, inconsistent := rn.sarTbl.Accept(dir, frag, tMs)
		if inconsistent {
			rn.recordEvent(dst.side, "sar_inconsistent", map[string]any{"frag_id": frag.FragID})
			continue
		}
		if !complete {
			continue
		}
		if dst.byteLink != nil {
			dst.byteLink.OnLinkRx(sdu)
		}
	}

	// RTT is the sum of both directions' measured one-way delay, not either
	// direction's alone - computed here (rather than once per Tick) so a
	// direction with no deliveries yet still contributes its last known
	// estimate instead of resetting to zero.
	rn.sarTbl.RTTEstMs = int64(rn.bearer.MeasuredOneWayDelayMs(link.LtoR) + rn.bearer.MeasuredOneWayDelayMs(link.RtoL))
	return nil
}

// stepAudio runs one tick of the full-duplex AudioBlock pipeline (spec.md
// §4.5/§4.6): pull a block from each side, pass it through that direction's
// channel then vocoder then PLC, and push it to the peer.
func (rn *Runner) stepAudio(tMs int64) error {
	if rn.left.audio == nil || rn.right.audio == nil {
		return &EndpointError{Side: "both", Op: "negotiate", Err: fmt.Errorf("audio mode requires both adapters to implement AudioBlockAdapter")}
	}

	leftBlock := rn.left.audio.PullTxBlock(tMs)
	rightBlock := rn.right.audio.PullTxBlock(tMs)
	if len(leftBlock) != channel.BlockSamples {
		return &EndpointError{Side: string(adapter.SideLeft), Op: "pull_tx_block", Err: fmt.Errorf("block of %d samples, want %d", len(leftBlock), channel.BlockSamples)}
	}
	if len(rightBlock) != channel.BlockSamples {
		return &EndpointError{Side: string(adapter.SideRight), Op: "pull_tx_block", Err: fmt.Errorf("block of %d samples, want %d", len(rightBlock), channel.BlockSamples)}
	}
	_ = rn.captureW.AppendRecord(tMs, uint8(link.LtoR), telemetry.CaptureLayerAudio, telemetry.CaptureEventTx, channel.SamplesToBytes(leftBlock))
	_ = rn.captureW.AppendRecord(tMs, uint8(link.RtoL), telemetry.CaptureLayerAudio, telemetry.CaptureEventTx, channel.SamplesToBytes(rightBlock))

	ltorOut, ltorSNR := rn.channelLtoR.Process(leftBlock)
	rtolOut, rtolSNR := rn.channelRtoL.Process(rightBlock)

	ltorVoc, ltorLost := rn.vocL.EncodeDecode(ltorOut, tMs)
	rtolVoc, rtolLost := rn.vocR.EncodeDecode(rtolOut, tMs)

	toRight := rn.plcAtR.Conceal(ltorVoc, ltorLost)
	toLeft := rn.plcAtL.Conceal(rtolVoc, rtolLost)

	_ = rn.captureW.AppendRecord(tMs, uint8(link.LtoR), telemetry.CaptureLayerAudio, telemetry.CaptureEventRx, channel.SamplesToBytes(toRight))
	_ = rn.captureW.AppendRecord(tMs, uint8(link.RtoL), telemetry.CaptureLayerAudio, telemetry.CaptureEventRx, channel.SamplesToBytes(toLeft))

	rn.right.audio.PushRxBlock(toRight, tMs)
	rn.left.audio.PushRxBlock(toLeft, tMs)

	rn.lastSNR[link.LtoR] = ltorSNR
	rn.lastSNR[link.RtoL] = rtolSNR
	return nil
}

// emitMetricsRow writes the rolling-rate bearer metrics for one direction,
// when that direction has recent activity. Audio-mode runs always write a
// row every tick; ByteLink-mode runs only write a row while the direction's
// rolling window holds a loss, a reorder, or delivered bytes, per spec.md
// §8's row-count invariant.
func (rn *Runner) emitMetricsRow(tMs int64, dir link.Direction) {
	side := "L"
	layer := "bytelink"
	if dir == link.RtoL {
		side = "R"
	}
	snap := rn.bearer.Stats(dir, tMs)
	rn.snapMu.Lock()
	rn.lastBearerSnap[dir] = snap
	rn.snapMu.Unlock()

	row := telemetry.MetricsRow{TMs: tMs, Side: side, Layer: layer, Event: "tick"}
	if snap.LossRate > 0 || snap.ReorderRate > 0 || snap.GoodputBps > 0 {
		row.LossRate = telemetry.Float(snap.LossRate)
		row.ReorderRate = telemetry.Float(snap.ReorderRate)
		row.JitterMs = telemetry.Float(snap.JitterMs)
		row.GoodputBps = telemetry.Float(snap.GoodputBps)
	} else if rn.scenario.Mode != ModeAudio {
		return
	}

	if rn.scenario.Mode == ModeAudio {
		row.Layer = "audio"
		row.SNRdBEst = telemetry.Float(rn.lastSNR[dir])
	}

	_ = rn.metricsW.WriteRow(row)
}
