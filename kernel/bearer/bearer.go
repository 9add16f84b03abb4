// Package bearer implements DryBox's stochastic PDU transport (spec.md
// §4.4): per-direction latency/jitter/loss/reorder applied at enqueue time,
// and a scheduled-delivery-order priority queue per direction.
package bearer

import (
	"container/heap"
	"math/rand"

	"github.com/Icing-Project/DryBox/kernel/link"
	"github.com/Icing-Project/DryBox/kernel/rng"
)

// Config is the bearer's stochastic-impairment profile, per spec.md §3.
type Config struct {
	LatencyMs    int
	JitterMs     int
	LossRate     float64
	ReorderRate  float64
	MTUBytes     int
	WindowMs     int64 // rolling-rate window; defaults to 1000 (1s logical time)
}

func (c Config) windowMs() int64 {
	if c.WindowMs <= 0 {
		return 1000
	}
	return c.WindowMs
}

// PDU is one in-flight protocol data unit, per spec.md §3's InFlightPDU.
type PDU struct {
	Payload      []byte
	EnqueueTMs   int64
	ScheduledTMs int64
	Dir          link.Direction
	Reordered    bool
	seq          uint64
}

// Bearer carries both directions of a single simulated link.
type Bearer struct {
	cfg Config

	queues [2]pduHeap
	rngs   [2]*rand.Rand
	seq    uint64

	stats [2]directionStats
}

// New builds a Bearer seeded from masterSeed, deriving independent
// bearer_LtoR / bearer_RtoL RNG streams per spec.md §4.8.
func New(cfg Config, masterSeed uint64) *Bearer {
	b := &Bearer{cfg: cfg}
	b.rngs[link.LtoR] = rng.New(masterSeed, rng.LabelBearerLtoR)
	b.rngs[link.RtoL] = rng.New(masterSeed, rng.LabelBearerRtoL)
	for i := range b.stats {
		b.stats[i] = newDirectionStats(cfg.windowMs())
	}
	return b
}

// EnqueueResult reports what happened to a PDU offered to the bearer.
type EnqueueResult struct {
	Dropped   bool
	Reordered bool
}

// Enqueue runs the bearer's per-PDU stochastic model (spec.md §4.4 steps
// 1-4) and, unless dropped, schedules the PDU for delivery.
func (b *Bearer) Enqueue(dir link.Direction, payload []byte, nowMs int64) EnqueueResult {
	r := b.rngs[dir]

	if r.Float64() < b.cfg.LossRate {
		b.stats[dir].recordLoss(nowMs)
		return EnqueueResult{Dropped: true}
	}

	delay := float64(b.cfg.LatencyMs) + rng.Uniform(r, -float64(b.cfg.JitterMs), float64(b.cfg.JitterMs))
	if delay < 0 {
		delay = 0
	}

	reordered := false
	if r.Float64() < b.cfg.ReorderRate {
		reordered = true
		offset := rng.Uniform(r, -float64(b.cfg.JitterMs), float64(b.cfg.JitterMs))
		// Flip sign relative to the jitter draw above so the PDU can overtake
		// (or be overtaken by) a neighbor, per spec.md §4.4 step 3.
		delay -= offset
		if delay < 0 {
			delay = 0
		}
	}

	scheduled := nowMs + int64(delay)
	b.seq++
	pdu := &PDU{
		Payload:      payload,
		EnqueueTMs:   nowMs,
		ScheduledTMs: scheduled,
		Dir:          dir,
		Reordered:    reordered,
		seq:          b.seq,
	}
	heap.Push(&b.queues[dir], pdu)

	b.stats[dir].recordEnqueue(nowMs, reordered, delay)
	return EnqueueResult{Reordered: reordered}
}

// Dequeue drains every PDU in direction dir whose ScheduledTMs <= nowMs,
// in scheduled-time order (ties broken by enqueue sequence).
func (b *Bearer) Dequeue(dir link.Direction, nowMs int64) []PDU {
	q := &b.queues[dir]
	var out []PDU
	for q.Len() > 0 && (*q)[0].ScheduledTMs <= nowMs {
		pdu := heap.Pop(q).(*PDU)
		out = append(out, *pdu)
		b.stats[dir].recordDeliver(nowMs, len(pdu.Payload))
	}
	return out
}

// Stats returns the rolling-rate metrics for a direction, as of nowMs.
func (b *Bearer) Stats(dir link.Direction, nowMs int64) Snapshot {
	return b.stats[dir].snapshot(nowMs)
}

// MeasuredOneWayDelayMs returns the EWMA of observed (scheduled-enqueue)
// delay for dir, used to adaptively update SAR's RTT_est per spec.md §4.3.
func (b *Bearer) MeasuredOneWayDelayMs(dir link.Direction) float64 {
	return b.stats[dir].ewmaDelayMs
}

// pduHeap is a container/heap.Interface ordering PDUs by ScheduledTMs, then
// by enqueue sequence.
type pduHeap []*PDU

func (h pduHeap) Len() int { return len(h) }
func (h pduHeap) Less(i, j int) bool {
	if h[i].ScheduledTMs != h[j].ScheduledTMs {
		return h[i].ScheduledTMs < h[j].ScheduledTMs
	}
	return h[i].seq < h[j].seq
}
func (h pduHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *pduHeap) Push(x any)   { *h = append(*h, x.(*PDU)) }
func (h *pduHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
