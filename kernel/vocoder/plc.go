package vocoder

// PLC conceals lost audio frames by holding and fading the last good block,
// per spec.md §4.6: attenuation compounds per consecutive loss, and after
// 60ms worth of ticks the output is silence.
type PLC struct {
	tickMs            int
	lastGood          []int16
	consecutiveLosses int
}

// NewPLC builds a PLC state machine; tickMs is used to compute the
// 60ms-equivalent loss-run length after which output silences.
func NewPLC(tickMs int) *PLC {
	if tickMs <= 0 {
		tickMs = 20
	}
	return &PLC{tickMs: tickMs}
}

// maxConcealedRun is the number of consecutive lost frames after which PLC
// outputs silence, per spec.md §4.6 ("60 ms / tick_ms consecutive losses").
func (p *PLC) maxConcealedRun() int {
	n := 60 / p.tickMs
	if n < 1 {
		n = 1
	}
	return n
}

// Conceal consumes one vocoder output and its lost flag, returning the block
// the downstream adapter actually sees - lost never propagates past this
// point, per spec.md §4.6(iii).
func (p *PLC) Conceal(block []int16, lost bool) []int16 {
	if !lost {
		p.consecutiveLosses = 0
		p.lastGood = append([]int16(nil), block...)
		return block
	}

	p.consecutiveLosses++
	if p.consecutiveLosses > p.maxConcealedRun() || p.lastGood == nil {
		return make([]int16, len(block))
	}

	attenuation := 1.0
	for i := 0; i < p.consecutiveLosses; i++ {
		attenuation *= 0.8
	}
	out := make([]int16, len(p.lastGood))
	for i, v := range p.lastGood {
		out[i] = int16(float64(v) * attenuation)
	}
	return out
}
