package sar

import (
	"fmt"

	"github.com/Icing-Project/DryBox/kernel/link"
)

// groupKey identifies a reassembly group by direction and frag_id, the same
// role fragmentKey plays for (srcIP,dstIP,protocol,id) in a BSD-Right IPv4
// reassembler — here narrowed to DryBox's own two fields.
type groupKey struct {
	dir    link.Direction
	fragID uint8
}

// bitmap256 tracks which of up to 256 fragment indices have arrived.
type bitmap256 [4]uint64

func (b *bitmap256) set(idx uint8) {
	b[idx/64] |= 1 << (idx % 64)
}

func (b *bitmap256) has(idx uint8) bool {
	return b[idx/64]&(1<<(idx%64)) != 0
}

func (b *bitmap256) allSet(last uint8) bool {
	n := int(last) + 1
	for i := 0; i < n; i++ {
		if !b.has(uint8(i)) {
			return false
		}
	}
	return true
}

// Group is one in-progress reassembly, keyed by (direction, frag_id).
type Group struct {
	FragID      uint8
	Last        uint8
	lastKnown   bool
	received    bitmap256
	buf         [][]byte
	StartedTMs  int64
	Inconsistent bool
}

// Table holds every in-progress Group for one bearer. RTTEstMs governs the
// purge deadline: 2*RTTEstMs of logical time since a group started.
type Table struct {
	groups   map[groupKey]*Group
	RTTEstMs int64
}

// NewTable builds an empty reassembly table. rttEstMs should start at
// 2*latency_ms per spec.md §4.3 and may be updated afterwards as the bearer
// reports measured one-way delay.
func NewTable(rttEstMs int64) *Table {
	return &Table{groups: make(map[groupKey]*Group), RTTEstMs: rttEstMs}
}

// Accept feeds one arrived fragment into the table. It returns the
// reassembled SDU and complete=true exactly when this fragment was the last
// missing piece of its group. inconsistent=true means the fragment's `last`
// field disagreed with the group's already-recorded `last`; the group is
// dropped and the caller should emit a "sar_inconsistent" event (spec.md
// §4.3) but must not treat this as a fatal error.
func (t *Table) Accept(dir link.Direction, f Fragment, nowMs int64) (sdu []byte, complete bool, inconsistent bool) {
	key := groupKey{dir: dir, fragID: f.FragID}
	g, ok := t.groups[key]
	if !ok {
		g = &Group{
			FragID:     f.FragID,
			Last:       f.Last,
			lastKnown:  true,
			buf:        make([][]byte, int(f.Last)+1),
			StartedTMs: nowMs,
		}
		t.groups[key] = g
	} else if g.lastKnown && g.Last != f.Last {
		delete(t.groups, key)
		return nil, false, true
	}

	if int(f.Idx) >= len(g.buf) {
		// Defensive: idx outside the declared group size is itself an
		// inconsistency, handled the same way as a Last mismatch.
		delete(t.groups, key)
		return nil, false, true
	}

	g.buf[f.Idx] = f.Payload
	g.received.set(f.Idx)

	if !g.received.allSet(g.Last) {
		return nil, false, false
	}

	total := 0
	for _, part := range g.buf {
		total += len(part)
	}
	out := make([]byte, 0, total)
	for _, part := range g.buf {
		out = append(out, part...)
	}
	delete(t.groups, key)
	return out, true, false
}

// Purge drops every group older than 2*RTTEstMs of logical time, returning
// the keys purged (frag ids, per direction) so the caller can log a
// "sar_timeout" event for each — spec.md §4.3: silent to the adapter, but
// observable in the event stream. Purge must run at the start of every tick.
func (t *Table) Purge(nowMs int64) []PurgedGroup {
	deadline := 2 * t.RTTEstMs
	var purged []PurgedGroup
	for key, g := range t.groups {
		if nowMs-g.StartedTMs > deadline {
			purged = append(purged, PurgedGroup{Dir: key.dir, FragID: key.fragID, Age: nowMs - g.StartedTMs})
			delete(t.groups, key)
		}
	}
	return purged
}

// PurgedGroup describes one reassembly group dropped by timeout.
type PurgedGroup struct {
	Dir    link.Direction
	FragID uint8
	Age    int64
}

func (p PurgedGroup) String() string {
	return fmt.Sprintf("sar_timeout dir=%s frag_id=%d age_ms=%d", p.Dir, p.FragID, p.Age)
}
