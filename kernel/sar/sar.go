// Package sar implements DryBox's SAR-lite segmentation/reassembly layer
// (spec.md §4.3): a 3-byte header {frag_id, idx, last} splitting an SDU
// across bearer-MTU-sized fragments, and the receive-side reassembly table
// that reconstitutes it.
package sar

import (
	"errors"
	"fmt"
)

// HeaderSize is the fixed SAR-lite fragment header: frag_id, idx, last.
const HeaderSize = 3

// MaxFragments is the hard ceiling on fragments per SDU: idx/last are single
// bytes, so a group can never exceed 256 fragments.
const MaxFragments = 256

// ErrOversizeWithNoFragmentation is returned by Encode when an SDU would
// require more than MaxFragments fragments at the given MTU.
var ErrOversizeWithNoFragmentation = errors.New("sar: sdu requires more than 256 fragments at this mtu")

// Fragment is one SAR-lite PDU payload plus its header fields.
type Fragment struct {
	FragID  uint8
	Idx     uint8
	Last    uint8
	Payload []byte
}

// Encode marshals a Fragment into its wire form: header then payload.
func (f Fragment) Encode() []byte {
	out := make([]byte, HeaderSize+len(f.Payload))
	out[0] = f.FragID
	out[1] = f.Idx
	out[2] = f.Last
	copy(out[3:], f.Payload)
	return out
}

// DecodeFragment parses a fragment's wire form back into its fields.
func DecodeFragment(wire []byte) (Fragment, error) {
	if len(wire) < HeaderSize {
		return Fragment{}, fmt.Errorf("sar: fragment shorter than header (%d bytes)", len(wire))
	}
	return Fragment{
		FragID:  wire[0],
		Idx:     wire[1],
		Last:    wire[2],
		Payload: wire[HeaderSize:],
	}, nil
}

// Encoder hands out monotone, per-direction frag_ids that wrap mod 256, per
// spec.md §4.3.
type Encoder struct {
	next uint8
}

// Encode splits sdu into fragments of at most mtu-HeaderSize payload bytes
// each. If len(sdu) <= mtu-HeaderSize, Encode still returns a single fragment
// with Last=0 so callers can treat single- and multi-fragment SDUs uniformly.
func (e *Encoder) Encode(sdu []byte, mtu int) ([]Fragment, error) {
	capacity := mtu - HeaderSize
	if capacity <= 0 {
		return nil, fmt.Errorf("sar: mtu %d too small for %d-byte header", mtu, HeaderSize)
	}
	n := 1
	if len(sdu) > 0 {
		n = (len(sdu) + capacity - 1) / capacity
	}
	if n > MaxFragments {
		return nil, ErrOversizeWithNoFragmentation
	}

	fragID := e.next
	e.next++ // wraps naturally at 256

	last := uint8(n - 1)
	frags := make([]Fragment, 0, n)
	for idx := 0; idx < n; idx++ {
		start := idx * capacity
		end := start + capacity
		if end > len(sdu) {
			end = len(sdu)
		}
		payload := append([]byte(nil), sdu[start:end]...)
		frags = append(frags, Fragment{
			FragID:  fragID,
			Idx:     uint8(idx),
			Last:    last,
			Payload: payload,
		})
	}
	return frags, nil
}
