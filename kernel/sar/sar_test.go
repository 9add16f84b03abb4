package sar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/Icing-Project/DryBox/kernel/link"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mtu := rapid.IntRange(HeaderSize+1, 256).Draw(t, "mtu")
		capacity := mtu - HeaderSize
		sdu := rapid.SliceOfN(rapid.Byte(), 0, 256*capacity).Draw(t, "sdu")

		var enc Encoder
		frags, err := enc.Encode(sdu, mtu)
		assert.NoError(t, err)
		assert.LessOrEqual(t, len(frags), MaxFragments)

		tbl := NewTable(1000)
		var got []byte
		var complete bool
		for _, f := range frags {
			wire := f.Encode()
			decoded, err := DecodeFragment(wire)
			assert.NoError(t, err)
			got, complete, _ = tbl.Accept(link.LtoR, decoded, 0)
		}
		assert.True(t, complete)
		assert.Equal(t, sdu, got)
	})
}

func TestEncodeOversizeFails(t *testing.T) {
	var enc Encoder
	sdu := make([]byte, 256*10+1)
	_, err := enc.Encode(sdu, 3+10)
	assert.ErrorIs(t, err, ErrOversizeWithNoFragmentation)
}

func TestEncodeSingleFragmentUnderMTU(t *testing.T) {
	var enc Encoder
	frags, err := enc.Encode([]byte("hello"), 64)
	assert.NoError(t, err)
	assert.Len(t, frags, 1)
	assert.Equal(t, uint8(0), frags[0].Last)
}

func TestReassemblyInconsistentLastIsDropped(t *testing.T) {
	tbl := NewTable(1000)
	_, complete, inconsistent := tbl.Accept(link.LtoR, Fragment{FragID: 1, Idx: 0, Last: 2, Payload: []byte("a")}, 0)
	assert.False(t, complete)
	assert.False(t, inconsistent)

	_, complete, inconsistent = tbl.Accept(link.LtoR, Fragment{FragID: 1, Idx: 1, Last: 5, Payload: []byte("b")}, 0)
	assert.False(t, complete)
	assert.True(t, inconsistent)
}

func TestPurgeDropsStaleGroups(t *testing.T) {
	tbl := NewTable(100) // rttEst=100 -> deadline 200
	_, complete, _ := tbl.Accept(link.LtoR, Fragment{FragID: 1, Idx: 0, Last: 1, Payload: []byte("a")}, 0)
	assert.False(t, complete)

	purged := tbl.Purge(500)
	assert.Len(t, purged, 1)
	assert.Equal(t, uint8(1), purged[0].FragID)

	purgedAgain := tbl.Purge(1000)
	assert.Empty(t, purgedAgain)
}
