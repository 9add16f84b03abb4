package vocoder

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Icing-Project/DryBox/kernel/channel"
)

func TestIdentityKindPreservesEnergy(t *testing.T) {
	block := make([]int16, channel.BlockSamples)
	for i := range block {
		block[i] = int16(i % 100)
	}
	v, err := New(Config{Kind: KindNone, TickMs: 20}, rand.New(rand.NewSource(1)), nil)
	assert.NoError(t, err)

	out, lost := v.EncodeDecode(block, 0)
	assert.False(t, lost)
	assert.Equal(t, channel.Energy(block), channel.Energy(out))
}

func TestMocksNeverExceedIdentityEnergy(t *testing.T) {
	block := make([]int16, channel.BlockSamples)
	for i := range block {
		block[i] = int16(1000)
	}
	for _, kind := range []Kind{KindAMR, KindEVS, KindOpus} {
		v, err := New(Config{Kind: kind, TickMs: 20}, rand.New(rand.NewSource(1)), nil)
		assert.NoError(t, err)
		out, _ := v.EncodeDecode(block, 0)
		assert.LessOrEqual(t, channel.Energy(out), channel.Energy(block)+1)
	}
}

func TestUnknownKindErrors(t *testing.T) {
	_, err := New(Config{Kind: "bogus"}, rand.New(rand.NewSource(1)), nil)
	assert.Error(t, err)
}

func TestPLCSilencesAfterSixtyMs(t *testing.T) {
	plc := NewPLC(20) // maxConcealedRun = 3 ticks
	good := make([]int16, channel.BlockSamples)
	for i := range good {
		good[i] = 1000
	}
	plc.Conceal(good, false)

	out1 := plc.Conceal(good, true)
	out2 := plc.Conceal(good, true)
	out3 := plc.Conceal(good, true)
	out4 := plc.Conceal(good, true) // past the 60ms/20ms=3-tick run

	assert.Greater(t, channel.Energy(out1), 0.0)
	assert.Greater(t, channel.Energy(out2), channel.Energy(out3))
	assert.Equal(t, 0.0, channel.Energy(out4))
}

func TestPLCRecoversImmediatelyOnGoodFrame(t *testing.T) {
	plc := NewPLC(20)
	good := make([]int16, channel.BlockSamples)
	good[0] = 500
	plc.Conceal(good, false)
	plc.Conceal(good, true)

	fresh := make([]int16, channel.BlockSamples)
	fresh[0] = 999
	out := plc.Conceal(fresh, false)
	assert.Equal(t, fresh, out)
}
