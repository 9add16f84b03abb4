package channel

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAWGNInfiniteSNRIsIdentity(t *testing.T) {
	block := make([]int16, BlockSamples)
	for i := range block {
		block[i] = int16(1000 * math.Sin(float64(i)/10))
	}
	m := NewAWGN(math.Inf(1), rand.New(rand.NewSource(1)))
	out, _ := m.Process(block)
	assert.Equal(t, block, out)
}

func TestAWGNAllZeroBlockStaysQuiet(t *testing.T) {
	block := make([]int16, BlockSamples)
	m := NewAWGN(20, rand.New(rand.NewSource(1)))
	out, _ := m.Process(block)
	for _, s := range out {
		assert.Less(t, int(s), 100)
		assert.Greater(t, int(s), -100)
	}
}

func TestEnergyOfSilenceIsZero(t *testing.T) {
	block := make([]int16, BlockSamples)
	assert.Equal(t, 0.0, Energy(block))
}
