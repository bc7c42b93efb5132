package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenomeBits(t *testing.T) {
	g := NewGenome(130)
	assert.Equal(t, 130, g.Len())
	assert.Equal(t, 0, g.OnesCount())

	for _, pos := range []int{0, 63, 64, 129} {
		g.Set(pos)
		assert.True(t, g.Has(pos), "pos %d", pos)
	}
	assert.Equal(t, 4, g.OnesCount())

	g.Clear(63)
	assert.False(t, g.Has(63))
	g.Flip(63)
	assert.True(t, g.Has(63))
	g.Flip(63)
	assert.False(t, g.Has(63))
}

func TestGenomeCloneIsIndependent(t *testing.T) {
	g := NewGenome(10)
	g.Set(3)
	c := g.Clone()
	require.True(t, g.Equal(c))

	c.Set(4)
	assert.False(t, g.Has(4))
	assert.False(t, g.Equal(c))
}

func TestGenomeUint(t *testing.T) {
	g := NewGenome(40)
	g.PutUint(5, 31, 1<<31-1)
	assert.Equal(t, uint32(1<<31-1), g.Uint(5, 31))
	assert.False(t, g.Has(4))
	assert.False(t, g.Has(36))

	g.PutUint(5, 31, 12345)
	assert.Equal(t, uint32(12345), g.Uint(5, 31))
}

func TestParseGenome(t *testing.T) {
	g, err := ParseGenome("1010011")
	require.NoError(t, err)
	assert.Equal(t, "1010011", g.String())
	assert.Equal(t, 4, g.OnesCount())

	_, err = ParseGenome("10x1")
	assert.Error(t, err)
}
