// Package encoding maps real-valued design vectors to fixed-length bit
// strings and back.
package encoding

import (
	"fmt"
	"math/bits"
	"strings"
)

const (
	wordShift uint = 6
	wordMask  uint = 63
)

// Genome is a fixed-length bit string packed into 64-bit words.
// Bit i lives in word i>>6 at position i&63.
type Genome struct {
	n     int
	words []uint64
}

// NewGenome returns an all-zero genome of n bits.
func NewGenome(n int) Genome {
	return Genome{n: n, words: make([]uint64, (n+63)/64)}
}

// ParseGenome builds a genome from a string of '0' and '1' characters,
// where the first character is bit 0.
func ParseGenome(s string) (Genome, error) {
	g := NewGenome(len(s))
	for i, c := range s {
		switch c {
		case '1':
			g.Set(i)
		case '0':
		default:
			return Genome{}, fmt.Errorf("encoding: invalid character %q at %d", c, i)
		}
	}
	return g, nil
}

// Len returns the number of bits.
func (g Genome) Len() int { return g.n }

// Has reports whether bit pos is one.
func (g Genome) Has(pos int) bool {
	return g.words[uint(pos)>>wordShift]&(1<<(uint(pos)&wordMask)) != 0
}

// Set sets bit pos to one.
func (g Genome) Set(pos int) {
	g.words[uint(pos)>>wordShift] |= 1 << (uint(pos) & wordMask)
}

// Clear sets bit pos to zero.
func (g Genome) Clear(pos int) {
	g.words[uint(pos)>>wordShift] &^= 1 << (uint(pos) & wordMask)
}

// Flip inverts bit pos.
func (g Genome) Flip(pos int) {
	g.words[uint(pos)>>wordShift] ^= 1 << (uint(pos) & wordMask)
}

// SetTo sets bit pos to v.
func (g Genome) SetTo(pos int, v bool) {
	if v {
		g.Set(pos)
	} else {
		g.Clear(pos)
	}
}

// CopyRange copies bits [from, to) of src into g.
func (g Genome) CopyRange(src Genome, from, to int) {
	for i := from; i < to; i++ {
		g.SetTo(i, src.Has(i))
	}
}

// Clone returns an independent copy.
func (g Genome) Clone() Genome {
	w := make([]uint64, len(g.words))
	copy(w, g.words)
	return Genome{n: g.n, words: w}
}

// Equal reports whether both genomes hold the same bits.
func (g Genome) Equal(o Genome) bool {
	if g.n != o.n {
		return false
	}
	for i := range g.words {
		if g.words[i] != o.words[i] {
			return false
		}
	}
	return true
}

// OnesCount returns the number of set bits.
func (g Genome) OnesCount() int {
	c := 0
	for _, w := range g.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Uint reads width bits starting at offset as an unsigned integer, most
// significant bit first.
func (g Genome) Uint(offset, width int) uint32 {
	var u uint32
	for i := 0; i < width; i++ {
		u <<= 1
		if g.Has(offset + i) {
			u |= 1
		}
	}
	return u
}

// PutUint writes the low width bits of u starting at offset, most
// significant bit first.
func (g Genome) PutUint(offset, width int, u uint32) {
	for i := width - 1; i >= 0; i-- {
		g.SetTo(offset+i, u&1 == 1)
		u >>= 1
	}
}

func (g Genome) String() string {
	var b strings.Builder
	b.Grow(g.n)
	for i := 0; i < g.n; i++ {
		if g.Has(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}
