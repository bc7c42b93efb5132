package encoding

import (
	"math"

	"github.com/copyleftdev/gaopt/internal/optimization"
)

// MaxBits is the widest per-dimension segment. Segment values are decoded
// through uint32 arithmetic, so wider segments would not round-trip.
const MaxBits = 31

// Encoder converts between real vectors and genomes. Each dimension is a
// bits-wide segment whose unsigned value u maps linearly onto the grid
// lower + u*(upper-lower)/(2^bits-1).
type Encoder struct {
	bounds optimization.Bounds
	bits   int
	maxU   float64
}

// NewEncoder validates the bounds and bit width and returns an Encoder.
func NewEncoder(bounds optimization.Bounds, bits int) (*Encoder, error) {
	if bits < 1 || bits > MaxBits {
		return nil, optimization.NewConfigError("encoder", "new",
			"bits per variable must be in [1, %d], got %d", MaxBits, bits)
	}
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	b := make(optimization.Bounds, len(bounds))
	copy(b, bounds)
	return &Encoder{
		bounds: b,
		bits:   bits,
		maxU:   float64(uint64(1)<<uint(bits) - 1),
	}, nil
}

// Dim returns the number of encoded dimensions.
func (e *Encoder) Dim() int { return len(e.bounds) }

// Bits returns the segment width per dimension.
func (e *Encoder) Bits() int { return e.bits }

// Length returns the genome length in bits.
func (e *Encoder) Length() int { return len(e.bounds) * e.bits }

// Bounds returns a copy of the encoder's bounds.
func (e *Encoder) Bounds() optimization.Bounds {
	b := make(optimization.Bounds, len(e.bounds))
	copy(b, e.bounds)
	return b
}

// DecodeInt maps the segment value u of dimension dim to its real value.
func (e *Encoder) DecodeInt(dim int, u uint32) float64 {
	lo, hi := e.bounds[dim][0], e.bounds[dim][1]
	return lo + float64(u)*(hi-lo)/e.maxU
}

// EncodeInt maps x to the nearest grid integer of dimension dim. Exact ties
// round down and values outside the bounds clamp to the nearest end.
func (e *Encoder) EncodeInt(dim int, x float64) uint32 {
	lo, hi := e.bounds[dim][0], e.bounds[dim][1]
	t := (x - lo) / (hi - lo) * e.maxU
	if math.IsNaN(t) || t <= 0 {
		return 0
	}
	if t >= e.maxU {
		return uint32(e.maxU)
	}
	f := math.Floor(t)
	if t-f > 0.5 {
		f++
	}
	return uint32(f)
}

// Encode returns the genome of x. len(x) must equal Dim.
func (e *Encoder) Encode(x []float64) Genome {
	g := NewGenome(e.Length())
	for d := range e.bounds {
		g.PutUint(d*e.bits, e.bits, e.EncodeInt(d, x[d]))
	}
	return g
}

// Decode returns the real vector of g.
func (e *Encoder) Decode(g Genome) []float64 {
	x := make([]float64, len(e.bounds))
	for d := range e.bounds {
		x[d] = e.DecodeInt(d, g.Uint(d*e.bits, e.bits))
	}
	return x
}
