package encoding

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/gaopt/internal/optimization"
)

func TestNewEncoderRejectsBitWidth(t *testing.T) {
	bounds := optimization.Uniform(2, -2, 2)

	for _, bits := range []int{-1, 0, 32, 64} {
		_, err := NewEncoder(bounds, bits)
		require.Error(t, err, "bits=%d", bits)
		assert.True(t, errors.Is(err, optimization.ErrConfiguration), "bits=%d: %v", bits, err)
	}

	enc, err := NewEncoder(bounds, MaxBits)
	require.NoError(t, err)
	assert.Equal(t, 62, enc.Length())
}

func TestNewEncoderRejectsBounds(t *testing.T) {
	tests := []struct {
		name   string
		bounds optimization.Bounds
	}{
		{"empty", nil},
		{"inverted", optimization.Bounds{{1, -1}}},
		{"degenerate", optimization.Bounds{{0, 1}, {3, 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEncoder(tt.bounds, 8)
			require.Error(t, err)
			assert.True(t, optimization.IsConfigurationError(err))
		})
	}
}

func TestIntegerRoundTrip(t *testing.T) {
	bounds := optimization.Bounds{{-2, 2}, {0.1, 7.3}}
	rng := rand.New(rand.NewSource(7))

	for bits := 1; bits <= MaxBits; bits++ {
		enc, err := NewEncoder(bounds, bits)
		require.NoError(t, err)

		maxU := uint32(uint64(1)<<uint(bits) - 1)
		samples := []uint32{0, maxU, maxU / 2, maxU - 1}
		if bits <= 12 {
			samples = samples[:0]
			for u := uint32(0); u <= maxU; u++ {
				samples = append(samples, u)
			}
		} else {
			for i := 0; i < 2000; i++ {
				samples = append(samples, uint32(rng.Int63n(int64(maxU)+1)))
			}
		}

		for d := 0; d < enc.Dim(); d++ {
			for _, u := range samples {
				if u > maxU {
					continue
				}
				got := enc.EncodeInt(d, enc.DecodeInt(d, u))
				if got != u {
					t.Fatalf("bits=%d dim=%d: round trip of %d gave %d", bits, d, u, got)
				}
			}
		}
	}
}

func TestEncodeRounding(t *testing.T) {
	enc, err := NewEncoder(optimization.Bounds{{0, 3}}, 2)
	require.NoError(t, err)

	tests := []struct {
		x    float64
		want uint32
	}{
		{0, 0},
		{0.49, 0},
		{0.5, 0}, // tie goes down
		{0.51, 1},
		{1.5, 1},
		{2.5, 2},
		{2.6, 3},
		{3, 3},
		{-10, 0},
		{10, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, enc.EncodeInt(0, tt.x), "x=%v", tt.x)
	}
}

func TestEncodeDecodeVector(t *testing.T) {
	enc, err := NewEncoder(optimization.Bounds{{-2, 2}, {-2, 2}, {10, 20}}, 10)
	require.NoError(t, err)

	x := []float64{-2, 2, 15}
	g := enc.Encode(x)
	require.Equal(t, 30, g.Len())

	got := enc.Decode(g)
	step := 4.0 / 1023
	assert.InDelta(t, -2, got[0], 1e-12)
	assert.InDelta(t, 2, got[1], 1e-12)
	assert.InDelta(t, 15, got[2], 10.0/1023/2+1e-12)
	assert.InDelta(t, 0, got[0]-x[0], step)

	// Decoding is deterministic and re-encoding reproduces the same bits.
	assert.True(t, g.Equal(enc.Encode(got)))
}

func TestSegmentsAreMostSignificantFirst(t *testing.T) {
	enc, err := NewEncoder(optimization.Bounds{{0, 7}, {0, 7}}, 3)
	require.NoError(t, err)

	g := enc.Encode([]float64{4, 1})
	assert.Equal(t, "100001", g.String())
}
