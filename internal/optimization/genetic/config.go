package genetic

import (
	"math"
	"time"

	"github.com/copyleftdev/gaopt/internal/optimization"
	"github.com/copyleftdev/gaopt/internal/optimization/encoding"
	"github.com/copyleftdev/gaopt/internal/optimization/objective"
)

// Defaults set by DefaultConfig. MaxGenerations and Penalty are also
// applied when left zero; a zero CrossoverRate or EliteCount is kept and
// disables that operator.
const (
	DefaultMaxGenerations = 100
	DefaultCrossoverRate  = 0.5
	DefaultEliteCount     = 1
	DefaultPenalty        = 1e27
)

// Config is the run configuration. It is copied when the optimizer is
// created and never changes afterwards.
type Config struct {
	// Dim is the number of design variables. Zero means len(Bounds).
	Dim    int
	Bounds optimization.Bounds
	// Bits is the encoding width of each variable, 1 to 31.
	Bits int

	// PopSize must be even. Zero means 4*Dim*Bits, rounded up to even.
	PopSize        int
	MaxGenerations int
	CrossoverRate  float64
	// MutationRate is the per-bit flip probability. Zero means
	// (L+1)/(2*PopSize*L) with L = Dim*Bits.
	MutationRate float64
	// EliteCount is the number of best individuals carried into the next
	// generation. Zero disables elitism, so the best fitness may rise.
	EliteCount int

	// Penalty is the fitness assigned to infeasible candidates.
	Penalty float64
	// Sentinel is the objective value at or above which a point counts as
	// undefined. Zero means objective.DefaultSentinel.
	Sentinel float64

	// Seed seeds the single random stream. Zero seeds from the clock.
	Seed int64

	Workers     int
	EvalTimeout time.Duration
	// Coordinator marks the process that reports progress. Other
	// processes log generations at debug level only.
	Coordinator bool
}

// DefaultConfig returns a configuration for the given bounds and bit width
// with the default operator settings.
func DefaultConfig(bounds optimization.Bounds, bits int) Config {
	return Config{
		Dim:            len(bounds),
		Bounds:         bounds,
		Bits:           bits,
		MaxGenerations: DefaultMaxGenerations,
		CrossoverRate:  DefaultCrossoverRate,
		EliteCount:     DefaultEliteCount,
		Penalty:        DefaultPenalty,
		Workers:        1,
		Coordinator:    true,
	}
}

// GenomeLength returns Dim*Bits.
func (c Config) GenomeLength() int {
	return c.dim() * c.Bits
}

func (c Config) dim() int {
	if c.Dim == 0 {
		return len(c.Bounds)
	}
	return c.Dim
}

// withDerived fills the fields whose zero value means "derive from the
// problem size".
func (c Config) withDerived() Config {
	c.Dim = c.dim()
	L := c.GenomeLength()
	if c.PopSize == 0 && L > 0 {
		c.PopSize = 4 * L
		if c.PopSize%2 == 1 {
			c.PopSize++
		}
	}
	if c.MutationRate == 0 && L > 0 && c.PopSize > 0 {
		c.MutationRate = float64(L+1) / (2 * float64(c.PopSize) * float64(L))
	}
	if c.MaxGenerations == 0 {
		c.MaxGenerations = DefaultMaxGenerations
	}
	if c.Penalty == 0 {
		c.Penalty = DefaultPenalty
	}
	if c.Sentinel == 0 {
		c.Sentinel = objective.DefaultSentinel
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	return c
}

// Validate reports the first configuration problem as an error matching
// optimization.ErrConfiguration.
func (c Config) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return optimization.NewConfigError("genetic", "validate", format, args...)
	}

	if err := c.Bounds.Validate(); err != nil {
		return err
	}
	if c.Dim != len(c.Bounds) {
		return fail("dim %d does not match %d bounds", c.Dim, len(c.Bounds))
	}
	if c.Bits < 1 || c.Bits > encoding.MaxBits {
		return fail("bits per variable must be in [1, %d], got %d", encoding.MaxBits, c.Bits)
	}
	if c.PopSize < 2 || c.PopSize%2 != 0 {
		return fail("population size must be even and at least 2, got %d", c.PopSize)
	}
	if c.MaxGenerations < 1 {
		return fail("max generations must be at least 1, got %d", c.MaxGenerations)
	}
	if !isRate(c.CrossoverRate) {
		return fail("crossover rate must be in [0, 1], got %v", c.CrossoverRate)
	}
	if !isRate(c.MutationRate) {
		return fail("mutation rate must be in [0, 1], got %v", c.MutationRate)
	}
	if c.EliteCount < 0 || c.EliteCount > c.PopSize {
		return fail("elite count must be in [0, %d], got %d", c.PopSize, c.EliteCount)
	}
	if math.IsNaN(c.Penalty) || math.IsInf(c.Penalty, 0) {
		return fail("penalty must be finite, got %v", c.Penalty)
	}
	if c.Workers < 1 {
		return fail("worker count must be at least 1, got %d", c.Workers)
	}
	if c.EvalTimeout < 0 {
		return fail("evaluation timeout must not be negative, got %s", c.EvalTimeout)
	}
	return nil
}

func isRate(r float64) bool {
	return r >= 0 && r <= 1
}
