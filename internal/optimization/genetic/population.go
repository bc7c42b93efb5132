package genetic

import (
	"math/rand"
	"sort"

	"github.com/copyleftdev/gaopt/internal/optimization"
	"github.com/copyleftdev/gaopt/internal/optimization/encoding"
	"github.com/copyleftdev/gaopt/internal/optimization/objective"
)

// Individual is one candidate: its genome, the decoded vector and, once
// evaluated, its fitness. Infeasible individuals carry the penalty as
// fitness.
type Individual struct {
	Genome     encoding.Genome
	X          []float64
	Fitness    float64
	Evaluated  bool
	Infeasible bool
}

// Clone returns a deep copy.
func (ind *Individual) Clone() *Individual {
	c := *ind
	c.Genome = ind.Genome.Clone()
	if ind.X != nil {
		c.X = append([]float64(nil), ind.X...)
	}
	return &c
}

// assign stores an evaluation outcome as fitness.
func (ind *Individual) assign(out objective.Outcome, penalty float64) {
	ind.Fitness = out.Fitness(penalty)
	ind.Infeasible = !out.Feasible
	ind.Evaluated = true
}

// Population is an ordered, fixed-size set of individuals.
type Population struct {
	Individuals []*Individual
}

// Initialize returns size individuals whose length-bit genomes are drawn
// from independent fair coin flips.
func Initialize(size, length int, rng *rand.Rand) *Population {
	pop := &Population{Individuals: make([]*Individual, size)}
	for i := range pop.Individuals {
		g := encoding.NewGenome(length)
		for b := 0; b < length; b++ {
			if rng.Int63()&1 == 1 {
				g.Set(b)
			}
		}
		pop.Individuals[i] = &Individual{Genome: g}
	}
	return pop
}

// Size returns the number of individuals.
func (p *Population) Size() int { return len(p.Individuals) }

// Evaluated reports whether every individual has a fitness.
func (p *Population) Evaluated() bool {
	for _, ind := range p.Individuals {
		if !ind.Evaluated {
			return false
		}
	}
	return true
}

// Best returns the individual with the lowest fitness, preferring the
// earliest on ties.
func (p *Population) Best() *Individual {
	var best *Individual
	for _, ind := range p.Individuals {
		if best == nil || ind.Fitness < best.Fitness {
			best = ind
		}
	}
	return best
}

// ranked returns indices ordered by ascending fitness, ties by index.
func (p *Population) ranked() []int {
	idx := make([]int, len(p.Individuals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return p.Individuals[idx[a]].Fitness < p.Individuals[idx[b]].Fitness
	})
	return idx
}

func errUnevaluated(op string) error {
	return optimization.NewError("population contains individuals without fitness").
		WithComponent("population").
		WithOperation(op)
}

// SelectParents runs binary tournaments over two independent random
// permutations of the population, so each individual competes exactly
// twice. The lower fitness wins; ties go to the lower population index.
// Consecutive winners form the returned pairs, Size()/2 in total.
func SelectParents(pop *Population, rng *rand.Rand) ([][2]*Individual, error) {
	if !pop.Evaluated() {
		return nil, errUnevaluated("select parents")
	}

	n := pop.Size()
	winners := make([]*Individual, 0, n)
	for round := 0; round < 2; round++ {
		perm := rng.Perm(n)
		for k := 0; k+1 < n; k += 2 {
			winners = append(winners, pop.Individuals[tournament(pop, perm[k], perm[k+1])])
		}
	}

	pairs := make([][2]*Individual, 0, len(winners)/2)
	for k := 0; k+1 < len(winners); k += 2 {
		pairs = append(pairs, [2]*Individual{winners[k], winners[k+1]})
	}
	return pairs, nil
}

func tournament(pop *Population, a, b int) int {
	fa, fb := pop.Individuals[a].Fitness, pop.Individuals[b].Fitness
	switch {
	case fa < fb:
		return a
	case fb < fa:
		return b
	case a < b:
		return a
	default:
		return b
	}
}

// Crossover applies single-point crossover with probability rate. The
// children are fresh unevaluated individuals; without crossover they are
// bit-identical copies of a and b.
func Crossover(a, b *Individual, rate float64, rng *rand.Rand) (*Individual, *Individual) {
	ga, gb := a.Genome.Clone(), b.Genome.Clone()
	L := ga.Len()
	if rng.Float64() < rate && L > 1 {
		point := 1 + rng.Intn(L-1)
		ga.CopyRange(b.Genome, point, L)
		gb.CopyRange(a.Genome, point, L)
	}
	return &Individual{Genome: ga}, &Individual{Genome: gb}
}

// Mutate flips each bit independently with probability rate and returns
// the number of flipped bits. A mutated individual loses its fitness.
func Mutate(ind *Individual, rate float64, rng *rand.Rand) int {
	flips := 0
	for i := 0; i < ind.Genome.Len(); i++ {
		if rng.Float64() < rate {
			ind.Genome.Flip(i)
			flips++
		}
	}
	if flips > 0 {
		ind.Evaluated = false
		ind.Infeasible = false
		ind.X = nil
	}
	return flips
}

// CarryElite copies the eliteCount best individuals of old over the
// eliteCount worst of next. Both populations must be evaluated.
func CarryElite(old, next *Population, eliteCount int) error {
	if eliteCount <= 0 {
		return nil
	}
	if !old.Evaluated() || !next.Evaluated() {
		return errUnevaluated("carry elite")
	}
	if eliteCount > old.Size() {
		eliteCount = old.Size()
	}
	if eliteCount > next.Size() {
		eliteCount = next.Size()
	}

	elites := old.ranked()[:eliteCount]
	order := next.ranked()
	worst := order[len(order)-eliteCount:]
	for k, slot := range worst {
		next.Individuals[slot] = old.Individuals[elites[k]].Clone()
	}
	return nil
}
