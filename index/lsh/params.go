package lsh

import (
	"fmt"
	"math"
)

// Params is the banding configuration of an LSH index.
type Params struct {
	// Bands is the number of bands (b).
	Bands int

	// Rows is the number of signature slots per band (r).
	Rows int
}

// Threshold returns the approximate Jaccard similarity at which the collision
// probability curve 1-(1-s^r)^b is steepest: (1/b)^(1/r).
func (p Params) Threshold() float64 {
	return math.Pow(1/float64(p.Bands), 1/float64(p.Rows))
}

// Probability returns the probability that two signatures with Jaccard
// similarity s share at least one band.
func (p Params) Probability(s float64) float64 {
	return 1 - math.Pow(1-math.Pow(s, float64(p.Rows)), float64(p.Bands))
}

// Validate checks the params fit numPerm slots.
func (p Params) Validate(numPerm int) error {
	if p.Bands < 1 || p.Rows < 1 {
		return fmt.Errorf("lsh: bands and rows must be positive, got b=%d r=%d", p.Bands, p.Rows)
	}
	if p.Bands*p.Rows > numPerm {
		return fmt.Errorf("lsh: b*r = %d exceeds num_perm %d", p.Bands*p.Rows, numPerm)
	}
	return nil
}

func (p Params) String() string { return fmt.Sprintf("b=%d,r=%d", p.Bands, p.Rows) }

// OptimalParams picks integers b and r with b*r <= numPerm minimising
// |threshold - (1/b)^(1/r)|. Ties keep the pair found first, i.e. the
// smallest b.
func OptimalParams(threshold float64, numPerm int) (Params, error) {
	if !(threshold > 0 && threshold < 1) {
		return Params{}, fmt.Errorf("lsh: threshold must be in (0,1), got %v", threshold)
	}
	if numPerm < 2 {
		return Params{}, fmt.Errorf("lsh: num_perm must be at least 2, got %d", numPerm)
	}
	best := Params{Bands: 1, Rows: 1}
	bestDev := math.Inf(1)
	for b := 1; b <= numPerm; b++ {
		for r := 1; b*r <= numPerm; r++ {
			p := Params{Bands: b, Rows: r}
			if dev := math.Abs(threshold - p.Threshold()); dev < bestDev {
				best, bestDev = p, dev
			}
		}
	}
	return best, nil
}
