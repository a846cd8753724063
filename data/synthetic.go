// Package data generates synthetic right-censored longitudinal cohorts for
// examples and tests.
package data

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Cohort is a ragged longitudinal dataset: one slice of visits per subject,
// with a time-to-event and censoring indicator for every visit.
type Cohort struct {
	Features [][][]float64 // [subject][visit][feature]
	Times    [][]float64   // [subject][visit], event or censoring time
	Events   [][]float64   // [subject][visit], 1 observed / 0 censored
}

// SyntheticCohort samples a reproducible cohort of nSubjects, each with
// between one and maxLen visits of `features` covariates. Event times follow
// a Weibull distribution whose scale depends on the first covariate; roughly
// a third of the visits are censored at a fraction of their event time.
func SyntheticCohort(nSubjects, maxLen, features int, seed uint64) (*Cohort, error) {
	if nSubjects <= 0 || maxLen <= 0 || features <= 0 {
		return nil, fmt.Errorf("cohort dimensions must be positive: %d subjects, %d visits, %d features", nSubjects, maxLen, features)
	}

	src := rand.NewSource(seed)
	rng := rand.New(src)

	cohort := &Cohort{
		Features: make([][][]float64, nSubjects),
		Times:    make([][]float64, nSubjects),
		Events:   make([][]float64, nSubjects),
	}

	for i := 0; i < nSubjects; i++ {
		visits := 1 + rng.Intn(maxLen)
		cohort.Features[i] = make([][]float64, visits)
		cohort.Times[i] = make([]float64, visits)
		cohort.Events[i] = make([]float64, visits)

		for v := 0; v < visits; v++ {
			x := make([]float64, features)
			for f := range x {
				x[f] = rng.NormFloat64()
			}
			cohort.Features[i][v] = x

			horizon := distuv.Weibull{
				K:      1.5,
				Lambda: 10.0 / (1.0 + 0.5*abs(x[0])),
				Src:    src,
			}
			eventTime := horizon.Rand()

			if rng.Float64() < 1.0/3.0 {
				// Censoring times stay strictly positive for the log-time losses.
				cohort.Times[i][v] = eventTime * (0.1 + 0.9*rng.Float64())
				cohort.Events[i][v] = 0
			} else {
				cohort.Times[i][v] = eventTime
				cohort.Events[i][v] = 1
			}
		}
	}
	return cohort, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
