package mpo

import (
	"math"

	"github.com/samuelfneumann/gocontrol/experiment/checkpointer"
	"golang.org/x/exp/rand"
)

// multipliers is the Lagrange state of MPO: the dual temperature η of
// the E-step and the multipliers η_μ, η_Σ of the M-step's mean and
// covariance constraints. It is owned by a training run and passed to
// each update, and persists across episodes.
type multipliers struct {
	eta, etaMu, etaSigma float64
}

// newMultipliers returns multipliers drawn uniformly from [0, 1), with
// η at least floor
func newMultipliers(rng *rand.Rand, floor float64) multipliers {
	eta := math.Max(rng.Float64(), floor)
	return multipliers{eta: eta, etaMu: rng.Float64(), etaSigma: rng.Float64()}
}

// multipliersFrom returns the multipliers stored in a checkpoint
func multipliersFrom(l checkpointer.Lagrange, floor float64) multipliers {
	return multipliers{
		eta:      math.Max(l.Eta, floor),
		etaMu:    math.Max(l.EtaMu, 0),
		etaSigma: math.Max(l.EtaSigma, 0),
	}
}

// stepKL takes one projected gradient step with step size alpha on
// η_μ and η_Σ, given the mean and covariance KL terms cMu, cSigma and
// their bounds epsMu, epsSigma
func (l *multipliers) stepKL(alpha, epsMu, epsSigma, cMu, cSigma float64) {
	l.etaMu = math.Max(0, l.etaMu-alpha*(epsMu-cMu))
	l.etaSigma = math.Max(0, l.etaSigma-alpha*(epsSigma-cSigma))
}

func (l multipliers) lagrange() checkpointer.Lagrange {
	return checkpointer.Lagrange{
		Eta:      l.eta,
		EtaMu:    l.etaMu,
		EtaSigma: l.etaSigma,
	}
}
