package mpo

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gocontrol/agent/nonlinear/continuous/policy"
	"github.com/samuelfneumann/gocontrol/solver"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// improver performs the M-step of MPO: it fits the diagonal Gaussian
// policy of the actor to the reweighted actions of the E-step while the
// mean and covariance terms of the KL divergence to the target policy
// are constrained by Lagrange multipliers.
//
// The log likelihood of the M weighted actions in each state depends
// on the actions only through their first two moments, so the graph
// takes as input the per-state mean of the actions and the mean of
// their squares:
//
//	mean_j log π(a_j) = Σ_i [-½ (E[a_i²] - 2μ_i E[a_i] + μ_i²) / σ_i² - log σ_i] - (d/2) log 2π
type improver struct {
	actor *policy.GaussianMLP

	// Inputs
	actionMean *G.Node // B x d, mean of the weighted actions
	actionSq   *G.Node // B x d, mean of the squared weighted actions
	targetMean *G.Node // B x d
	targetVar  *G.Node // B x d
	targetLog  *G.Node // B x d, log standard deviation of the target
	etaMu      *G.Node
	etaSigma   *G.Node

	cMu, cSigma       *G.Node
	loss              *G.Node
	lossVal           G.Value
	cMuVal, cSigmaVal G.Value

	vm     G.VM
	solver *solver.Solver
}

// newImprover adds the M-step loss of the actor to its graph. If swap
// is true, the mean constraint is paired with the covariance term of
// the KL divergence and the covariance constraint with the mean term.
func newImprover(actor *policy.GaussianMLP, epsMu, epsSigma float64,
	swap bool, s *solver.Solver) (*improver, error) {
	net := actor.Network()
	g := net.Graph()
	batch, dims := actor.BatchSize(), actor.ActionDims()

	input := func(name string) *G.Node {
		return G.NewMatrix(g, G.Float64, G.WithShape(batch, dims),
			G.WithName(name), G.WithInit(G.Zeroes()))
	}
	scalar := func(name string) *G.Node {
		return G.NewScalar(g, G.Float64, G.WithName(name),
			G.WithValue(0.0))
	}

	imp := &improver{
		actor:      actor,
		actionMean: input("MStepActionMean"),
		actionSq:   input("MStepActionSq"),
		targetMean: input("MStepTargetMean"),
		targetVar:  input("MStepTargetVar"),
		targetLog:  input("MStepTargetLogStd"),
		etaMu:      scalar("MStepEtaMu"),
		etaSigma:   scalar("MStepEtaSigma"),
		solver:     s,
	}

	mean, std := actor.MeanNode(), actor.StdNode()
	variance := G.Must(G.Square(std))
	logStd := G.Must(G.Log(std))
	perState := G.NewConstant(1 / float64(batch))

	// Log likelihood of the weighted actions
	sqDiff := G.Must(G.HadamardProd(mean, imp.actionMean))
	sqDiff = G.Must(G.Mul(sqDiff, G.NewConstant(2.0)))
	sqDiff = G.Must(G.Sub(imp.actionSq, sqDiff))
	sqDiff = G.Must(G.Add(sqDiff, G.Must(G.Square(mean))))

	logProb := G.Must(G.HadamardDiv(sqDiff, variance))
	logProb = G.Must(G.Mul(logProb, G.NewConstant(-0.5)))
	logProb = G.Must(G.Sub(logProb, logStd))
	logProb = G.Must(G.Mul(G.Must(G.Sum(logProb)), perState))
	logProb = G.Must(G.Sub(logProb,
		G.NewConstant(float64(dims)/2*math.Log(2*math.Pi))))

	// Mean term of the KL divergence
	diff := G.Must(G.Sub(mean, imp.targetMean))
	meanTerm := G.Must(G.HadamardDiv(G.Must(G.Square(diff)), variance))
	meanTerm = G.Must(G.Mul(G.Must(G.Sum(meanTerm)), perState))
	meanTerm = G.Must(G.Mul(meanTerm, G.NewConstant(0.5)))

	// Covariance term of the KL divergence
	covTerm := G.Must(G.HadamardDiv(imp.targetVar, variance))
	logDet := G.Must(G.Sub(logStd, imp.targetLog))
	logDet = G.Must(G.Mul(logDet, G.NewConstant(2.0)))
	covTerm = G.Must(G.Add(covTerm, logDet))
	covTerm = G.Must(G.Mul(G.Must(G.Sum(covTerm)), perState))
	covTerm = G.Must(G.Sub(covTerm, G.NewConstant(float64(dims))))
	covTerm = G.Must(G.Mul(covTerm, G.NewConstant(0.5)))

	imp.cMu, imp.cSigma = meanTerm, covTerm
	if swap {
		imp.cMu, imp.cSigma = covTerm, meanTerm
	}

	// -(log π + η_μ(ε_μ - C_μ) + η_Σ(ε_Σ - C_Σ))
	muPenalty := G.Must(G.Sub(G.NewConstant(epsMu), imp.cMu))
	muPenalty = G.Must(G.Mul(imp.etaMu, muPenalty))
	sigmaPenalty := G.Must(G.Sub(G.NewConstant(epsSigma), imp.cSigma))
	sigmaPenalty = G.Must(G.Mul(imp.etaSigma, sigmaPenalty))

	imp.loss = G.Must(G.Add(logProb, muPenalty))
	imp.loss = G.Must(G.Add(imp.loss, sigmaPenalty))
	imp.loss = G.Must(G.Neg(imp.loss))

	G.Read(imp.loss, &imp.lossVal)
	G.Read(imp.cMu, &imp.cMuVal)
	G.Read(imp.cSigma, &imp.cSigmaVal)

	if _, err := G.Grad(imp.loss, net.Learnables()...); err != nil {
		return nil, fmt.Errorf("newimprover: could not compute gradient: %v",
			err)
	}
	imp.vm = G.NewTapeMachine(g, G.BindDualValues(net.Learnables()...))

	return imp, nil
}

// mStepBatch holds the inputs of a single M-step for a minibatch of
// states, all in row-major order
type mStepBatch struct {
	states     []float64
	actionMean []float64
	actionSq   []float64
	targetMean []float64
	targetStd  []float64
}

// step takes a single gradient step on the M-step loss with the
// multipliers etaMu and etaSigma, returning the loss and the KL terms
// paired with each multiplier before the step
func (m *improver) step(b mStepBatch, etaMu, etaSigma float64) (loss, cMu,
	cSigma float64, err error) {
	batch, dims := m.actor.BatchSize(), m.actor.ActionDims()

	targetVar := make([]float64, len(b.targetStd))
	targetLog := make([]float64, len(b.targetStd))
	for i, std := range b.targetStd {
		targetVar[i] = std * std
		targetLog[i] = math.Log(std)
	}

	inputs := []struct {
		node *G.Node
		data []float64
	}{
		{m.actionMean, b.actionMean},
		{m.actionSq, b.actionSq},
		{m.targetMean, b.targetMean},
		{m.targetVar, targetVar},
		{m.targetLog, targetLog},
	}
	for _, in := range inputs {
		if len(in.data) != batch*dims {
			return 0, 0, 0, fmt.Errorf("step: input %v has size %v, want %v",
				in.node.Name(), len(in.data), batch*dims)
		}
		t := tensor.New(tensor.WithShape(batch, dims),
			tensor.WithBacking(in.data))
		if err := G.Let(in.node, t); err != nil {
			return 0, 0, 0, fmt.Errorf("step: could not set %v: %v",
				in.node.Name(), err)
		}
	}
	if err := G.Let(m.etaMu, G.NewF64(etaMu)); err != nil {
		return 0, 0, 0, fmt.Errorf("step: %v", err)
	}
	if err := G.Let(m.etaSigma, G.NewF64(etaSigma)); err != nil {
		return 0, 0, 0, fmt.Errorf("step: %v", err)
	}
	if err := m.actor.Network().SetInput(b.states); err != nil {
		return 0, 0, 0, fmt.Errorf("step: %v", err)
	}

	defer m.vm.Reset()
	if err := m.vm.RunAll(); err != nil {
		return 0, 0, 0, fmt.Errorf("step: could not run vm: %v", err)
	}

	loss = m.lossVal.Data().(float64)
	cMu = m.cMuVal.Data().(float64)
	cSigma = m.cSigmaVal.Data().(float64)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, 0, 0, fmt.Errorf("step: non-finite loss %v", loss)
	}

	if err := m.solver.Step(m.actor.Network().Model()); err != nil {
		return 0, 0, 0, fmt.Errorf("step: could not step solver: %v", err)
	}
	return loss, cMu, cSigma, nil
}

// Close releases the resources of the improver's VM
func (m *improver) Close() error {
	return m.vm.Close()
}
