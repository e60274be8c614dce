// Package pendulum implements the continuous-action pendulum classic
// control environment
package pendulum

import (
	"fmt"
	"math"
	"os"

	"github.com/samuelfneumann/gocontrol/environment"
	"github.com/samuelfneumann/gocontrol/timestep"
	"github.com/samuelfneumann/gocontrol/utils/floatutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// default physical constants
const (
	AngleBound  float64 = math.Pi // +/- Angle bounds
	SpeedBound  float64 = 8.0     // +/- Speed bounds
	TorqueBound float64 = 2.0     // +/- Torque bounds

	dt              float64 = 0.05
	Gravity         float64 = 9.8
	Mass            float64 = 1.0
	Length          float64 = 1.0
	ActionDims      int     = 1
	ObservationDims int     = 2
)

// Pendulum implements the classic control environment Pendulum. In
// this environment, a pendulum is attached to a fixed base. An agent
// can swing the pendulum back and forth, but the swinging torque is
// underpowered. In order to be able to swing the pendulum straight up,
// it must first be rocked back and forth, using the momentum to
// gradually climb higher until the pendulum can point straight up.
//
// State features consist of the angle of the pendulum from the positive
// y-axis and the angular velocity of the pendulum. The angular velocity
// is clipped to [-SpeedBound, SpeedBound] and angles are normalized to
// stay within [-AngleBound, AngleBound] = [-π, π].
//
// Actions are continuous and 1-dimensional, the torque applied at the
// fixed base, bounded by [-TorqueBound, TorqueBound]. Actions outside
// of this region are clipped.
type Pendulum struct {
	environment.Task
	angleBounds  r1.Interval
	speedBounds  r1.Interval
	torqueBounds r1.Interval
	lastStep     timestep.TimeStep
	discount     float64
}

// New creates and returns a new Pendulum environment
func New(t environment.Task, discount float64) *Pendulum {
	return &Pendulum{
		Task:         t,
		angleBounds:  r1.Interval{Min: -AngleBound, Max: AngleBound},
		speedBounds:  r1.Interval{Min: -SpeedBound, Max: SpeedBound},
		torqueBounds: r1.Interval{Min: -TorqueBound, Max: TorqueBound},
		discount:     discount,
	}
}

// Reset resets the environment and returns a starting state drawn from
// the Starter
func (p *Pendulum) Reset() (timestep.TimeStep, error) {
	state := p.Start()
	if err := validateState(state, p.angleBounds, p.speedBounds); err != nil {
		return timestep.TimeStep{}, fmt.Errorf("reset: %v", err)
	}
	p.lastStep = timestep.New(timestep.First, 0, p.discount, state, 0)

	return p.lastStep, nil
}

// Step takes one environmental step given the torque action and
// returns the next timestep and whether or not the episode has ended.
func (p *Pendulum) Step(action *mat.VecDense) (timestep.TimeStep, bool,
	error) {
	if p.lastStep.Observation == nil {
		return timestep.TimeStep{}, false, fmt.Errorf("step: environment " +
			"must be reset before stepping")
	}
	if action.Len() != ActionDims {
		return timestep.TimeStep{}, false, fmt.Errorf("step: actions should "+
			"be %d-dimensional", ActionDims)
	}

	torque := floatutils.ClipInterval(action.AtVec(0), p.torqueBounds)
	nextState := p.nextState(p.lastStep.Observation, torque)

	reward := p.GetReward(p.lastStep.Observation, action, nextState)
	nextStep := timestep.New(timestep.Mid, reward, p.discount, nextState,
		p.lastStep.Number+1)
	p.End(&nextStep)

	p.lastStep = nextStep
	return nextStep, nextStep.Last(), nil
}

// nextState computes the next state of the environment given an amount
// of (already clipped) torque to apply to the fixed base.
func (p *Pendulum) nextState(obs mat.Vector, torque float64) *mat.VecDense {
	th, thdot := obs.AtVec(0), obs.AtVec(1)

	newthdot := thdot + (-3*Gravity/(2*Length)*math.Sin(th+math.Pi)+
		3.0/(Mass*math.Pow(Length, 2))*torque)*dt
	newthdot = floatutils.ClipInterval(newthdot, p.speedBounds)

	newth := normalizeAngle(th + newthdot*dt)

	return mat.NewVecDense(ObservationDims, []float64{newth, newthdot})
}

// ObservationSpec returns the observation specification of the
// environment
func (p *Pendulum) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)
	lowerBound := mat.NewVecDense(ObservationDims,
		[]float64{p.angleBounds.Min, p.speedBounds.Min})
	upperBound := mat.NewVecDense(ObservationDims,
		[]float64{p.angleBounds.Max, p.speedBounds.Max})

	return environment.NewSpec(shape, environment.Observation, lowerBound,
		upperBound, environment.Continuous)
}

// ActionSpec returns the action specification of the environment
func (p *Pendulum) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims, []float64{p.torqueBounds.Min})
	upperBound := mat.NewVecDense(ActionDims, []float64{p.torqueBounds.Max})

	return environment.NewSpec(shape, environment.Action, lowerBound,
		upperBound, environment.Continuous)
}

// String converts the environment to a string representation
func (p *Pendulum) String() string {
	str := "Pendulum  |  theta: %v  |  theta dot: %v\n"
	theta := p.lastStep.Observation.AtVec(0)
	thetadot := p.lastStep.Observation.AtVec(1)

	return fmt.Sprintf(str, theta, thetadot)
}

// Render renders the current timestep to the terminal
func (p *Pendulum) Render() error {
	if p.lastStep.Observation == nil {
		return fmt.Errorf("render: environment must be reset before rendering")
	}
	angle := p.lastStep.Observation.AtVec(0)
	var frame string

	switch {
	case angle > -math.Pi/8 && angle < math.Pi/8:
		frame = "  | \n  ."
	case angle >= math.Pi/8 && angle < (3*math.Pi/8):
		frame = "   / \n  ."
	case angle >= (3*math.Pi/8) && angle < (5*math.Pi/8):
		frame = "  .--\n"
	case angle >= (5*math.Pi/8) && angle < (7*math.Pi/8):
		frame = "  . \n   \\"
	case angle >= (7*math.Pi/8) || angle <= (-7*math.Pi/8):
		frame = "  . \n  |"
	case angle > (-7*math.Pi/8) && angle <= (-5*math.Pi/8):
		frame = "  . \n/"
	case angle > (-5*math.Pi/8) && angle <= (-3*math.Pi/8):
		frame = "--.\n"
	default:
		frame = "\\ \n  ."
	}
	if _, err := os.Stdout.WriteString("\x1b[3;J\x1b[H\x1b[2J"); err != nil {
		return fmt.Errorf("render: %v", err)
	}
	_, err := fmt.Printf("\n\n%s\n\n", frame)
	return err
}

// normalizeAngle wraps an angle into [-π, π]
func normalizeAngle(th float64) float64 {
	th = math.Mod(th+math.Pi, 2*math.Pi)
	if th < 0 {
		th += 2 * math.Pi
	}
	return th - math.Pi
}

// validateState validates the state to ensure that the angle and angular
// velocity are within the environmental limits
func validateState(obs mat.Vector, angleBounds, speedBounds r1.Interval) error {
	if obs.Len() != ObservationDims {
		return fmt.Errorf("state should be %d-dimensional", ObservationDims)
	}
	if obs.AtVec(0) > angleBounds.Max || obs.AtVec(0) < angleBounds.Min {
		return fmt.Errorf("theta is not within bounds %v", angleBounds)
	}
	if obs.AtVec(1) > speedBounds.Max || obs.AtVec(1) < speedBounds.Min {
		return fmt.Errorf("theta dot is not within bounds %v", speedBounds)
	}
	return nil
}
