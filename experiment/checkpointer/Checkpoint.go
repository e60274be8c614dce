// Package checkpointer implements saving and loading of training
// checkpoints
package checkpointer

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/gocontrol/network"
	"github.com/samuelfneumann/gocontrol/solver"
)

// Lagrange holds the Lagrange multipliers of an agent which uses them
// to enforce constraints
type Lagrange struct {
	Eta      float64
	EtaMu    float64
	EtaSigma float64
}

// Checkpoint is the full state of an actor-critic agent: the live and
// target networks, the state of both solvers, and the episode counter.
type Checkpoint struct {
	Episode int

	Actor        []network.Param
	TargetActor  []network.Param
	Critic       []network.Param
	TargetCritic []network.Param

	ActorSolver  solver.State
	CriticSolver solver.State

	// Lagrange is nil for agents without Lagrange multipliers
	Lagrange *Lagrange
}

// Save writes c to path. The checkpoint is first written to a
// temporary file in the same directory which is then renamed to path,
// so that path never holds a partially written checkpoint.
func Save(path string, c *Checkpoint) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save: could not create directory %v: %v", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("save: could not create temporary file: %v", err)
	}
	tmpName := tmp.Name()

	if err := gob.NewEncoder(tmp).Encode(c); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("save: could not encode checkpoint: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save: could not close temporary file: %v", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save: could not move checkpoint into place: %v",
			err)
	}
	return nil
}

// Load reads the checkpoint stored at path
func Load(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load: could not open checkpoint: %v", err)
	}
	defer file.Close()

	var c Checkpoint
	if err := gob.NewDecoder(file).Decode(&c); err != nil {
		return nil, fmt.Errorf("load: could not decode checkpoint: %v", err)
	}
	return &c, nil
}
