// Package tracker implements sinks which record the scalar metrics of
// a training run and save them after training has finished
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Sink records named scalar metrics at a step of training
type Sink interface {
	Add(name string, step int, value float64)
}

// Discard is a Sink which drops all metrics
var Discard Sink = discard{}

type discard struct{}

func (discard) Add(string, int, float64) {}

// Point is a single recorded metric value
type Point struct {
	Step  int
	Value float64
}

// Scalars is a Sink which keeps all metrics in memory and saves them to
// a file with Save. Scalars is safe for concurrent use.
type Scalars struct {
	mu       sync.Mutex
	data     map[string][]Point
	filename string
}

// NewScalars returns a new Scalars Sink which saves to filename
func NewScalars(filename string) *Scalars {
	return &Scalars{
		data:     make(map[string][]Point),
		filename: filename,
	}
}

// Add records value for the metric name at step
func (s *Scalars) Add(name string, step int, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = append(s.data[name], Point{Step: step, Value: value})
}

// Get returns a copy of the values recorded for the metric name
func (s *Scalars) Get(name string) []Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Point(nil), s.data[name]...)
}

// Names returns the sorted names of all recorded metrics
func (s *Scalars) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save saves the recorded metrics to disk
func (s *Scalars) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Open the file to save to
	file, err := os.Create(s.filename)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %v", err)
	}
	defer file.Close()

	// Encode and save the file
	en := gob.NewEncoder(file)
	if err = en.Encode(s.data); err != nil {
		return fmt.Errorf("save: could not encode data: %v", err)
	}
	return nil
}

// LoadScalars loads and returns the data saved by a Scalars Sink
func LoadScalars(filename string) (map[string][]Point, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadscalars: could not open data file: %v",
			err)
	}
	defer file.Close()

	// Create the decoder and the variable to store the data in
	dec := gob.NewDecoder(file)
	var data map[string][]Point

	if err = dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("loadscalars: could not decode data: %v", err)
	}
	return data, nil
}
