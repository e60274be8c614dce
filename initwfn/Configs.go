package initwfn

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GlorotUConfig implements a configuration of the Glorot Uniform
// initialization algorithm.
type GlorotUConfig struct {
	Gain float64
}

// NewGlorotU returns a new Glorot Uniform weight initializer
func NewGlorotU(gain float64) *InitWFn {
	return New(GlorotUConfig{Gain: gain})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (g GlorotUConfig) Type() Type {
	return GlorotU
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (g GlorotUConfig) Create(src rand.Source) G.InitWFn {
	return fanInit(func(fanIn, fanOut float64) sampler {
		limit := g.Gain * math.Sqrt(6/(fanIn+fanOut))
		return distuv.Uniform{Min: -limit, Max: limit, Src: src}
	})
}

// GlorotNConfig implements a configuration of the Glorot Normal
// initialization algorithm.
type GlorotNConfig struct {
	Gain float64
}

// NewGlorotN returns a new Glorot Normal weight initializer.
func NewGlorotN(gain float64) *InitWFn {
	return New(GlorotNConfig{Gain: gain})
}

// Type returns the type of initialization algorithm described by the
// configuration.
func (g GlorotNConfig) Type() Type {
	return GlorotN
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (g GlorotNConfig) Create(src rand.Source) G.InitWFn {
	return fanInit(func(fanIn, fanOut float64) sampler {
		std := g.Gain * math.Sqrt(2/(fanIn+fanOut))
		return distuv.Normal{Mu: 0, Sigma: std, Src: src}
	})
}

// HeUConfig implements a configuration of the He uniform
// initialization algorithm.
type HeUConfig struct {
	Gain float64
}

// NewHeU returns a new He Uniform weight initializer
func NewHeU(gain float64) *InitWFn {
	return New(HeUConfig{Gain: gain})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (h HeUConfig) Type() Type {
	return HeU
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (h HeUConfig) Create(src rand.Source) G.InitWFn {
	return fanInit(func(fanIn, _ float64) sampler {
		limit := h.Gain * math.Sqrt(6/fanIn)
		return distuv.Uniform{Min: -limit, Max: limit, Src: src}
	})
}

// HeNConfig implements a configuration of the He normal
// initialization algorithm.
type HeNConfig struct {
	Gain float64
}

// NewHeN returns a new He Normal weight initializer
func NewHeN(gain float64) *InitWFn {
	return New(HeNConfig{Gain: gain})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (h HeNConfig) Type() Type {
	return HeN
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (h HeNConfig) Create(src rand.Source) G.InitWFn {
	return fanInit(func(fanIn, _ float64) sampler {
		std := h.Gain * math.Sqrt(2/fanIn)
		return distuv.Normal{Mu: 0, Sigma: std, Src: src}
	})
}

// UniformConfig initializes weights uniformly in [Low, High]
type UniformConfig struct {
	Low, High float64
}

// NewUniform returns a new uniform weight initializer
func NewUniform(low, high float64) (*InitWFn, error) {
	if low > high {
		return nil, fmt.Errorf("newuniform: low (%v) > high (%v)", low, high)
	}
	return New(UniformConfig{Low: low, High: high}), nil
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (u UniformConfig) Type() Type {
	return Uniform
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (u UniformConfig) Create(src rand.Source) G.InitWFn {
	return fanInit(func(_, _ float64) sampler {
		return distuv.Uniform{Min: u.Low, Max: u.High, Src: src}
	})
}

// ZeroesConfig implements a configuration of a zero weight initializer
type ZeroesConfig struct{}

// NewZeroes returns a new zeroes weight intializer
func NewZeroes() *InitWFn {
	return New(ZeroesConfig{})
}

// Type returns the type of the weight initializer created using this
// config
func (z ZeroesConfig) Type() Type {
	return Zeroes
}

// Create creates the Gorgonia weight initializer from this
// initializer config
func (z ZeroesConfig) Create(rand.Source) G.InitWFn {
	return G.Zeroes()
}

type sampler interface {
	Rand() float64
}

// fanInit returns an InitWFn which fills a tensor with samples from
// the distribution returned by dist for the tensor's fan in and fan out
func fanInit(dist func(fanIn, fanOut float64) sampler) G.InitWFn {
	return func(dt tensor.Dtype, s ...int) interface{} {
		size := tensor.Shape(s).TotalSize()
		fanIn, fanOut := fans(s)
		d := dist(fanIn, fanOut)

		switch dt {
		case tensor.Float64:
			out := make([]float64, size)
			for i := range out {
				out[i] = d.Rand()
			}
			return out
		case tensor.Float32:
			out := make([]float32, size)
			for i := range out {
				out[i] = float32(d.Rand())
			}
			return out
		default:
			panic(fmt.Sprintf("initwfn: dtype %v not supported", dt))
		}
	}
}

// fans returns the fan in and fan out of a weight tensor with shape s
func fans(s []int) (float64, float64) {
	switch len(s) {
	case 0:
		return 1, 1
	case 1:
		return float64(s[0]), float64(s[0])
	default:
		return float64(s[0]), float64(s[1])
	}
}
