// Package model implements the stochastic dispersal collaborator consumed
// by the scheduler: per-realization sporulation engines and dispersal
// kernels. Kernel instances hold private RNG state and must never be
// shared between realizations.
package model

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// Cell is a raster coordinate.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Kernel draws a landing cell for a single disperser released at (row, col).
type Kernel interface {
	Draw(row, col int) (int, int)
}

// KernelType selects the radial distance distribution.
type KernelType string

// Supported kernel types.
const (
	KernelCauchy      KernelType = "cauchy"
	KernelExponential KernelType = "exponential"
	KernelUniform     KernelType = "uniform"
	KernelNone        KernelType = "none"
)

// ParseKernelType validates a kernel type token from configuration.
func ParseKernelType(s string) (KernelType, error) {
	switch KernelType(strings.ToLower(s)) {
	case KernelCauchy:
		return KernelCauchy, nil
	case KernelExponential:
		return KernelExponential, nil
	case KernelUniform:
		return KernelUniform, nil
	case KernelNone, "":
		return KernelNone, nil
	}
	return "", fmt.Errorf("unknown kernel type %q", s)
}

// ParseDirection maps a compass token to an angle in degrees (N=0, E=90).
// The bool result is false for "none".
func ParseDirection(s string) (float64, bool, error) {
	switch strings.ToUpper(s) {
	case "N":
		return 0, true, nil
	case "NE":
		return 45, true, nil
	case "E":
		return 90, true, nil
	case "SE":
		return 135, true, nil
	case "S":
		return 180, true, nil
	case "SW":
		return 225, true, nil
	case "W":
		return 270, true, nil
	case "NW":
		return 315, true, nil
	case "NONE", "":
		return 0, false, nil
	}
	return 0, false, fmt.Errorf("unknown direction %q", s)
}

// RadialKernel draws a distance from a cauchy or exponential distribution
// and a direction either uniformly or from a von Mises distribution
// concentrated around a prevailing angle.
type RadialKernel struct {
	ewRes, nsRes float64
	kind         KernelType
	scale        float64
	directed     bool
	mu           float64 // prevailing direction in radians
	kappa        float64
	rng          *rand.Rand
}

// NewRadialKernel builds a radial kernel. directionDeg is ignored unless
// directed is true and kappa > 0.
func NewRadialKernel(ewRes, nsRes float64, kind KernelType, scale float64, directionDeg float64, directed bool, kappa float64, seed uint64) *RadialKernel {
	return &RadialKernel{
		ewRes:    ewRes,
		nsRes:    nsRes,
		kind:     kind,
		scale:    scale,
		directed: directed && kappa > 0,
		mu:       directionDeg * math.Pi / 180,
		kappa:    kappa,
		rng:      rand.New(rand.NewPCG(seed, 0)),
	}
}

// Draw implements Kernel.
func (k *RadialKernel) Draw(row, col int) (int, int) {
	dist := k.distance()
	theta := k.direction()
	// N=0 points up the grid: rows decrease northward.
	dRow := -dist * math.Cos(theta) / k.nsRes
	dCol := dist * math.Sin(theta) / k.ewRes
	return row + int(math.Round(dRow)), col + int(math.Round(dCol))
}

func (k *RadialKernel) distance() float64 {
	u := k.rng.Float64()
	switch k.kind {
	case KernelExponential:
		return -k.scale * math.Log(1-u)
	default: // cauchy
		return math.Abs(k.scale * math.Tan(math.Pi*(u-0.5)))
	}
}

func (k *RadialKernel) direction() float64 {
	if !k.directed {
		return 2 * math.Pi * k.rng.Float64()
	}
	return k.vonMises()
}

// vonMises samples an angle around mu with concentration kappa using the
// Best-Fisher rejection method.
func (k *RadialKernel) vonMises() float64 {
	a := 1 + math.Sqrt(1+4*k.kappa*k.kappa)
	b := (a - math.Sqrt(2*a)) / (2 * k.kappa)
	r := (1 + b*b) / (2 * b)
	for {
		u1 := k.rng.Float64()
		z := math.Cos(math.Pi * u1)
		f := (1 + r*z) / (r + z)
		c := k.kappa * (r - f)
		u2 := k.rng.Float64()
		if c*(2-c) > u2 || math.Log(c/u2)+1-c >= 0 {
			theta := math.Acos(f)
			if k.rng.Float64() > 0.5 {
				theta = -theta
			}
			return k.mu + theta
		}
	}
}

// UniformKernel lands dispersers anywhere on the grid with equal
// probability, regardless of the release cell.
type UniformKernel struct {
	rows, cols int
	rng        *rand.Rand
}

// NewUniformKernel builds a uniform kernel over a rows x cols grid.
func NewUniformKernel(rows, cols int, seed uint64) *UniformKernel {
	return &UniformKernel{rows: rows, cols: cols, rng: rand.New(rand.NewPCG(seed, 0))}
}

// Draw implements Kernel.
func (k *UniformKernel) Draw(int, int) (int, int) {
	return k.rng.IntN(k.rows), k.rng.IntN(k.cols)
}

// SwitchKernel mixes a natural and an anthropogenic kernel: each draw uses
// the natural kernel with probability gamma.
type SwitchKernel struct {
	natural Kernel
	anthro  Kernel
	gamma   float64
	rng     *rand.Rand
}

// NewSwitchKernel builds a mixed kernel. anthro may be nil, in which case
// every draw uses the natural kernel.
func NewSwitchKernel(natural, anthro Kernel, gamma float64, seed uint64) *SwitchKernel {
	return &SwitchKernel{natural: natural, anthro: anthro, gamma: gamma, rng: rand.New(rand.NewPCG(seed, 0))}
}

// Draw implements Kernel.
func (k *SwitchKernel) Draw(row, col int) (int, int) {
	if k.anthro != nil && k.rng.Float64() > k.gamma {
		return k.anthro.Draw(row, col)
	}
	return k.natural.Draw(row, col)
}
