package config

import (
	"math"
	"sort"
)

var Presets = map[string]*Config{
	"linear": {
		Name: "linear", Kind: KindODE, Method: "rk4",
		ODE: ODEConfig{F: "x - y", Exact: "x - 1 + 2*exp(-x)", X0: 0, XEnd: 5, Y0: 1, H: 0.1, MaxHalvings: 1},
	},
	"oscillator": {
		Name: "oscillator", Kind: KindODE2, Method: "rk4",
		ODE: ODEConfig{F: "-y", Exact: "sin(x)", Invariant: "y*y + yp*yp", X0: 0, XEnd: 4 * math.Pi, Y0: 0, YP0: 1, H: 0.05, MaxHalvings: 1},
	},
	"rotation": {
		Name: "rotation", Kind: KindSystem, Method: "rk4",
		System: SystemConfig{
			F1: "y", F2: "-x", Invariant: "x*x + y*y", Exact: "cos(t)", T0: 0, TEnd: 10, X0: 1, Y0: 0, H: 0.05,
			Checks: Checks{Radius: 1},
		},
	},
	"cubic": {
		Name: "cubic", Kind: KindNewton,
		Newton: NewtonConfig{F: "x**3 - 2*x - 5", DF: "3*x**2 - 2", X0: 2, Tolerance: 1e-6, MaxIter: 100},
	},
	"circle-exp": {
		Name: "circle-exp", Kind: KindNewton2,
		Newton: NewtonConfig{
			F1: "x**2 + y**2 - 4", F2: "exp(x) + y - 1",
			DF1DX: "2*x", DF1DY: "2*y", DF2DX: "exp(x)", DF2DY: "1",
			X0: 1, Y0: 1, Tolerance: 1e-6, MaxIter: 50,
		},
	},
	"triangle": {
		Name: "triangle", Kind: KindFourier,
		Fourier: FourierConfig{F: "x < pi ? x : 2*pi - x", L: math.Pi, Terms: 10, Points: 1000, SamplePoints: 500, From: 0, To: 2 * math.Pi},
	},
	"derivatives": {
		Name: "derivatives", Kind: KindDerivatives,
		Diff: DiffConfig{F: "sin(x) + x**2", G: "x**2*sin(y) + exp(x*y)", X0: 1, Y0: 0.5, H: 1e-4, From: -1, To: 3, Points: 100, MaxGrowth: 20},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	cp := cfg.Clone()
	cp.ApplyDefaults()
	return cp
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
