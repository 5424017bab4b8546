package config

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dem"
)

var floor = []WallConfig{
	{A: mgl64.Vec3{-1, -1, 0}, B: mgl64.Vec3{1, -1, 0}, C: mgl64.Vec3{1, 1, 0}},
	{A: mgl64.Vec3{-1, -1, 0}, B: mgl64.Vec3{1, 1, 0}, C: mgl64.Vec3{-1, 1, 0}},
}

var granite = dem.Material{Density: DefaultDensity, Young: DefaultYoung, Poisson: DefaultPoisson}

var Presets = map[string]*Config{
	"single": {
		Name: "single", DtSafety: 0.3, Steps: 4000, SampleEvery: 20, Damping: 0.2,
		Gravity: mgl64.Vec3{0, 0, -9.81}, Material: granite, Walls: floor,
		Spheres: []SphereConfig{{Center: mgl64.Vec3{0, 0, 0.2}, Radius: 0.05, ClumpID: -1}},
	},
	"drop": {
		Name: "drop", DtSafety: 0.3, Steps: 6000, SampleEvery: 50, Damping: 0.3, Seed: 1,
		Gravity: mgl64.Vec3{0, 0, -9.81}, Material: granite, Walls: floor,
		Lattice: &LatticeConfig{Origin: mgl64.Vec3{-0.165, -0.165, 0.1}, Count: [3]int{4, 4, 4}, Spacing: 0.11, Radius: 0.05, Jitter: 0.005},
	},
	"pile": {
		Name: "pile", DtSafety: 0.3, Steps: 8000, SampleEvery: 50, Damping: 0.3,
		Gravity: mgl64.Vec3{0, 0, -9.81}, Material: granite, Walls: floor,
		Spheres: []SphereConfig{
			{Center: mgl64.Vec3{-0.04, 0, 0.1}, Radius: 0.05, ClumpID: 0},
			{Center: mgl64.Vec3{0.04, 0, 0.1}, Radius: 0.05, ClumpID: 0},
			{Center: mgl64.Vec3{0, -0.04, 0.25}, Radius: 0.05, ClumpID: 1},
			{Center: mgl64.Vec3{0, 0.04, 0.25}, Radius: 0.04, ClumpID: 1},
			{Center: mgl64.Vec3{0.02, 0, 0.4}, Radius: 0.05, ClumpID: 2},
			{Center: mgl64.Vec3{0.02, 0, 0.48}, Radius: 0.05, ClumpID: 2},
			{Center: mgl64.Vec3{0.1, 0.02, 0.55}, Radius: 0.045, ClumpID: -1},
		},
		ClumpDiv: 6,
	},
	"collide": {
		Name: "collide", DtSafety: 0.2, Steps: 3000, SampleEvery: 10,
		Material: granite,
		Spheres: []SphereConfig{
			{Center: mgl64.Vec3{-0.2, 0, 0}, Radius: 0.1, ClumpID: -1, Velocity: mgl64.Vec3{1, 0, 0}},
			{Center: mgl64.Vec3{0.2, 0, 0}, Radius: 0.1, ClumpID: -1},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	return p.Clone()
}

// ListPresets returns preset names in sorted order.
func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
