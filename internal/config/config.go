package config

import (
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dem"
	"github.com/san-kum/demsim/internal/dynamo"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSteps       = 5000
	DefaultSampleEvery = 50
	DefaultDamping     = 0.2
	DefaultDensity     = 2600
	DefaultYoung       = 1e7
	DefaultPoisson     = 0.2
	// DefaultDtSafety scales the critical time step when dt is left at 0.
	DefaultDtSafety = 0.3
)

// Config describes a scene: simulation parameters, one material and the
// particles to create.
type Config struct {
	Name        string       `yaml:"name,omitempty"`
	Dt          float64      `yaml:"dt"`
	DtSafety    float64      `yaml:"dt_safety"`
	Steps       int          `yaml:"steps"`
	SampleEvery int          `yaml:"sample_every"`
	Seed        int64        `yaml:"seed"`
	Gravity     mgl64.Vec3   `yaml:"gravity"`
	Damping     float64      `yaml:"damping"`
	ClumpDiv    int          `yaml:"clump_div"`
	Material    dem.Material `yaml:"material"`

	Spheres []SphereConfig `yaml:"spheres,omitempty"`
	Lattice *LatticeConfig `yaml:"lattice,omitempty"`
	// Pack is a sphere pack CSV file appended to the spheres.
	Pack  string       `yaml:"pack,omitempty"`
	Walls []WallConfig `yaml:"walls,omitempty"`
}

// SphereConfig is one sphere. Spheres sharing a non-negative ClumpID form a
// rigid clump, which is fixed if any member is fixed and moves with the
// first non-zero member velocity.
type SphereConfig struct {
	Center   mgl64.Vec3 `yaml:"center"`
	Radius   float64    `yaml:"radius"`
	ClumpID  int        `yaml:"clump_id"`
	Fixed    bool       `yaml:"fixed,omitempty"`
	Velocity mgl64.Vec3 `yaml:"velocity,omitempty"`
}

// LatticeConfig fills a regular grid with standalone spheres. Jitter is the
// largest random offset of a center along each axis, drawn with Seed.
type LatticeConfig struct {
	Origin  mgl64.Vec3 `yaml:"origin"`
	Count   [3]int     `yaml:"count"`
	Spacing float64    `yaml:"spacing"`
	Radius  float64    `yaml:"radius"`
	Jitter  float64    `yaml:"jitter,omitempty"`
}

// WallConfig is a fixed triangular facet.
type WallConfig struct {
	A         mgl64.Vec3 `yaml:"a"`
	B         mgl64.Vec3 `yaml:"b"`
	C         mgl64.Vec3 `yaml:"c"`
	HalfThick float64    `yaml:"half_thick,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		DtSafety:    DefaultDtSafety,
		Steps:       DefaultSteps,
		SampleEvery: DefaultSampleEvery,
		Gravity:     mgl64.Vec3{0, 0, -9.81},
		Damping:     DefaultDamping,
		Material: dem.Material{
			Density: DefaultDensity,
			Young:   DefaultYoung,
			Poisson: DefaultPoisson,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks ranges; it does not touch the pack file.
func (c *Config) Validate() error {
	const op = "config"
	switch {
	case c.Dt < 0:
		return dynamo.Errorf(op, dynamo.ErrValidation, "dt must not be negative, got %g", c.Dt)
	case c.Dt == 0 && !(c.DtSafety > 0 && c.DtSafety <= 1):
		return dynamo.Errorf(op, dynamo.ErrValidation, "dt_safety must be in (0,1] when dt is 0, got %g", c.DtSafety)
	case c.Steps <= 0:
		return dynamo.Errorf(op, dynamo.ErrValidation, "steps must be positive, got %d", c.Steps)
	case c.SampleEvery < 0:
		return dynamo.Errorf(op, dynamo.ErrValidation, "sample_every must not be negative, got %d", c.SampleEvery)
	case c.Damping < 0 || c.Damping >= 1:
		return dynamo.Errorf(op, dynamo.ErrValidation, "damping must be in [0,1), got %g", c.Damping)
	case !(c.Material.Density > 0):
		return dynamo.Errorf(op, dynamo.ErrValidation, "material density must be positive, got %g", c.Material.Density)
	case !(c.Material.Young > 0):
		return dynamo.Errorf(op, dynamo.ErrValidation, "material young must be positive, got %g", c.Material.Young)
	}
	for i, s := range c.Spheres {
		if !(s.Radius > 0) {
			return dynamo.Errorf(op, dynamo.ErrValidation, "sphere %d: radius must be positive, got %g", i, s.Radius)
		}
	}
	if l := c.Lattice; l != nil {
		if !(l.Radius > 0) || !(l.Spacing > 0) {
			return dynamo.Errorf(op, dynamo.ErrValidation, "lattice radius and spacing must be positive, got %g, %g", l.Radius, l.Spacing)
		}
		if l.Count[0] < 0 || l.Count[1] < 0 || l.Count[2] < 0 || l.Jitter < 0 {
			return dynamo.Errorf(op, dynamo.ErrValidation, "lattice count %v and jitter %g must not be negative", l.Count, l.Jitter)
		}
	}
	for i, w := range c.Walls {
		if w.B.Sub(w.A).Cross(w.C.Sub(w.A)).Len() == 0 {
			return dynamo.Errorf(op, dynamo.ErrValidation, "wall %d is degenerate", i)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Spheres = append([]SphereConfig(nil), c.Spheres...)
	cp.Walls = append([]WallConfig(nil), c.Walls...)
	if c.Lattice != nil {
		l := *c.Lattice
		cp.Lattice = &l
	}
	return &cp
}
