package config

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/clump"
	"github.com/san-kum/demsim/internal/dem"
	"github.com/san-kum/demsim/internal/dynamo"
	"github.com/san-kum/demsim/internal/pack"
	"github.com/san-kum/demsim/internal/sim"
)

type clumpAttr struct {
	fixed bool
	vel   mgl64.Vec3
}

// SpherePack collects clumped config spheres, the lattice and the pack file.
// Standalone config spheres are not included; Build creates them directly.
func (c *Config) SpherePack() (*pack.SpherePack, error) {
	sp := &pack.SpherePack{}
	for _, s := range c.Spheres {
		if s.ClumpID >= 0 {
			sp.Add(s.Center, s.Radius, s.ClumpID)
		}
	}
	if l := c.Lattice; l != nil {
		lat := pack.Lattice(l.Origin, l.Count, l.Spacing, l.Radius)
		if l.Jitter > 0 {
			rng := rand.New(rand.NewSource(c.Seed))
			for i := range lat.Spheres {
				for k := 0; k < 3; k++ {
					lat.Spheres[i].Center[k] += l.Jitter * (2*rng.Float64() - 1)
				}
			}
		}
		sp.Spheres = append(sp.Spheres, lat.Spheres...)
	}
	if c.Pack != "" {
		extra, err := pack.Load(c.Pack)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", c.Pack, err)
		}
		sp.Spheres = append(sp.Spheres, extra.Spheres...)
	}
	return sp, nil
}

// Build creates a field holding the walls, the spheres and the clumps of the
// scene.
func (c *Config) Build(opts ...dem.Option) (*dem.Field, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	f := dem.NewField(opts...)
	mat := c.Material

	for i, w := range c.Walls {
		p, err := dem.MakeParticle(dem.NewFacet(w.A, w.B, w.C, w.HalfThick), &mat, true)
		if err != nil {
			return nil, fmt.Errorf("wall %d: %w", i, err)
		}
		if _, err := f.AddParticle(p, dem.NodesNone); err != nil {
			return nil, err
		}
	}

	attrs := make(map[int]*clumpAttr)
	for i, s := range c.Spheres {
		if s.ClumpID >= 0 {
			a, ok := attrs[s.ClumpID]
			if !ok {
				a = &clumpAttr{}
				attrs[s.ClumpID] = a
			}
			a.fixed = a.fixed || s.Fixed
			if a.vel == (mgl64.Vec3{}) {
				a.vel = s.Velocity
			}
			continue
		}
		p, err := dem.MakeParticle(dem.NewSphere(s.Radius), &mat, s.Fixed)
		if err != nil {
			return nil, fmt.Errorf("sphere %d: %w", i, err)
		}
		n := p.Nodes()[0]
		n.Pos = s.Center
		n.Dem().Vel = s.Velocity
		if _, err := f.AddParticle(p, dem.NodesAuto); err != nil {
			return nil, err
		}
	}

	sp, err := c.SpherePack()
	if err != nil {
		return nil, err
	}
	keys, geoms, err := clump.FromSpherePack(sp, c.ClumpDiv)
	if err != nil {
		return nil, err
	}
	for i, g := range geoms {
		master, ps, err := g.MakeParticles(&mat, dynamo.NaNVec3(), mgl64.QuatIdent(), 1, 1)
		if err != nil {
			return nil, fmt.Errorf("clump %d: %w", keys[i], err)
		}
		if a, ok := attrs[keys[i]]; ok {
			d := master.Dem()
			d.Vel = a.vel
			if a.fixed {
				d.SetBlockedAll()
			}
		}
		if !master.Dem().IsClump() {
			if _, err := f.AddParticle(ps[0], dem.NodesAuto); err != nil {
				return nil, err
			}
			continue
		}
		if _, err := f.AddClump(master, ps); err != nil {
			return nil, err
		}
		if err := dem.ApplyToMembers(master, true); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// SimConfig returns the stepping parameters for f. A zero dt is replaced by
// DtSafety times the critical step of f.
func (c *Config) SimConfig(f *dem.Field) (sim.Config, error) {
	dt := c.Dt
	if dt == 0 {
		crit := sim.CriticalDt(f)
		if !(crit > 0) || math.IsInf(crit, 1) {
			return sim.Config{}, dynamo.Errorf("config", dynamo.ErrValidation, "dt is 0 and no sphere bounds the critical time step")
		}
		dt = c.DtSafety * crit
	}
	return sim.Config{
		Dt:            dt,
		Steps:         c.Steps,
		Gravity:       c.Gravity,
		Damping:       c.Damping,
		SampleEvery:   c.SampleEvery,
		ValidateState: true,
		Seed:          c.Seed,
	}, nil
}
