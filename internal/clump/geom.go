// Package clump computes mass properties of rigid unions of spheres whose
// volumes may overlap, and materializes them as clumps of sphere particles.
package clump

import (
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dem"
	"github.com/san-kum/demsim/internal/dynamo"
)

const (
	// FastCellLimit is the estimated grid size above which a fast-only
	// recomputation gives up.
	FastCellLimit = 1e5
	// SlowCellWarning is the estimated grid size above which a warning is
	// logged.
	SlowCellWarning = 1e8
)

// SphereClumpGeom is the geometry of a union of spheres together with its
// per-unit-density mass properties. Div > 0 integrates the union on a
// regular grid of cell size min(Radii)/Div, which handles overlapping
// spheres; Div <= 0 assumes disjoint spheres.
type SphereClumpGeom struct {
	Centers []mgl64.Vec3
	Radii   []float64
	Div     int
	// ScaleProb is a cumulative probability-versus-scale table used by
	// generators picking a random scale for this geometry.
	ScaleProb []mgl64.Vec2

	Pos      mgl64.Vec3
	Ori      mgl64.Quat
	Volume   float64
	Inertia  mgl64.Vec3 // principal moments at unit density
	EquivRad float64

	Logger *slog.Logger
}

// New returns an uncomputed geometry.
func New(centers []mgl64.Vec3, radii []float64, div int) *SphereClumpGeom {
	g := &SphereClumpGeom{Centers: centers, Radii: radii, Div: div}
	g.makeInvalid()
	return g
}

func (g *SphereClumpGeom) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// IsOk reports whether mass properties are computed.
func (g *SphereClumpGeom) IsOk() bool { return !math.IsNaN(g.Volume) }

func (g *SphereClumpGeom) makeInvalid() {
	g.Volume = math.NaN()
	g.EquivRad = math.NaN()
	g.Pos = dynamo.NaNVec3()
	g.Inertia = dynamo.NaNVec3()
	g.Ori = mgl64.QuatIdent()
}

// Recompute derives volume, centroid, principal orientation and moments.
// With failOk, invalid input leaves the geometry unset instead of failing.
// With fastOnly, a grid estimated above FastCellLimit cells is not
// integrated and the geometry is left unset.
func (g *SphereClumpGeom) Recompute(div int, failOk, fastOnly bool) error {
	fail := func(err error) error {
		g.makeInvalid()
		if failOk {
			return nil
		}
		return err
	}
	if len(g.Centers) == 0 || len(g.Centers) != len(g.Radii) {
		return fail(dynamo.Errorf("SphereClumpGeom.Recompute", dynamo.ErrValidation, "centers and radii must have the same length (len(centers)=%d, len(radii)=%d), and may not be empty", len(g.Centers), len(g.Radii)))
	}
	rMin := math.Inf(1)
	box := dynamo.EmptyBox()
	for i, c := range g.Centers {
		r := g.Radii[i]
		rMin = math.Min(rMin, r)
		rv := mgl64.Vec3{r, r, r}
		box.Extend(c.Add(rv))
		box.Extend(c.Sub(rv))
	}
	if !(rMin > 0) {
		return fail(dynamo.Errorf("SphereClumpGeom.Recompute", dynamo.ErrValidation, "minimum radius must be positive (not %g)", rMin))
	}
	g.Div = div

	if len(g.Centers) == 1 {
		r := g.Radii[0]
		g.Pos = g.Centers[0]
		g.Ori = mgl64.QuatIdent()
		g.Volume = 4. / 3. * math.Pi * r * r * r
		i := 2. / 5. * g.Volume * r * r
		g.Inertia = mgl64.Vec3{i, i, i}
		g.EquivRad = r
		return nil
	}

	var (
		vol float64
		sg  mgl64.Vec3
		ig  mgl64.Mat3
	)
	if div <= 0 {
		for i, x := range g.Centers {
			r := g.Radii[i]
			v := 4. / 3. * math.Pi * r * r * r
			vol += v
			sg = sg.Add(x.Mul(v))
			own := 2. / 5. * v * r * r
			ig = ig.Add(dynamo.InertiaTranslate(mgl64.Diag3(mgl64.Vec3{own, own, own}), v, x))
		}
	} else {
		dx := rMin / float64(div)
		sizes := box.Sizes()
		cells := (sizes[0] / dx) * (sizes[1] / dx) * (sizes[2] / dx)
		if fastOnly && cells > FastCellLimit {
			g.makeInvalid()
			return nil
		}
		if cells > SlowCellWarning {
			g.logger().Warn("space grid is very large, computing inertia can take a long time", "cells", int64(cells))
		}
		vol, sg, ig = g.integrate(box, dx)
	}
	pos, ori, inertia, err := dynamo.PrincipalAxes(vol, sg, ig)
	if err != nil {
		return fail(err)
	}
	g.Volume = vol
	g.Pos, g.Ori, g.Inertia = pos, ori, inertia
	g.EquivRad = (math.Sqrt(inertia[0]/vol) + math.Sqrt(inertia[1]/vol) + math.Sqrt(inertia[2]/vol)) / 3
	return nil
}

// integrate samples cell centers of a regular grid over box; every cell
// inside any sphere contributes its volume as a small cube.
func (g *SphereClumpGeom) integrate(box dynamo.AlignedBox, dx float64) (float64, mgl64.Vec3, mgl64.Mat3) {
	var (
		vol float64
		sg  mgl64.Vec3
		ig  mgl64.Mat3
	)
	dv := dx * dx * dx
	cube := mgl64.Diag3(mgl64.Vec3{1, 1, 1}.Mul(dv * dx * dx / 6))
	var x mgl64.Vec3
	for x[0] = box.Min[0] + dx/2; x[0] < box.Max[0]; x[0] += dx {
		for x[1] = box.Min[1] + dx/2; x[1] < box.Max[1]; x[1] += dx {
			for x[2] = box.Min[2] + dx/2; x[2] < box.Max[2]; x[2] += dx {
				for i, c := range g.Centers {
					d := x.Sub(c)
					if d.Dot(d) >= g.Radii[i]*g.Radii[i] {
						continue
					}
					vol += dv
					sg = sg.Add(x.Mul(dv))
					ig = ig.Add(dynamo.InertiaTranslate(cube, dv, x))
					break
				}
			}
		}
	}
	return vol, sg, ig
}

func (g *SphereClumpGeom) ensureOk() error {
	if g.IsOk() {
		return nil
	}
	if err := g.Recompute(g.Div, false, false); err != nil {
		return err
	}
	if !g.IsOk() {
		return dynamo.Errorf("SphereClumpGeom", dynamo.ErrInvalidState, "mass properties could not be computed")
	}
	return nil
}

// Translate shifts the geometry by off.
func (g *SphereClumpGeom) Translate(off mgl64.Vec3) {
	for i := range g.Centers {
		g.Centers[i] = g.Centers[i].Add(off)
	}
	if g.IsOk() {
		g.Pos = g.Pos.Add(off)
	}
}

// Copy returns a deep copy.
func (g *SphereClumpGeom) Copy() *SphereClumpGeom {
	c := *g
	c.Centers = append([]mgl64.Vec3(nil), g.Centers...)
	c.Radii = append([]float64(nil), g.Radii...)
	c.ScaleProb = append([]mgl64.Vec2(nil), g.ScaleProb...)
	return &c
}

// MakeParticles creates sphere particles for the geometry. A single sphere
// is returned unclumped; otherwise the returned node is the clump master,
// with mass and inertia from the integrated geometry. A NaN component in
// pos places the clump at its natural position. scale multiplies lengths.
func (g *SphereClumpGeom) MakeParticles(mat *dem.Material, pos mgl64.Vec3, ori mgl64.Quat, mask uint32, scale float64) (*dem.Node, []*dem.Particle, error) {
	if err := g.ensureOk(); err != nil {
		return nil, nil, err
	}
	if mat == nil {
		return nil, nil, dynamo.Errorf("SphereClumpGeom.MakeParticles", dynamo.ErrValidation, "material is nil")
	}
	natural := !dynamo.IsFinite(pos)
	if len(g.Centers) == 1 {
		p, err := dem.MakeParticle(dem.NewSphere(g.Radii[0]*scale), mat, false)
		if err != nil {
			return nil, nil, err
		}
		p.Mask = mask
		n := p.Nodes()[0]
		n.Pos = pos
		if natural {
			n.Pos = g.Centers[0]
		}
		return n, []*dem.Particle{p}, nil
	}

	inv := g.Ori.Conjugate()
	ps := make([]*dem.Particle, len(g.Centers))
	members := make([]*dem.Node, len(g.Centers))
	relPos := make([]mgl64.Vec3, len(g.Centers))
	relOri := make([]mgl64.Quat, len(g.Centers))
	for i, c := range g.Centers {
		p, err := dem.MakeParticle(dem.NewSphere(g.Radii[i]*scale), mat, false)
		if err != nil {
			return nil, nil, err
		}
		p.Mask = mask
		ps[i] = p
		members[i] = p.Nodes()[0]
		relPos[i] = inv.Rotate(c.Sub(g.Pos)).Mul(scale)
		relOri[i] = inv
	}
	at := pos
	if natural {
		at = g.Pos
	}
	s3 := scale * scale * scale
	master, err := dem.AssembleClump(at, ori.Mul(g.Ori), members, relPos, relOri,
		mat.Density*g.Volume*s3, g.Inertia.Mul(mat.Density*s3*scale*scale))
	if err != nil {
		return nil, nil, err
	}
	return master, ps, nil
}
