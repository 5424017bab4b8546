package sim

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dem"
	"github.com/san-kum/demsim/internal/dynamo"
)

// BruteForceCollider tests every particle pair for overlap. Spheres collide
// with spheres and facets; other shape pairs are ignored. Particles sharing
// a clump or with disjoint masks never collide.
type BruteForceCollider struct {
	// MinChunk is the smallest number of particles handled by one worker.
	MinChunk int
}

type hit struct {
	j    int
	geom dem.ContactGeom
}

type pairKey struct{ a, b dem.ParticleID }

func keyOf(a, b dem.ParticleID) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

func (c *BruteForceCollider) Update(f *dem.Field) error {
	ps := f.Particles()
	boxes := make([]dynamo.AlignedBox, len(ps))
	for i, p := range ps {
		if p.Shape != nil {
			boxes[i] = p.Shape.AlignedBox()
		} else {
			boxes[i] = dynamo.EmptyBox()
		}
	}

	hits := make([][]hit, len(ps))
	minChunk := c.MinChunk
	if minChunk <= 0 {
		minChunk = 64
	}
	dynamo.ParallelFor(len(ps), minChunk, func(start, end int) {
		for i := start; i < end; i++ {
			for j := i + 1; j < len(ps); j++ {
				if !boxes[i].Overlaps(boxes[j]) || !mayCollide(ps[i], ps[j]) {
					continue
				}
				if g, ok := contactGeom(ps[i], ps[j]); ok {
					hits[i] = append(hits[i], hit{j: j, geom: g})
				}
			}
		}
	})

	touching := make(map[pairKey]bool)
	cc := f.Contacts()
	for i, hh := range hits {
		a := ps[i]
		for _, h := range hh {
			b := ps[h.j]
			touching[keyOf(a.ID(), b.ID())] = true
			g := h.geom
			if ct, ok := cc.Find(a.ID(), b.ID()); ok {
				if ct.A != a.ID() {
					g.Normal = g.Normal.Mul(-1)
				}
				ct.Geom = &g
				continue
			}
			ct := dem.NewContact(a.ID(), b.ID())
			ct.Geom = &g
			if err := cc.Add(ct); err != nil {
				return err
			}
		}
	}
	for _, ct := range cc.All() {
		if touching[keyOf(ct.A, ct.B)] {
			continue
		}
		if err := cc.Remove(ct); err != nil {
			return err
		}
	}
	return nil
}

func mayCollide(a, b *dem.Particle) bool {
	if a.Shape == nil || b.Shape == nil || a.Mask&b.Mask == 0 {
		return false
	}
	ma, okA := clumpMasterOf(a)
	mb, okB := clumpMasterOf(b)
	return !(okA && okB && ma == mb)
}

func clumpMasterOf(p *dem.Particle) (*dem.Node, bool) {
	nn := p.Nodes()
	if len(nn) != 1 || !nn[0].HasDem() {
		return nil, false
	}
	return nn[0].Dem().Master()
}

// contactGeom returns the geometry of the a-b overlap with the normal
// pointing from a towards b.
func contactGeom(a, b *dem.Particle) (dem.ContactGeom, bool) {
	sa, aSphere := a.Shape.(*dem.Sphere)
	sb, bSphere := b.Shape.(*dem.Sphere)
	switch {
	case aSphere && bSphere:
		return sphereSphere(sa, sb)
	case aSphere:
		if fb, ok := b.Shape.(*dem.Facet); ok {
			return sphereFacet(sa, fb)
		}
	case bSphere:
		if fa, ok := a.Shape.(*dem.Facet); ok {
			g, hit := sphereFacet(sb, fa)
			g.Normal = g.Normal.Mul(-1)
			return g, hit
		}
	}
	return dem.ContactGeom{}, false
}

func sphereSphere(a, b *dem.Sphere) (dem.ContactGeom, bool) {
	ca, cb := a.Nodes()[0].Pos, b.Nodes()[0].Pos
	d := cb.Sub(ca)
	dist := d.Len()
	overlap := a.Radius + b.Radius - dist
	if overlap <= 0 {
		return dem.ContactGeom{}, false
	}
	n := mgl64.Vec3{1, 0, 0}
	if dist > 0 {
		n = d.Mul(1 / dist)
	}
	return dem.ContactGeom{
		Point:   ca.Add(n.Mul(a.Radius - overlap/2)),
		Normal:  n,
		Overlap: overlap,
	}, true
}

func sphereFacet(s *dem.Sphere, f *dem.Facet) (dem.ContactGeom, bool) {
	c := s.Nodes()[0].Pos
	nn := f.Nodes()
	q := closestOnTriangle(c, nn[0].Pos, nn[1].Pos, nn[2].Pos)
	d := q.Sub(c)
	dist := d.Len()
	overlap := s.Radius + f.HalfThick - dist
	if overlap <= 0 {
		return dem.ContactGeom{}, false
	}
	var n mgl64.Vec3
	if dist > 0 {
		n = d.Mul(1 / dist)
	} else {
		// center in the facet plane
		n = f.Normal().Mul(-1)
	}
	return dem.ContactGeom{Point: q, Normal: n, Overlap: overlap}, true
}

// closestOnTriangle returns the point of triangle abc closest to p.
func closestOnTriangle(p, a, b, c mgl64.Vec3) mgl64.Vec3 {
	ab, ac, ap := b.Sub(a), c.Sub(a), p.Sub(a)
	d1, d2 := ab.Dot(ap), ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}
	bp := p.Sub(b)
	d3, d4 := ab.Dot(bp), ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		return a.Add(ab.Mul(d1 / (d1 - d3)))
	}
	cp := p.Sub(c)
	d5, d6 := ab.Dot(cp), ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		return a.Add(ac.Mul(d2 / (d2 - d6)))
	}
	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).Mul(w))
	}
	denom := 1 / (va + vb + vc)
	return a.Add(ab.Mul(vb * denom)).Add(ac.Mul(vc * denom))
}

// LinearNormal is a linear elastic normal law. Stiffness is derived from the
// smaller Young's modulus and the harmonic mean of sphere radii.
type LinearNormal struct {
	// KnScale multiplies the derived stiffness; zero means 1.
	KnScale float64
}

func (l *LinearNormal) Apply(f *dem.Field, c *dem.Contact, a, b *dem.Particle) error {
	if c.Geom == nil {
		return dynamo.Errorf("LinearNormal.Apply", dynamo.ErrPrecondition, "%s has no geometry", c)
	}
	if c.Phys == nil {
		kn, err := stiffness(a, b)
		if err != nil {
			return err
		}
		if l.KnScale != 0 {
			kn *= l.KnScale
		}
		c.Phys = &dem.ContactPhys{Kn: kn}
	}
	fa := c.Geom.Normal.Mul(-c.Phys.Kn * c.Geom.Overlap)
	c.Phys.Force = fa
	applyLoad(a, c.Geom.Point, fa)
	applyLoad(b, c.Geom.Point, fa.Mul(-1))
	return nil
}

func stiffness(a, b *dem.Particle) (float64, error) {
	if a.Material == nil || b.Material == nil {
		return 0, dynamo.Errorf("LinearNormal", dynamo.ErrValidation, "particles #%d, #%d need materials", a.ID(), b.ID())
	}
	e := math.Min(a.Material.Young, b.Material.Young)
	var r float64
	ra, okA := a.Shape.(*dem.Sphere)
	rb, okB := b.Shape.(*dem.Sphere)
	switch {
	case okA && okB:
		r = 2 * ra.Radius * rb.Radius / (ra.Radius + rb.Radius)
	case okA:
		r = ra.Radius
	case okB:
		r = rb.Radius
	}
	return e * r, nil
}

// applyLoad adds force F acting at pt to the nodes of p. Multi-node shapes
// share the force equally and take no torque.
func applyLoad(p *dem.Particle, pt, F mgl64.Vec3) {
	nn := p.Nodes()
	if len(nn) == 1 {
		d := nn[0].Dem()
		d.Force = d.Force.Add(F)
		d.Torque = d.Torque.Add(pt.Sub(nn[0].Pos).Cross(F))
		return
	}
	share := F.Mul(1 / float64(len(nn)))
	for _, n := range nn {
		d := n.Dem()
		d.Force = d.Force.Add(share)
	}
}
