package dem

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dynamo"
)

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func TestMakeParticleShapes(t *testing.T) {
	mat := NewMaterial(1000, 1e7)
	tests := []struct {
		name    string
		shape   Shape
		mass    float64
		inertia mgl64.Vec3
	}{
		{
			name:    "sphere",
			shape:   NewSphere(0.1),
			mass:    1000 * 4. / 3. * math.Pi * 1e-3,
			inertia: mgl64.Vec3{1, 1, 1}.Mul(0.4 * 1000 * 4. / 3. * math.Pi * 1e-3 * 0.01),
		},
		{
			name:  "ellipsoid",
			shape: NewEllipsoid(mgl64.Vec3{1, 2, 3}),
			mass:  1000 * 4. / 3. * math.Pi * 6,
			inertia: mgl64.Vec3{4 + 9, 1 + 9, 1 + 4}.Mul(
				1000 * 4. / 3. * math.Pi * 6 / 5),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := MakeParticle(tt.shape, mat, false)
			if err != nil {
				t.Fatal(err)
			}
			n, err := p.Node()
			if err != nil {
				t.Fatal(err)
			}
			d := n.Dem()
			if !near(d.Mass, tt.mass, 1e-12) {
				t.Errorf("mass = %g, want %g", d.Mass, tt.mass)
			}
			for i := 0; i < 3; i++ {
				if !near(d.Inertia[i], tt.inertia[i], 1e-12) {
					t.Errorf("inertia[%d] = %g, want %g", i, d.Inertia[i], tt.inertia[i])
				}
			}
			if !d.HasParRef(p) || len(d.ParRef()) != 1 {
				t.Error("node must back-reference its particle exactly once")
			}
			if p.ID() != NoID {
				t.Errorf("new particle has id %d", p.ID())
			}
		})
	}
}

func TestCapsuleMassInertia(t *testing.T) {
	c := NewCapsule(1, 2)
	p, err := MakeParticle(c, NewMaterial(1, 0), false)
	if err != nil {
		t.Fatal(err)
	}
	d := p.Nodes()[0].Dem()
	want := math.Pi*2 + 4./3.*math.Pi
	if !near(d.Mass, want, 1e-12) || !near(c.Volume(), want, 1e-12) {
		t.Errorf("mass = %g, volume = %g, want %g", d.Mass, c.Volume(), want)
	}
	if !(d.Inertia[1] > d.Inertia[0]) || d.Inertia[1] != d.Inertia[2] {
		t.Errorf("capsule along x must be axisymmetric and slender, got %v", d.Inertia)
	}
	if !c.IsInside(mgl64.Vec3{1.9, 0, 0}) || c.IsInside(mgl64.Vec3{2.1, 0, 0}) {
		t.Error("IsInside does not respect the hemispherical caps")
	}
	box := c.AlignedBox()
	if !near(box.Min[0], -2, 1e-12) || !near(box.Max[1], 1, 1e-12) {
		t.Errorf("unexpected box %v", box)
	}
}

func TestMakeParticleFixed(t *testing.T) {
	f := NewFacet(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 0, 0}, mgl64.Vec3{0, 1, 0}, 0)
	p, err := MakeParticle(f, NewMaterial(1000, 1e7), true)
	if err != nil {
		t.Fatal(err)
	}
	for i, n := range p.Nodes() {
		if !n.Dem().IsBlockedAll() {
			t.Errorf("node %d not fixed", i)
		}
		if n.Dem().Mass != 0 {
			t.Errorf("facet node %d has mass %g", i, n.Dem().Mass)
		}
	}
	if _, err := p.Node(); !errors.Is(err, dynamo.ErrPrecondition) {
		t.Errorf("multi-node particle must reject Node(), got %v", err)
	}
	if nrm := f.Normal(); !near(nrm[2], 1, 1e-12) {
		t.Errorf("normal = %v", nrm)
	}
}

func TestMakeParticleRollback(t *testing.T) {
	mat := NewMaterial(1000, 1e7)
	p1, err := MakeParticle(NewSphere(1), mat, false)
	if err != nil {
		t.Fatal(err)
	}
	shared := p1.Nodes()[0]

	s := NewSphere(1)
	s.SetNodes([]*Node{shared})
	_, err = MakeParticle(s, mat, false)
	if !errors.Is(err, dynamo.ErrUnsupported) {
		t.Fatalf("lumping a shared node must be unsupported, got %v", err)
	}
	if len(shared.Dem().ParRef()) != 1 {
		t.Errorf("failed MakeParticle left %d back-references", len(shared.Dem().ParRef()))
	}

	fixed := NewSphere(2)
	fixed.SetNodes([]*Node{shared})
	_, err = MakeParticle(fixed, mat, true)
	if !errors.Is(err, dynamo.ErrUnsupported) {
		t.Fatalf("fixed particle on a shared node: got %v", err)
	}
	if b := shared.Dem().Blocked(); b != "" {
		t.Errorf("failed fixed MakeParticle left DOFs %q blocked", b)
	}
	if len(shared.Dem().ParRef()) != 1 || shared.Dem().ParRef()[0] != p1 {
		t.Errorf("back-references changed: %v", shared.Dem().ParRef())
	}
	if got := fixed.Nodes(); len(got) != 1 || got[0] != shared {
		t.Errorf("shape nodes changed to %v", got)
	}

	bare := NewSphere(1)
	_, err = MakeParticle(bare, NewMaterial(1000, 1e7), true)
	if err != nil {
		t.Fatal(err)
	}
	if !bare.Nodes()[0].Dem().IsBlockedAll() {
		t.Error("fixed particle must block every DOF")
	}
}

func TestUpdateMassInertiaErrors(t *testing.T) {
	s := NewSphere(1)
	if err := UpdateMassInertia(s, 1); !errors.Is(err, dynamo.ErrUnsupported) {
		t.Errorf("shape without nodes: got %v", err)
	}
	f := NewFacet(mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}, mgl64.Vec3{0, 1, 0}, 0)
	if _, err := f.LumpMassInertia(f.Nodes()[0], 1); !errors.Is(err, dynamo.ErrUnsupported) {
		t.Errorf("facet lumping: got %v", err)
	}
	n := NewNode()
	if _, err := NewSphere(1).LumpMassInertia(n, 1); !errors.Is(err, dynamo.ErrInvariant) {
		t.Errorf("lumping a foreign node: got %v", err)
	}
}

func TestConsolidateMassInertia(t *testing.T) {
	mat := NewMaterial(1, 0)
	n := NewNode()
	n.SetDem(NewDemData())

	a := NewEllipsoid(mgl64.Vec3{1, 2, 3})
	a.SetNodes([]*Node{n})
	b := NewSphere(1)
	b.SetNodes([]*Node{n})
	pa := &Particle{Shape: a, Material: mat, id: NoID}
	pb := &Particle{Shape: b, Material: mat, id: NoID}
	n.Dem().AddParRef(pa)
	n.Dem().AddParRef(pb)

	if err := ConsolidateMassInertia(n); err != nil {
		t.Fatal(err)
	}
	want := a.Volume() + b.Volume()
	if !near(n.Dem().Mass, want, 1e-12) {
		t.Errorf("mass = %g, want %g", n.Dem().Mass, want)
	}
	la, _ := a.LumpMassInertia(n, 1)
	lb, _ := b.LumpMassInertia(n, 1)
	sum := la.Inertia.Diag().Add(lb.Inertia.Diag())
	for i := 0; i < 3; i++ {
		if !near(n.Dem().Inertia[i], sum[i], 1e-12) {
			t.Errorf("inertia[%d] = %g, want %g", i, n.Dem().Inertia[i], sum[i])
		}
	}
}

// tiltedBody lumps a fixed tensor given in a frame rotated by tilt.
type tiltedBody struct {
	shapeNodes
	tilt      mgl64.Quat
	moments   mgl64.Vec3
	canRotate bool
}

func (b *tiltedBody) Kind() ShapeKind      { return KindEllipsoid }
func (b *tiltedBody) NumNodes() int        { return 1 }
func (b *tiltedBody) Volume() float64      { return 1 }
func (b *tiltedBody) EquivRadius() float64 { return 1 }
func (b *tiltedBody) ApplyScale(float64)   {}
func (b *tiltedBody) IsInside(mgl64.Vec3) bool {
	return false
}
func (b *tiltedBody) AlignedBox() dynamo.AlignedBox { return dynamo.AlignedBox{} }

func (b *tiltedBody) LumpMassInertia(n *Node, density float64) (Lump, error) {
	return Lump{
		Mass:      density,
		Inertia:   dynamo.InertiaRotate(mgl64.Diag3(b.moments), b.tilt),
		CanRotate: b.canRotate,
	}, nil
}

func TestConsolidateMassInertiaRotates(t *testing.T) {
	ori0 := mgl64.QuatRotate(0.4, mgl64.Vec3{1, 0, 0})
	tilt := mgl64.QuatRotate(0.7, mgl64.Vec3{1, 1, 0}.Normalize())
	n := NewNode()
	n.Ori = ori0
	n.SetDem(NewDemData())
	b := &tiltedBody{tilt: tilt, moments: mgl64.Vec3{3, 1, 2}, canRotate: true}
	b.SetNodes([]*Node{n})
	n.Dem().AddParRef(&Particle{Shape: b, Material: NewMaterial(5, 0), id: NoID})

	local := dynamo.InertiaRotate(mgl64.Diag3(b.moments), tilt)
	if dynamo.IsDiagonal(local) {
		t.Fatal("test tensor should not be diagonal")
	}
	want := dynamo.InertiaRotate(local, ori0)
	n.Dem().AngMom = mgl64.Vec3{1, 2, 3}

	if err := ConsolidateMassInertia(n); err != nil {
		t.Fatal(err)
	}
	d := n.Dem()
	if !near(d.Mass, 5, 1e-12) {
		t.Errorf("mass = %g, want 5", d.Mass)
	}
	for i, m := range []float64{1, 2, 3} {
		if !near(d.Inertia[i], m, 1e-9) {
			t.Errorf("moment %d = %g, want %g", i, d.Inertia[i], m)
		}
	}
	got := dynamo.InertiaRotate(mgl64.Diag3(d.Inertia), n.Ori)
	for i := range got {
		if !near(got[i], want[i], 1e-9) {
			t.Errorf("global tensor entry %d = %g, want %g", i, got[i], want[i])
		}
	}
	if d.AngMomValid() {
		t.Error("angular momentum must be invalidated after re-orienting the node")
	}
}

func TestConsolidateMassInertiaRefusesRotation(t *testing.T) {
	n := NewNode()
	n.SetDem(NewDemData())
	free := &tiltedBody{tilt: mgl64.QuatIdent(), moments: mgl64.Vec3{1, 1, 1}, canRotate: true}
	pinned := &tiltedBody{tilt: mgl64.QuatRotate(0.5, mgl64.Vec3{0, 0, 1}), moments: mgl64.Vec3{1, 2, 3}}
	for _, b := range []*tiltedBody{free, pinned} {
		b.SetNodes([]*Node{n})
		n.Dem().AddParRef(&Particle{Shape: b, Material: NewMaterial(1, 0), id: NoID})
	}

	err := ConsolidateMassInertia(n)
	if !errors.Is(err, dynamo.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if n.Ori != mgl64.QuatIdent() {
		t.Errorf("orientation changed to %v", n.Ori)
	}
}

func TestShapeScale(t *testing.T) {
	e := NewEllipsoid(mgl64.Vec3{1, 1, 2})
	e.SetNodes([]*Node{NewNodeAt(mgl64.Vec3{1, 0, 0})})
	e.ApplyScale(2)
	if e.SemiAxes != (mgl64.Vec3{2, 2, 4}) {
		t.Errorf("semi-axes = %v", e.SemiAxes)
	}
	if !e.IsInside(mgl64.Vec3{1, 0, 3.9}) || e.IsInside(mgl64.Vec3{1, 0, 4.1}) {
		t.Error("IsInside wrong after scaling")
	}

	f := NewFacet(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{3, 0, 0}, mgl64.Vec3{0, 3, 0}, 0.1)
	f.ApplyScale(2)
	if v := f.Nodes()[1].Pos; !near(v[0], 5, 1e-12) || !near(v[1], -1, 1e-12) {
		t.Errorf("scaled vertex = %v, want (5,-1,0)", v)
	}
}
