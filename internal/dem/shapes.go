package dem

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dynamo"
)

// Sphere is a ball of Radius centered at its single node.
type Sphere struct {
	shapeNodes
	Radius float64
}

func NewSphere(radius float64) *Sphere { return &Sphere{Radius: radius} }

func (s *Sphere) Kind() ShapeKind      { return KindSphere }
func (s *Sphere) NumNodes() int        { return 1 }
func (s *Sphere) Volume() float64      { return 4. / 3. * math.Pi * s.Radius * s.Radius * s.Radius }
func (s *Sphere) EquivRadius() float64 { return s.Radius }
func (s *Sphere) ApplyScale(f float64) { s.Radius *= f }

func (s *Sphere) LumpMassInertia(n *Node, density float64) (Lump, error) {
	if err := lumpNodeCheck(s, &s.shapeNodes, n); err != nil {
		return Lump{}, err
	}
	m := density * s.Volume()
	i := 2. / 5. * m * s.Radius * s.Radius
	return Lump{Mass: m, Inertia: mgl64.Diag3(mgl64.Vec3{i, i, i}), CanRotate: true}, nil
}

func (s *Sphere) IsInside(pt mgl64.Vec3) bool {
	c, _ := s.center()
	d := pt.Sub(c)
	return d.Dot(d) < s.Radius*s.Radius
}

func (s *Sphere) AlignedBox() dynamo.AlignedBox {
	c, _ := s.center()
	r := mgl64.Vec3{s.Radius, s.Radius, s.Radius}
	return dynamo.AlignedBox{Min: c.Sub(r), Max: c.Add(r)}
}

// Ellipsoid has semi-axes along the local axes of its node.
type Ellipsoid struct {
	shapeNodes
	SemiAxes mgl64.Vec3
}

func NewEllipsoid(semiAxes mgl64.Vec3) *Ellipsoid { return &Ellipsoid{SemiAxes: semiAxes} }

func (e *Ellipsoid) Kind() ShapeKind { return KindEllipsoid }
func (e *Ellipsoid) NumNodes() int   { return 1 }
func (e *Ellipsoid) Volume() float64 {
	return 4. / 3. * math.Pi * e.SemiAxes[0] * e.SemiAxes[1] * e.SemiAxes[2]
}
func (e *Ellipsoid) EquivRadius() float64 { return math.Cbrt(e.SemiAxes[0] * e.SemiAxes[1] * e.SemiAxes[2]) }
func (e *Ellipsoid) ApplyScale(f float64) { e.SemiAxes = e.SemiAxes.Mul(f) }

func (e *Ellipsoid) LumpMassInertia(n *Node, density float64) (Lump, error) {
	if err := lumpNodeCheck(e, &e.shapeNodes, n); err != nil {
		return Lump{}, err
	}
	m := density * e.Volume()
	a, b, c := e.SemiAxes[0]*e.SemiAxes[0], e.SemiAxes[1]*e.SemiAxes[1], e.SemiAxes[2]*e.SemiAxes[2]
	i := mgl64.Vec3{b + c, a + c, a + b}.Mul(m / 5.)
	return Lump{Mass: m, Inertia: mgl64.Diag3(i)}, nil
}

func (e *Ellipsoid) IsInside(pt mgl64.Vec3) bool {
	c, q := e.center()
	l := q.Conjugate().Rotate(pt.Sub(c))
	sum := 0.0
	for i := 0; i < 3; i++ {
		sum += (l[i] / e.SemiAxes[i]) * (l[i] / e.SemiAxes[i])
	}
	return sum < 1
}

func (e *Ellipsoid) AlignedBox() dynamo.AlignedBox {
	c, q := e.center()
	r := dynamo.RotationMatrix(q)
	var half mgl64.Vec3
	for i := 0; i < 3; i++ {
		s := 0.0
		for j := 0; j < 3; j++ {
			v := r.At(i, j) * e.SemiAxes[j]
			s += v * v
		}
		half[i] = math.Sqrt(s)
	}
	return dynamo.AlignedBox{Min: c.Sub(half), Max: c.Add(half)}
}

// Capsule is a cylinder of length Shaft along the local x-axis capped by two
// hemispheres of Radius.
type Capsule struct {
	shapeNodes
	Radius float64
	Shaft  float64
}

func NewCapsule(radius, shaft float64) *Capsule { return &Capsule{Radius: radius, Shaft: shaft} }

func (c *Capsule) Kind() ShapeKind { return KindCapsule }
func (c *Capsule) NumNodes() int   { return 1 }
func (c *Capsule) Volume() float64 {
	r := c.Radius
	return math.Pi*r*r*c.Shaft + 4./3.*math.Pi*r*r*r
}
func (c *Capsule) EquivRadius() float64 { return math.Cbrt(c.Volume() * 3 / (4 * math.Pi)) }
func (c *Capsule) ApplyScale(f float64) {
	c.Radius *= f
	c.Shaft *= f
}

func (c *Capsule) LumpMassInertia(n *Node, density float64) (Lump, error) {
	if err := lumpNodeCheck(c, &c.shapeNodes, n); err != nil {
		return Lump{}, err
	}
	r, l := c.Radius, c.Shaft
	mCyl := density * math.Pi * r * r * l
	mSph := density * 4. / 3. * math.Pi * r * r * r
	ix := mCyl*r*r/2 + mSph*2*r*r/5
	// hemispheres shifted to the shaft ends by the parallel-axis theorem
	iy := mCyl*(r*r/4+l*l/12) + mSph*(2*r*r/5+l*l/4+3*l*r/8)
	return Lump{Mass: mCyl + mSph, Inertia: mgl64.Diag3(mgl64.Vec3{ix, iy, iy})}, nil
}

func (c *Capsule) endpoints() (mgl64.Vec3, mgl64.Vec3) {
	pos, q := c.center()
	axis := q.Rotate(mgl64.Vec3{c.Shaft / 2, 0, 0})
	return pos.Sub(axis), pos.Add(axis)
}

func (c *Capsule) IsInside(pt mgl64.Vec3) bool {
	pos, q := c.center()
	l := q.Conjugate().Rotate(pt.Sub(pos))
	l[0] = math.Max(-c.Shaft/2, math.Min(c.Shaft/2, l[0])) - l[0]
	return l.Dot(l) < c.Radius*c.Radius
}

func (c *Capsule) AlignedBox() dynamo.AlignedBox {
	a, b := c.endpoints()
	r := mgl64.Vec3{c.Radius, c.Radius, c.Radius}
	box := dynamo.EmptyBox()
	box.Extend(a.Sub(r))
	box.Extend(a.Add(r))
	box.Extend(b.Sub(r))
	box.Extend(b.Add(r))
	return box
}

// Facet is a triangle spanned by three nodes, optionally with thickness.
// Facets are massless and must be fixed.
type Facet struct {
	shapeNodes
	HalfThick float64
}

// NewFacet returns a facet on three new nodes at the given vertices.
func NewFacet(a, b, c mgl64.Vec3, halfThick float64) *Facet {
	f := &Facet{HalfThick: halfThick}
	f.nodes = []*Node{NewNodeAt(a), NewNodeAt(b), NewNodeAt(c)}
	return f
}

func (f *Facet) Kind() ShapeKind      { return KindFacet }
func (f *Facet) NumNodes() int        { return 3 }
func (f *Facet) Volume() float64      { return 0 }
func (f *Facet) EquivRadius() float64 { return math.NaN() }

// LumpMassInertia is not defined for facets, whose mass would have to be
// distributed over three nodes.
func (f *Facet) LumpMassInertia(n *Node, _ float64) (Lump, error) {
	return Lump{}, dynamo.Errorf("Facet.LumpMassInertia", dynamo.ErrUnsupported, "multi-node mass lumping is not supported (%s)", n)
}

// UpdateMassInertia leaves facet nodes massless.
func (f *Facet) UpdateMassInertia(float64) error {
	if !NumNodesOk(f) {
		return dynamo.Errorf("Facet.UpdateMassInertia", dynamo.ErrValidation, "facet needs 3 nodes, has %d", len(f.nodes))
	}
	return nil
}

// Normal returns the unit normal following the node order.
func (f *Facet) Normal() mgl64.Vec3 {
	a, b, c := f.nodes[0].Pos, f.nodes[1].Pos, f.nodes[2].Pos
	return b.Sub(a).Cross(c.Sub(a)).Normalize()
}

func (f *Facet) IsInside(mgl64.Vec3) bool { return false }

func (f *Facet) AlignedBox() dynamo.AlignedBox {
	box := dynamo.EmptyBox()
	h := mgl64.Vec3{f.HalfThick, f.HalfThick, f.HalfThick}
	for _, n := range f.nodes {
		box.Extend(n.Pos.Sub(h))
		box.Extend(n.Pos.Add(h))
	}
	return box
}

// ApplyScale scales the facet around its centroid.
func (f *Facet) ApplyScale(s float64) {
	c := AvgNodePos(f)
	for _, n := range f.nodes {
		n.Pos = c.Add(n.Pos.Sub(c).Mul(s))
	}
	f.HalfThick *= s
}
