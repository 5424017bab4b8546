package dem

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dynamo"
)

// ShapeKind tags the concrete geometry behind a Shape.
type ShapeKind int

const (
	KindSphere ShapeKind = iota
	KindEllipsoid
	KindCapsule
	KindFacet
)

func (k ShapeKind) String() string {
	switch k {
	case KindSphere:
		return "Sphere"
	case KindEllipsoid:
		return "Ellipsoid"
	case KindCapsule:
		return "Capsule"
	case KindFacet:
		return "Facet"
	}
	return fmt.Sprintf("ShapeKind(%d)", int(k))
}

// Lump is the mass and inertia contribution of a shape to one node.
// Inertia is expressed in the node's local frame.
type Lump struct {
	Mass    float64
	Inertia mgl64.Mat3
	// CanRotate is false when the shape geometry is tied to the node's
	// orientation, so the node may not be re-oriented to diagonalize inertia.
	CanRotate bool
}

// Shape is the geometry of a particle, bound to an ordered list of nodes.
type Shape interface {
	Kind() ShapeKind
	// Nodes returns the shape's node list; callers may replace elements but
	// not change its length.
	Nodes() []*Node
	SetNodes(nodes []*Node)
	// NumNodes is the node count required by this shape kind.
	NumNodes() int
	LumpMassInertia(n *Node, density float64) (Lump, error)
	IsInside(pt mgl64.Vec3) bool
	AlignedBox() dynamo.AlignedBox
	ApplyScale(s float64)
	Volume() float64
	EquivRadius() float64
}

// MassInertiaUpdater lets a shape replace the default single-node update
// performed by UpdateMassInertia.
type MassInertiaUpdater interface {
	UpdateMassInertia(density float64) error
}

// NumNodesOk reports whether the shape carries the expected number of nodes.
func NumNodesOk(s Shape) bool {
	return len(s.Nodes()) == s.NumNodes()
}

// AvgNodePos returns the mean position of the shape's nodes.
func AvgNodePos(s Shape) mgl64.Vec3 {
	nodes := s.Nodes()
	if len(nodes) == 1 {
		return nodes[0].Pos
	}
	var sum mgl64.Vec3
	for _, n := range nodes {
		sum = sum.Add(n.Pos)
	}
	return sum.Mul(1 / float64(len(nodes)))
}

func shapeName(s Shape) string {
	return fmt.Sprintf("%s@%p", s.Kind(), s)
}

// shapeNodes implements node storage for concrete shapes.
type shapeNodes struct {
	nodes []*Node
}

func (b *shapeNodes) Nodes() []*Node { return b.nodes }

func (b *shapeNodes) SetNodes(nodes []*Node) { b.nodes = nodes }

func (b *shapeNodes) hasNode(n *Node) bool {
	for _, m := range b.nodes {
		if m == n {
			return true
		}
	}
	return false
}

// center returns the position and orientation of the first node, or the
// origin if the shape has no nodes yet.
func (b *shapeNodes) center() (mgl64.Vec3, mgl64.Quat) {
	if len(b.nodes) == 0 || b.nodes[0] == nil {
		return mgl64.Vec3{}, mgl64.QuatIdent()
	}
	return b.nodes[0].Pos, b.nodes[0].Ori
}

// UpdateMassInertia assigns mass and inertia of the shape's only node from
// its own lumped contribution. Nodes shared with other particles and
// multi-node shapes are rejected.
func UpdateMassInertia(s Shape, density float64) error {
	if u, ok := s.(MassInertiaUpdater); ok {
		return u.UpdateMassInertia(density)
	}
	nodes := s.Nodes()
	if len(nodes) != 1 || nodes[0] == nil || !nodes[0].HasDem() {
		return dynamo.Errorf("UpdateMassInertia", dynamo.ErrUnsupported, "%s: only uninodal shapes with DemData are supported (%d nodes)", shapeName(s), len(nodes))
	}
	dyn := nodes[0].Dem()
	// the back-reference may not be set yet, so zero is fine too
	if len(dyn.parRef) > 1 {
		return dynamo.Errorf("UpdateMassInertia", dynamo.ErrUnsupported, "%s: node is shared by %d particles; use ConsolidateMassInertia", shapeName(s), len(dyn.parRef))
	}
	lump, err := s.LumpMassInertia(nodes[0], density)
	if err != nil {
		return err
	}
	if !dynamo.IsDiagonal(lump.Inertia) {
		return dynamo.Errorf("UpdateMassInertia", dynamo.ErrInvariant, "inertia tensor is not diagonal for uninodal shape %s", shapeName(s))
	}
	dyn.Inertia = lump.Inertia.Diag()
	dyn.Mass = lump.Mass
	return nil
}

// ConsolidateMassInertia sums contributions of every particle attached to n.
// A non-diagonal sum rotates the node to its principal axes, which is only
// permitted when no contributing shape forbids it.
func ConsolidateMassInertia(n *Node) error {
	dyn := n.Dem()
	if dyn == nil {
		return dynamo.Errorf("ConsolidateMassInertia", dynamo.ErrPrecondition, "%s has no DemData", n)
	}
	var inertia mgl64.Mat3
	mass := 0.0
	rotateOk := true
	for _, p := range dyn.parRef {
		if p.Shape == nil || p.Material == nil {
			continue
		}
		lump, err := p.Shape.LumpMassInertia(n, p.Material.Density)
		if err != nil {
			return err
		}
		mass += lump.Mass
		inertia = inertia.Add(lump.Inertia)
		if !lump.CanRotate {
			rotateOk = false
		}
	}
	if dynamo.IsDiagonal(inertia) {
		dyn.Mass = mass
		dyn.Inertia = inertia.Diag()
		return nil
	}
	if !rotateOk {
		return dynamo.Errorf("ConsolidateMassInertia", dynamo.ErrUnsupported, "inertia of %d particles attached to %s is not diagonal, and at least one particle refused to change node orientation", len(dyn.parRef), n)
	}
	rot, moments, err := dynamo.DiagonalizeSym(inertia)
	if err != nil {
		return err
	}
	n.Ori = n.Ori.Mul(rot).Normalize()
	dyn.Inertia = moments
	dyn.Mass = mass
	dyn.AngMom = dynamo.NaNVec3()
	return nil
}

func lumpNodeCheck(s Shape, b *shapeNodes, n *Node) error {
	if !b.hasNode(n) {
		return dynamo.Errorf("LumpMassInertia", dynamo.ErrInvariant, "%s is not a node of %s", n, shapeName(s))
	}
	return nil
}
