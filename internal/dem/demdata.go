package dem

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dynamo"
)

// Degree-of-freedom bits and state flags.
const (
	DOFX uint8 = 1 << iota
	DOFY
	DOFZ
	DOFRX
	DOFRY
	DOFRZ

	DOFNone     uint8 = 0
	DOFAllTrans       = DOFX | DOFY | DOFZ
	DOFAllRot         = DOFRX | DOFRY | DOFRZ
	DOFAll            = DOFAllTrans | DOFAllRot
	dofChars          = "xyzXYZ"
	flagClumped uint8 = 1 << 6
	flagClump   uint8 = 1 << 7
)

// DemData is the physical state of a node.
type DemData struct {
	Mass    float64
	Inertia mgl64.Vec3 // principal moments in the node's local frame

	Vel    mgl64.Vec3
	AngVel mgl64.Vec3
	// AngMom is derived from AngVel; NaN components mean it must be recomputed.
	AngMom mgl64.Vec3

	Force  mgl64.Vec3
	Torque mgl64.Vec3

	Impose Impose

	// LinIx is the position in Field.Nodes(), or -1 if not registered.
	LinIx int

	flags  uint8
	parRef []*Particle
	master *Node
	clump  *ClumpData
}

// NewDemData returns state for an ordinary node.
func NewDemData() *DemData {
	return &DemData{AngMom: dynamo.NaNVec3(), LinIx: -1}
}

// Blocked DOF handling

// SetBlockedDOF blocks or frees one axis (0..2), translational or rotational.
func (d *DemData) SetBlockedDOF(axis int, rot bool, blocked bool) error {
	if axis < 0 || axis > 2 {
		return dynamo.Errorf("DemData.SetBlockedDOF", dynamo.ErrValidation, "axis must be 0, 1 or 2 (not %d)", axis)
	}
	bit := dofBit(axis, rot)
	if blocked {
		d.flags |= bit
	} else {
		d.flags &^= bit
	}
	return nil
}

// SetBlockedAll blocks all six DOFs.
func (d *DemData) SetBlockedAll() { d.flags |= DOFAll }

// SetBlockedNone frees all six DOFs.
func (d *DemData) SetBlockedNone() { d.flags &^= DOFAll }

func (d *DemData) IsBlockedAll() bool      { return d.flags&DOFAll == DOFAll }
func (d *DemData) IsBlockedNone() bool     { return d.flags&DOFAll == 0 }
func (d *DemData) IsBlockedAllTrans() bool { return d.flags&DOFAllTrans == DOFAllTrans }
func (d *DemData) IsBlockedAllRot() bool   { return d.flags&DOFAllRot == DOFAllRot }

// IsBlockedAxisDOF reports whether the given axis is blocked.
func (d *DemData) IsBlockedAxisDOF(axis int, rot bool) bool {
	if axis < 0 || axis > 2 {
		return false
	}
	return d.flags&dofBit(axis, rot) != 0
}

// BlockedMask returns the 6-bit DOF mask.
func (d *DemData) BlockedMask() uint8 { return d.flags & DOFAll }

// Blocked returns blocked DOFs as a string over "xyzXYZ" (lowercase =
// translation, uppercase = rotation).
func (d *DemData) Blocked() string {
	var b strings.Builder
	for i := 0; i < 6; i++ {
		if d.flags&(1<<i) != 0 {
			b.WriteByte(dofChars[i])
		}
	}
	return b.String()
}

// SetBlocked replaces the DOF mask from its string form.
func (d *DemData) SetBlocked(dofs string) error {
	var mask uint8
	for _, c := range dofs {
		i := strings.IndexRune(dofChars, c)
		if i < 0 {
			return dynamo.Errorf("DemData.SetBlocked", dynamo.ErrValidation, "invalid DOF specification %q in %q, characters must be in {x,y,z,X,Y,Z}", c, dofs)
		}
		mask |= 1 << i
	}
	d.flags = (d.flags &^ DOFAll) | mask
	return nil
}

func dofBit(axis int, rot bool) uint8 {
	if rot {
		return DOFRX << axis
	}
	return DOFX << axis
}

// SetAngVel assigns angular velocity and invalidates the cached angular momentum.
func (d *DemData) SetAngVel(v mgl64.Vec3) {
	d.AngVel = v
	d.AngMom = dynamo.NaNVec3()
}

// AngMomValid reports whether AngMom may be used without recomputation.
func (d *DemData) AngMomValid() bool { return dynamo.IsFinite(d.AngMom) }

// Particle back-references

// AddParRef records that p uses this node. Adding twice is a no-op.
func (d *DemData) AddParRef(p *Particle) {
	for _, q := range d.parRef {
		if q == p {
			return
		}
	}
	d.parRef = append(d.parRef, p)
}

// RemoveParRef drops the back-reference to p and reports whether it existed.
func (d *DemData) RemoveParRef(p *Particle) bool {
	for i, q := range d.parRef {
		if q == p {
			d.parRef = append(d.parRef[:i], d.parRef[i+1:]...)
			return true
		}
	}
	return false
}

// HasParRef reports whether p is back-referenced.
func (d *DemData) HasParRef(p *Particle) bool {
	for _, q := range d.parRef {
		if q == p {
			return true
		}
	}
	return false
}

// ParRef returns the particles using this node. The slice must not be modified.
func (d *DemData) ParRef() []*Particle { return d.parRef }

// Clump relations

// IsClumped reports whether the node is a member of a clump.
func (d *DemData) IsClumped() bool { return d.flags&flagClumped != 0 }

// IsClump reports whether the node is the master node of a clump.
func (d *DemData) IsClump() bool { return d.flags&flagClump != 0 }

// Master returns the clump master node of a clumped node.
func (d *DemData) Master() (*Node, bool) {
	return d.master, d.master != nil
}

// Clump returns the clump payload, or nil if this is plain state.
func (d *DemData) Clump() *ClumpData { return d.clump }

func (d *DemData) setClumped(master *Node) {
	d.master = master
	d.flags |= flagClumped
}

func (d *DemData) setNoClump() {
	d.master = nil
	d.flags &^= flagClumped
}

func (d *DemData) setClump() { d.flags |= flagClump }

// GuessMoving reports whether time integration of the node is meaningful.
func (d *DemData) GuessMoving() bool {
	return (d.Mass != 0 && !d.IsBlockedAll()) || d.Vel != (mgl64.Vec3{}) || d.AngVel != (mgl64.Vec3{}) || d.Impose != nil
}

// KineticEnergy returns translational and/or rotational kinetic energy of n.
func KineticEnergy(n *Node, trans, rot bool) float64 {
	d := n.dem
	if d == nil {
		return 0
	}
	e := 0.0
	if trans {
		e += 0.5 * d.Mass * d.Vel.Dot(d.Vel)
	}
	if rot {
		// ω in the local frame, where inertia is diagonal
		w := n.Ori.Conjugate().Rotate(d.AngVel)
		e += 0.5 * (d.Inertia[0]*w[0]*w[0] + d.Inertia[1]*w[1]*w[1] + d.Inertia[2]*w[2]*w[2])
	}
	return e
}

// AngularMomentum returns the global angular momentum of n, using the cache
// when valid.
func AngularMomentum(n *Node) mgl64.Vec3 {
	d := n.dem
	if d.AngMomValid() {
		return d.AngMom
	}
	w := n.Ori.Conjugate().Rotate(d.AngVel)
	l := mgl64.Vec3{d.Inertia[0] * w[0], d.Inertia[1] * w[1], d.Inertia[2] * w[2]}
	d.AngMom = n.Ori.Rotate(l)
	return d.AngMom
}

// SelfTest checks physical consistency of the state attached to n.
func (d *DemData) SelfTest(n *Node, prefix string) error {
	if n.dem == nil {
		return dynamo.Errorf(prefix, dynamo.ErrInvariant, "node does not have DemData attached")
	}
	if n.dem != d {
		return dynamo.Errorf(prefix, dynamo.ErrInvariant, "node carries different DemData")
	}
	if d.IsClumped() != (d.master != nil) {
		return dynamo.Errorf(prefix, dynamo.ErrInvariant, "clumped=%v but master=%v", d.IsClumped(), d.master)
	}
	if d.IsClump() && d.clump == nil {
		return dynamo.Errorf(prefix, dynamo.ErrInvariant, "clump flag set but no ClumpData")
	}
	if !d.IsBlockedAllTrans() && !d.IsClumped() && !(d.Mass > 0) {
		return dynamo.Errorf(prefix, dynamo.ErrPrecondition, "mass=%g is non-positive, but not all translational DOFs are blocked (and the node is not clumped)", d.Mass)
	}
	for ax := 0; ax < 3; ax++ {
		if !d.IsBlockedAxisDOF(ax, true) && !d.IsClumped() && !(d.Inertia[ax] > 0) {
			return dynamo.Errorf(prefix, dynamo.ErrPrecondition, "inertia[%d]=%g is non-positive, but the rotational DOF is not blocked (and the node is not clumped)", ax, d.Inertia[ax])
		}
	}
	if math.IsNaN(d.Mass) || !dynamo.IsFinite(d.Inertia) {
		return dynamo.Errorf(prefix, dynamo.ErrInvariant, "mass or inertia is NaN")
	}
	return nil
}

func (d *DemData) String() string {
	return fmt.Sprintf("<DemData mass=%g inertia=%v blocked=%q clumped=%v clump=%v linIx=%d>", d.Mass, d.Inertia, d.Blocked(), d.IsClumped(), d.IsClump(), d.LinIx)
}
