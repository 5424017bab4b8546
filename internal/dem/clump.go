package dem

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dynamo"
)

// ClumpData is the composite payload of a clump's master node: member nodes
// and their pose relative to the master frame, captured when clumped.
type ClumpData struct {
	Nodes    []*Node
	RelPos   []mgl64.Vec3
	RelOri   []mgl64.Quat
	EquivRad float64
}

// NewClumpDemData returns DemData for a clump master node.
func NewClumpDemData() *DemData {
	d := NewDemData()
	d.clump = &ClumpData{EquivRad: math.NaN()}
	d.setClump()
	return d
}

// Consistent reports whether the member lists have equal length.
func (c *ClumpData) Consistent() bool {
	return len(c.Nodes) == len(c.RelPos) && len(c.Nodes) == len(c.RelOri)
}

func equivRadius(inertia mgl64.Vec3, mass float64) float64 {
	return (math.Sqrt(inertia[0]/mass) + math.Sqrt(inertia[1]/mass) + math.Sqrt(inertia[2]/mass)) / 3
}

// MakeClump aggregates members into a rigid body and returns its master
// node. central, if given, is used as the master node; its position is
// required when members carry no mass. Members whose volumes overlap
// (intersecting) are not supported. Nothing is modified unless the call
// succeeds.
func MakeClump(members []*Node, central *Node, intersecting bool) (*Node, error) {
	const op = "MakeClump"
	if len(members) == 0 {
		return nil, dynamo.Errorf(op, dynamo.ErrValidation, "0 nodes")
	}
	seen := make(map[*Node]bool, len(members))
	for _, n := range members {
		if n == nil || !n.HasDem() {
			return nil, dynamo.Errorf(op, dynamo.ErrValidation, "member %s has no DemData", n)
		}
		if seen[n] {
			return nil, dynamo.Errorf(op, dynamo.ErrValidation, "member %s given twice", n)
		}
		if n == central {
			return nil, dynamo.Errorf(op, dynamo.ErrValidation, "central node %s is also a member", n)
		}
		seen[n] = true
		d := n.Dem()
		if d.IsClumped() {
			return nil, dynamo.Errorf(op, dynamo.ErrPrecondition, "node %s is already clumped", n)
		}
		if d.IsClump() {
			return nil, dynamo.Errorf(op, dynamo.ErrUnsupported, "node %s is a clump; nested clumps are not supported", n)
		}
	}
	if central != nil && central.HasDem() {
		d := central.Dem()
		if d.clump == nil {
			return nil, dynamo.Errorf(op, dynamo.ErrValidation, "central node %s has DemData attached, but it must carry ClumpData instead", central)
		}
		if len(d.clump.Nodes) > 0 {
			return nil, dynamo.Errorf(op, dynamo.ErrPrecondition, "central node %s already has %d members", central, len(d.clump.Nodes))
		}
	}

	if len(members) == 1 {
		cNode, dyn := clumpMaster(central)
		m := members[0]
		md := m.Dem()
		cNode.Pos, cNode.Ori = m.Pos, m.Ori
		dyn.Mass = md.Mass
		dyn.Inertia = md.Inertia
		dyn.clump.EquivRad = equivRadius(dyn.Inertia, dyn.Mass)
		dyn.clump.Nodes = append(dyn.clump.Nodes, m)
		dyn.clump.RelPos = append(dyn.clump.RelPos, mgl64.Vec3{})
		dyn.clump.RelOri = append(dyn.clump.RelOri, mgl64.QuatIdent())
		md.setClumped(cNode)
		return cNode, nil
	}

	if intersecting {
		return nil, dynamo.Errorf(op, dynamo.ErrUnsupported, "self-intersecting clumps are not implemented; integrate the geometry with clump.SphereClumpGeom instead")
	}
	var (
		mass    float64
		sg      mgl64.Vec3
		ig      mgl64.Mat3
		pos     mgl64.Vec3
		ori     mgl64.Quat
		inertia mgl64.Vec3
	)
	for _, n := range members {
		d := n.Dem()
		if len(d.parRef) == 0 {
			return nil, dynamo.Errorf(op, dynamo.ErrPrecondition, "node %s does not belong to any particle", n)
		}
		mass += d.Mass
		sg = sg.Add(n.Pos.Mul(d.Mass))
		global := dynamo.InertiaRotate(mgl64.Diag3(d.Inertia), n.Ori)
		ig = ig.Add(dynamo.InertiaTranslate(global, d.Mass, n.Pos))
	}
	massive := mass > 0
	if massive {
		var err error
		pos, ori, inertia, err = dynamo.PrincipalAxes(mass, sg, ig)
		if err != nil {
			return nil, err
		}
	} else if central == nil {
		return nil, dynamo.Errorf(op, dynamo.ErrPrecondition, "no nodes with mass, therefore the central node must be given; its position is used instead")
	}

	userState := central != nil && central.HasDem()
	cNode, dyn := clumpMaster(central)
	if massive {
		cNode.Pos, cNode.Ori = pos, ori
		dyn.Mass = mass
		dyn.Inertia = inertia
		dyn.clump.EquivRad = equivRadius(inertia, mass)
	} else {
		// mass and inertia of user-provided state are kept
		dyn.clump.EquivRad = math.NaN()
		if !userState {
			dyn.SetBlockedAll()
		}
	}
	dyn.AngMom = dynamo.NaNVec3()

	inv := cNode.Ori.Conjugate()
	cd := dyn.clump
	cd.Nodes = make([]*Node, 0, len(members))
	cd.RelPos = make([]mgl64.Vec3, 0, len(members))
	cd.RelOri = make([]mgl64.Quat, 0, len(members))
	for _, n := range members {
		cd.Nodes = append(cd.Nodes, n)
		cd.RelPos = append(cd.RelPos, inv.Rotate(n.Pos.Sub(cNode.Pos)))
		cd.RelOri = append(cd.RelOri, inv.Mul(n.Ori).Normalize())
		n.Dem().setClumped(cNode)
	}
	return cNode, nil
}

// clumpMaster returns central (or a new node) prepared to carry ClumpData.
func clumpMaster(central *Node) (*Node, *DemData) {
	if central == nil {
		central = NewNode()
	}
	if !central.HasDem() {
		central.SetDem(NewClumpDemData())
	}
	d := central.Dem()
	d.setClump()
	return central, d
}

func clumpOf(op string, master *Node) (*ClumpData, error) {
	if master == nil || !master.HasDem() {
		return nil, dynamo.Errorf(op, dynamo.ErrValidation, "%s has no DemData", master)
	}
	d := master.Dem()
	if d.clump == nil {
		return nil, dynamo.Errorf(op, dynamo.ErrValidation, "%s is not a clump master node", master)
	}
	if !d.IsClump() {
		return nil, dynamo.Errorf(op, dynamo.ErrInvariant, "%s carries ClumpData but is not flagged as clump", master)
	}
	if !d.clump.Consistent() {
		return nil, dynamo.Errorf(op, dynamo.ErrInvariant, "%s: %d members, %d relative positions, %d relative orientations", master, len(d.clump.Nodes), len(d.clump.RelPos), len(d.clump.RelOri))
	}
	return d.clump, nil
}

// ApplyToMembers moves members rigidly with the master node and assigns
// their velocities; with reset, member force and torque are zeroed.
func ApplyToMembers(master *Node, reset bool) error {
	cd, err := clumpOf("ApplyToMembers", master)
	if err != nil {
		return err
	}
	md := master.Dem()
	for i, n := range cd.Nodes {
		d := n.Dem()
		n.Pos = master.Pos.Add(master.Ori.Rotate(cd.RelPos[i]))
		n.Ori = master.Ori.Mul(cd.RelOri[i]).Normalize()
		d.Vel = md.Vel.Add(md.AngVel.Cross(n.Pos.Sub(master.Pos)))
		d.SetAngVel(md.AngVel)
		if reset {
			d.Force = mgl64.Vec3{}
			d.Torque = mgl64.Vec3{}
		}
	}
	return nil
}

// ForceTorqueFromMembers sums member loads, reduced to the master node.
func ForceTorqueFromMembers(master *Node) (mgl64.Vec3, mgl64.Vec3, error) {
	cd, err := clumpOf("ForceTorqueFromMembers", master)
	if err != nil {
		return mgl64.Vec3{}, mgl64.Vec3{}, err
	}
	var f, t mgl64.Vec3
	for _, n := range cd.Nodes {
		d := n.Dem()
		f = f.Add(d.Force)
		t = t.Add(d.Torque).Add(n.Pos.Sub(master.Pos).Cross(d.Force))
	}
	return f, t, nil
}

// ResetForceTorque zeroes force and torque of every member.
func ResetForceTorque(master *Node) error {
	cd, err := clumpOf("ResetForceTorque", master)
	if err != nil {
		return err
	}
	for _, n := range cd.Nodes {
		d := n.Dem()
		d.Force = mgl64.Vec3{}
		d.Torque = mgl64.Vec3{}
	}
	return nil
}

// AssembleClump builds a clump master node from precomputed mass
// properties: members are placed at pos + ori·relPos[i] and clumped. It is
// used when clump inertia comes from integrating the joint geometry rather
// than from member masses.
func AssembleClump(pos mgl64.Vec3, ori mgl64.Quat, members []*Node, relPos []mgl64.Vec3, relOri []mgl64.Quat, mass float64, inertia mgl64.Vec3) (*Node, error) {
	const op = "AssembleClump"
	if len(members) == 0 || len(members) != len(relPos) || len(members) != len(relOri) {
		return nil, dynamo.Errorf(op, dynamo.ErrValidation, "%d members, %d relative positions, %d relative orientations", len(members), len(relPos), len(relOri))
	}
	seen := make(map[*Node]bool, len(members))
	for _, n := range members {
		if n == nil || !n.HasDem() {
			return nil, dynamo.Errorf(op, dynamo.ErrValidation, "member %s has no DemData", n)
		}
		if seen[n] || n.Dem().IsClumped() || n.Dem().IsClump() {
			return nil, dynamo.Errorf(op, dynamo.ErrPrecondition, "member %s is repeated, clumped or a clump", n)
		}
		seen[n] = true
	}
	master := &Node{Pos: pos, Ori: ori.Normalize()}
	d := NewClumpDemData()
	master.SetDem(d)
	d.Mass = mass
	d.Inertia = inertia
	d.clump.Nodes = append([]*Node(nil), members...)
	d.clump.RelPos = append([]mgl64.Vec3(nil), relPos...)
	d.clump.RelOri = append([]mgl64.Quat(nil), relOri...)
	if mass > 0 {
		d.clump.EquivRad = equivRadius(inertia, mass)
	}
	for _, n := range members {
		n.Dem().setClumped(master)
	}
	if err := ApplyToMembers(master, true); err != nil {
		return nil, err
	}
	return master, nil
}
