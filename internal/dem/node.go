package dem

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Node is a spatial anchor shared by every particle whose shape references it.
// It carries at most one DemData block.
type Node struct {
	Pos mgl64.Vec3
	Ori mgl64.Quat

	dem *DemData
}

// NewNode returns a node at the origin with identity orientation and no
// dynamic state.
func NewNode() *Node {
	return &Node{Ori: mgl64.QuatIdent()}
}

// NewNodeAt returns a node at pos with identity orientation.
func NewNodeAt(pos mgl64.Vec3) *Node {
	return &Node{Pos: pos, Ori: mgl64.QuatIdent()}
}

// Dem returns the attached dynamic state, or nil.
func (n *Node) Dem() *DemData { return n.dem }

// HasDem reports whether dynamic state is attached.
func (n *Node) HasDem() bool { return n.dem != nil }

// SetDem attaches d, replacing any previous state.
func (n *Node) SetDem(d *DemData) { n.dem = d }

// ToLocal expresses global point pt in the node's frame.
func (n *Node) ToLocal(pt mgl64.Vec3) mgl64.Vec3 {
	return n.Ori.Conjugate().Rotate(pt.Sub(n.Pos))
}

// ToGlobal expresses local point pt in global coordinates.
func (n *Node) ToGlobal(pt mgl64.Vec3) mgl64.Vec3 {
	return n.Pos.Add(n.Ori.Rotate(pt))
}

func (n *Node) String() string {
	if n == nil {
		return "<Node nil>"
	}
	return fmt.Sprintf("<Node @ %p, pos=(%.6g,%.6g,%.6g)>", n, n.Pos[0], n.Pos[1], n.Pos[2])
}

// clone deep-copies the node and its dynamic state. Back-references are not
// copied and the copy is not registered in any field.
func (n *Node) clone() *Node {
	c := &Node{Pos: n.Pos, Ori: n.Ori}
	if n.dem != nil {
		d := *n.dem
		d.parRef = nil
		d.master = nil
		d.LinIx = -1
		if n.dem.clump != nil {
			cd := *n.dem.clump
			d.clump = &cd
		}
		c.dem = &d
	}
	return c
}
