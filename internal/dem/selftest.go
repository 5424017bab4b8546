package dem

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dynamo"
)

// SelfTest re-derives every structural and physical invariant of the field
// and returns all violations joined. It does not modify anything.
func (f *Field) SelfTest() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	fail := func(kind error, prefix, format string, args ...any) {
		errs = append(errs, dynamo.Errorf(prefix, kind, format, args...))
	}

	live := 0
	for i, p := range f.particles {
		if p == nil {
			continue
		}
		live++
		pre := fmt.Sprintf("par[%d]", i)
		if p.id != ParticleID(i) {
			fail(dynamo.ErrInvariant, pre, "id=%d, should be %d", p.id, i)
		}
		if p.Shape == nil {
			fail(dynamo.ErrInvariant, pre, "shape is nil")
			continue
		}
		if p.Material == nil {
			fail(dynamo.ErrInvariant, pre, "material is nil")
		} else if !(p.Material.Density > 0) {
			fail(dynamo.ErrInvariant, pre, "material.density=%g, should be positive", p.Material.Density)
		}
		if !NumNodesOk(p.Shape) {
			fail(dynamo.ErrInvariant, pre, "shape has %d nodes, %s needs %d", len(p.Shape.Nodes()), p.Shape.Kind(), p.Shape.NumNodes())
		}
		for j, n := range p.Shape.Nodes() {
			npre := fmt.Sprintf("%s.shape.nodes[%d]", pre, j)
			if n == nil {
				fail(dynamo.ErrInvariant, npre, "node is nil")
				continue
			}
			d := n.Dem()
			if d == nil {
				fail(dynamo.ErrInvariant, npre, "node has no DemData")
				continue
			}
			if !d.HasParRef(p) {
				fail(dynamo.ErrInvariant, npre, "does not back-reference the particle %s it belongs to", p)
			}
			if d.IsClumped() != (d.master != nil) {
				fail(dynamo.ErrInvariant, npre, "clumped=%v but master=%v", d.IsClumped(), d.master)
			}
			if d.master != nil {
				f.checkMasterLocked(npre, n, fail)
			}
			if d.LinIx >= 0 && !f.registeredLocked(n) {
				fail(dynamo.ErrInvariant, npre, "linIx=%d does not point back to the node", d.LinIx)
			}
			if d.LinIx < 0 && !d.IsClumped() && (d.Vel != (mgl64.Vec3{}) || d.AngVel != (mgl64.Vec3{}) || d.Impose != nil) {
				fail(dynamo.ErrPrecondition, npre, "velocity, angular velocity or imposition is set, but has no effect as the node is not in the node array")
			}
		}
		for other, c := range p.contacts {
			if c.linIx < 0 || c.linIx >= len(f.contacts.list) || f.contacts.list[c.linIx] != c {
				fail(dynamo.ErrInvariant, pre, "contact with #%d is not in the contact container", other)
			}
			if o, err := c.Other(p.id); err != nil || o != other {
				fail(dynamo.ErrInvariant, pre, "contact keyed by #%d is %s", other, c)
			}
		}
	}
	if live != f.live {
		fail(dynamo.ErrInvariant, "par", "%d live particles, counter says %d", live, f.live)
	}

	for i, n := range f.nodes {
		pre := fmt.Sprintf("nodes[%d]", i)
		if n == nil {
			fail(dynamo.ErrInvariant, pre, "node is nil, the node array must be contiguous")
			continue
		}
		d := n.Dem()
		if d == nil {
			fail(dynamo.ErrInvariant, pre, "node has no DemData")
			continue
		}
		if d.LinIx != i {
			fail(dynamo.ErrInvariant, pre, "dem.linIx=%d, should be %d", d.LinIx, i)
		}
		if d.IsClump() {
			f.checkClumpLocked(pre, n, fail)
		}
		for j, p := range d.parRef {
			rpre := fmt.Sprintf("%s.dem.parRef[%d]", pre, j)
			if p == nil {
				fail(dynamo.ErrInvariant, rpre, "particle is nil")
				continue
			}
			if p.Shape == nil {
				fail(dynamo.ErrInvariant, rpre, "shape is nil (#%d)", p.id)
				continue
			}
			found := false
			for _, sn := range p.Shape.Nodes() {
				if sn == n {
					found = true
					break
				}
			}
			if !found {
				fail(dynamo.ErrInvariant, rpre, "shape nodes do not contain the node (the node back-references the particle, but the particle does not reference the node)")
			}
			if q, ok := f.particleLocked(p.id); !ok || q != p {
				fail(dynamo.ErrInvariant, rpre, "back-referenced particle #%d is not in the field", p.id)
			}
		}
		if err := d.SelfTest(n, pre+".dem"); err != nil {
			errs = append(errs, err)
		}
	}

	for i, c := range f.contacts.list {
		pre := fmt.Sprintf("contacts[%d]", i)
		if c.linIx != i {
			fail(dynamo.ErrInvariant, pre, "linIx=%d, should be %d", c.linIx, i)
		}
		pa, okA := f.particleLocked(c.A)
		pb, okB := f.particleLocked(c.B)
		if !okA || !okB {
			fail(dynamo.ErrInvariant, pre, "%s references a removed particle", c)
			continue
		}
		if pa.contacts[c.B] != c || pb.contacts[c.A] != c {
			fail(dynamo.ErrInvariant, pre, "%s is not indexed from both particles", c)
		}
	}
	return errors.Join(errs...)
}

// checkMasterLocked validates the weak master reference of a clumped node.
func (f *Field) checkMasterLocked(pre string, n *Node, fail func(error, string, string, ...any)) {
	m := n.Dem().master
	md := m.Dem()
	if md == nil || md.clump == nil || !md.IsClump() {
		fail(dynamo.ErrInvariant, pre, "master %s is not a clump", m)
		return
	}
	if !f.registeredLocked(m) {
		fail(dynamo.ErrInvariant, pre, "master %s is not in the node array", m)
	}
	for _, mn := range md.clump.Nodes {
		if mn == n {
			return
		}
	}
	fail(dynamo.ErrInvariant, pre, "master %s does not list the node as member", m)
}

func (f *Field) checkClumpLocked(pre string, n *Node, fail func(error, string, string, ...any)) {
	cd := n.Dem().clump
	if cd == nil {
		fail(dynamo.ErrInvariant, pre, "dem.clump=true, but it does not carry ClumpData")
		return
	}
	if !cd.Consistent() {
		fail(dynamo.ErrInvariant, pre, "%d members, %d relPos, %d relOri", len(cd.Nodes), len(cd.RelPos), len(cd.RelOri))
	}
	for j, mn := range cd.Nodes {
		mpre := fmt.Sprintf("%s.dem.nodes[%d]", pre, j)
		switch {
		case mn == nil:
			fail(dynamo.ErrInvariant, mpre, "member is nil")
		case mn.Dem() == nil:
			fail(dynamo.ErrInvariant, mpre, "member has no DemData")
		case !mn.Dem().IsClumped():
			fail(dynamo.ErrInvariant, mpre, "clumped=false, should be true (node is a clump)")
		case mn.Dem().master != n:
			fail(dynamo.ErrInvariant, mpre, "master is not nodes[%d]", n.Dem().LinIx)
		}
	}
}
