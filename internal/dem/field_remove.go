package dem

import (
	"math"
	"sort"

	"github.com/san-kum/demsim/internal/dynamo"
)

// checkRemovalLocked validates that p can be detached from its nodes.
// Clumped nodes are rejected unless allowClumped.
func (f *Field) checkRemovalLocked(op string, p *Particle, allowClumped bool) error {
	if p.Shape == nil {
		return nil
	}
	for i, n := range p.Shape.Nodes() {
		if n == nil || !n.HasDem() {
			return dynamo.Errorf(op, dynamo.ErrInvariant, "%s: shape.nodes[%d] has no DemData", p, i)
		}
		d := n.Dem()
		if d.IsClumped() && !allowClumped {
			return dynamo.Errorf(op, dynamo.ErrPrecondition, "%s: a node is clumped, remove the clump itself instead", p)
		}
		if len(d.parRef) == 0 {
			return dynamo.Errorf(op, dynamo.ErrInvariant, "%s has a node which back-references no particle", p)
		}
		if !d.HasParRef(p) {
			return dynamo.Errorf(op, dynamo.ErrInvariant, "%s: node does not back-reference its own particle", p)
		}
		if d.LinIx >= 0 && !f.registeredLocked(n) {
			return dynamo.Errorf(op, dynamo.ErrInvariant, "node of %s has invalid index %d", p, d.LinIx)
		}
	}
	return nil
}

// commitRemovalLocked detaches p from nodes and contacts and empties its
// slot. It must follow a successful checkRemovalLocked.
func (f *Field) commitRemovalLocked(p *Particle) {
	if p.Shape != nil {
		for _, n := range p.Shape.Nodes() {
			d := n.Dem()
			if !d.RemoveParRef(p) || len(d.parRef) > 0 {
				continue
			}
			if f.registeredLocked(n) {
				f.logger.Debug("retiring node no longer used", "particle", int(p.id), "index", d.LinIx)
				f.retireNodeLocked(n, true)
			}
		}
	}
	for _, c := range p.contacts {
		f.logger.Debug("removing contact", "particle", int(p.id), "a", int(c.A), "b", int(c.B))
		// cannot fail: c is in p.contacts
		_ = f.contacts.removeLocked(c)
	}
	if f.saveDead {
		f.deadParticles = append(f.deadParticles, p)
	}
	f.particles[p.id] = nil
	f.live--
}

// RemoveParticle removes particle id, its incident contacts, and every node
// no other particle uses. The slot is left empty; ids are not reused.
func (f *Field) RemoveParticle(id ParticleID) error {
	const op = "Field.RemoveParticle"
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.particleLocked(id)
	if !ok {
		return dynamo.Errorf(op, dynamo.ErrNotFound, "no particle #%d", id)
	}
	if err := f.checkRemovalLocked(op, p, false); err != nil {
		return err
	}
	f.logger.Debug("removing particle", "id", int(id))
	f.commitRemovalLocked(p)
	return nil
}

// RemoveClump un-clumps every member of the clump registered at linIx,
// removes all member particles and retires the master node.
func (f *Field) RemoveClump(linIx int) error {
	const op = "Field.RemoveClump"
	f.mu.Lock()
	defer f.mu.Unlock()
	if linIx < 0 || linIx >= len(f.nodes) {
		return dynamo.Errorf(op, dynamo.ErrNotFound, "invalid index %d", linIx)
	}
	master := f.nodes[linIx]
	cd, err := clumpOf(op, master)
	if err != nil {
		return err
	}
	members := make(map[*Node]bool, len(cd.Nodes))
	for _, n := range cd.Nodes {
		members[n] = true
	}
	byID := make(map[ParticleID]*Particle)
	for _, n := range cd.Nodes {
		for _, p := range n.Dem().parRef {
			if p.Shape == nil {
				return dynamo.Errorf(op, dynamo.ErrInvariant, "%s in clump has no shape", p)
			}
			for _, pn := range p.Shape.Nodes() {
				if !members[pn] {
					return dynamo.Errorf(op, dynamo.ErrInvariant, "%s has node %s outside of the clump", p, pn)
				}
			}
			if q, ok := f.particleLocked(p.id); !ok || q != p {
				return dynamo.Errorf(op, dynamo.ErrInvariant, "%s is referenced by a clump member but not in the field", p)
			}
			byID[p.id] = p
		}
	}
	ids := make([]ParticleID, 0, len(byID))
	for id, p := range byID {
		if err := f.checkRemovalLocked(op, p, true); err != nil {
			return err
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, n := range cd.Nodes {
		n.Dem().setNoClump()
	}
	for _, id := range ids {
		f.logger.Debug("removing clump member", "id", int(id))
		f.commitRemovalLocked(byID[id])
	}
	f.retireNodeLocked(master, true)
	return nil
}

// SplitNode moves ps from n onto a deep copy of n, which is registered in
// the node array and returned. Mass and inertia of both nodes are scaled
// by the multipliers unless they are NaN.
func (f *Field) SplitNode(n *Node, ps []*Particle, massMult, inertiaMult float64) (*Node, error) {
	const op = "Field.SplitNode"
	f.mu.Lock()
	defer f.mu.Unlock()
	if n == nil || !n.HasDem() {
		return nil, dynamo.Errorf(op, dynamo.ErrValidation, "node %s has no DemData", n)
	}
	d := n.Dem()
	if d.IsClump() {
		return nil, dynamo.Errorf(op, dynamo.ErrPrecondition, "node may not be a clump")
	}
	if d.IsClumped() {
		return nil, dynamo.Errorf(op, dynamo.ErrPrecondition, "node may not be clumped")
	}
	slots := make([]int, len(ps))
	seen := make(map[*Particle]bool, len(ps))
	for i, p := range ps {
		if p == nil || seen[p] {
			return nil, dynamo.Errorf(op, dynamo.ErrValidation, "particle %v is nil or given twice", p)
		}
		seen[p] = true
		if !d.HasParRef(p) {
			return nil, dynamo.Errorf(op, dynamo.ErrValidation, "%s is not attached to %s", p, n)
		}
		slots[i] = -1
		if p.Shape != nil {
			for j, sn := range p.Shape.Nodes() {
				if sn == n {
					slots[i] = j
					break
				}
			}
		}
		if slots[i] < 0 {
			return nil, dynamo.Errorf(op, dynamo.ErrInvariant, "node %s not in shape nodes of %s", n, p)
		}
	}

	clone := n.clone()
	cd := clone.Dem()
	for i, p := range ps {
		p.Shape.Nodes()[slots[i]] = clone
		d.RemoveParRef(p)
		cd.AddParRef(p)
	}
	if !math.IsNaN(massMult) {
		d.Mass *= massMult
		cd.Mass *= massMult
	}
	if !math.IsNaN(inertiaMult) {
		d.Inertia = d.Inertia.Mul(inertiaMult)
		cd.Inertia = cd.Inertia.Mul(inertiaMult)
		d.AngMom = dynamo.NaNVec3()
		cd.AngMom = dynamo.NaNVec3()
	}
	f.appendNodeLocked(clone)
	f.logger.Debug("split node", "moved", len(ps), "remaining", len(d.parRef), "clone", cd.LinIx)
	return clone, nil
}

// Compact renumbers live particles densely and returns the mapping from old
// to new ids. Contacts follow their particles.
func (f *Field) Compact() map[ParticleID]ParticleID {
	f.mu.Lock()
	defer f.mu.Unlock()
	remap := make(map[ParticleID]ParticleID, f.live)
	out := make([]*Particle, 0, f.live)
	for _, p := range f.particles {
		if p == nil {
			continue
		}
		remap[p.id] = ParticleID(len(out))
		out = append(out, p)
	}
	for _, c := range f.contacts.list {
		c.A, c.B = remap[c.A], remap[c.B]
	}
	for _, p := range out {
		p.id = remap[p.id]
		contacts := make(map[ParticleID]*Contact, len(p.contacts))
		for old, c := range p.contacts {
			contacts[remap[old]] = c
		}
		p.contacts = contacts
	}
	f.particles = out
	return remap
}
