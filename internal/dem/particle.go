package dem

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dynamo"
)

// Material carries the bulk properties used by the kernel and by force laws.
type Material struct {
	Density float64 `yaml:"density"`
	Young   float64 `yaml:"young"`
	Poisson float64 `yaml:"poisson"`
}

// NewMaterial returns a material with the given density and stiffness.
func NewMaterial(density, young float64) *Material {
	return &Material{Density: density, Young: young, Poisson: 0.2}
}

// ParticleID identifies a particle inside a Field. It is never reused until
// the field is compacted.
type ParticleID int

// NoID marks a particle not yet added to a field.
const NoID ParticleID = -1

// Particle binds a shape and a material together under an identity.
type Particle struct {
	Shape    Shape
	Material *Material
	// Mask is a bit mask of collision groups.
	Mask uint32

	id       ParticleID
	contacts map[ParticleID]*Contact
}

// MakeParticle creates a particle: missing nodes are created, every node gets
// DemData and a back-reference, all DOFs are blocked if fixed, and node mass
// and inertia are computed from the shape. On error the shape and every
// node are left as they were.
func MakeParticle(shape Shape, mat *Material, fixed bool) (*Particle, error) {
	if shape == nil {
		return nil, dynamo.Errorf("MakeParticle", dynamo.ErrValidation, "shape is nil")
	}
	if mat == nil {
		return nil, dynamo.Errorf("MakeParticle", dynamo.ErrValidation, "material is nil")
	}
	p := &Particle{Shape: shape, Material: mat, Mask: 1, id: NoID, contacts: make(map[ParticleID]*Contact)}

	type undo struct {
		n      *Node
		hadDem bool
		flags  uint8
	}
	prev := append([]*Node(nil), shape.Nodes()...)
	nodes := make([]*Node, shape.NumNodes())
	copy(nodes, prev)
	saved := make([]undo, 0, len(nodes))
	for i := range nodes {
		if nodes[i] == nil {
			nodes[i] = NewNode()
		}
		u := undo{n: nodes[i], hadDem: nodes[i].HasDem()}
		if !u.hadDem {
			nodes[i].SetDem(NewDemData())
		}
		u.flags = nodes[i].Dem().flags
		saved = append(saved, u)
		if fixed {
			nodes[i].Dem().SetBlockedAll()
		}
		nodes[i].Dem().AddParRef(p)
	}
	shape.SetNodes(nodes)

	if err := UpdateMassInertia(shape, mat.Density); err != nil {
		for i := len(saved) - 1; i >= 0; i-- {
			u := saved[i]
			u.n.Dem().RemoveParRef(p)
			u.n.Dem().flags = u.flags
			if !u.hadDem {
				u.n.SetDem(nil)
			}
		}
		shape.SetNodes(prev)
		return nil, err
	}
	return p, nil
}

// ID returns the particle identity, or NoID if not in a field.
func (p *Particle) ID() ParticleID { return p.id }

// Nodes returns the shape's nodes.
func (p *Particle) Nodes() []*Node {
	if p.Shape == nil {
		return nil
	}
	return p.Shape.Nodes()
}

// Node returns the single node of a uninodal particle with DemData.
func (p *Particle) Node() (*Node, error) {
	if p.Shape == nil || len(p.Shape.Nodes()) != 1 || !p.Shape.Nodes()[0].HasDem() {
		return nil, dynamo.Errorf("Particle.Node", dynamo.ErrPrecondition, "%s has no shape, the shape has no/multiple nodes, or the node has no DemData", p)
	}
	return p.Shape.Nodes()[0], nil
}

// Pos returns the position of a uninodal particle.
func (p *Particle) Pos() (mgl64.Vec3, error) {
	n, err := p.Node()
	if err != nil {
		return mgl64.Vec3{}, err
	}
	return n.Pos, nil
}

// Ori returns the orientation of a uninodal particle.
func (p *Particle) Ori() (mgl64.Quat, error) {
	n, err := p.Node()
	if err != nil {
		return mgl64.QuatIdent(), err
	}
	return n.Ori, nil
}

// Vel returns the linear velocity of a uninodal particle.
func (p *Particle) Vel() (mgl64.Vec3, error) {
	n, err := p.Node()
	if err != nil {
		return mgl64.Vec3{}, err
	}
	return n.Dem().Vel, nil
}

// AngVel returns the angular velocity of a uninodal particle.
func (p *Particle) AngVel() (mgl64.Vec3, error) {
	n, err := p.Node()
	if err != nil {
		return mgl64.Vec3{}, err
	}
	return n.Dem().AngVel, nil
}

// Mass returns the mass of the particle's node.
func (p *Particle) Mass() (float64, error) {
	n, err := p.Node()
	if err != nil {
		return 0, err
	}
	return n.Dem().Mass, nil
}

// Contact returns the contact with particle other.
func (p *Particle) Contact(other ParticleID) (*Contact, bool) {
	c, ok := p.contacts[other]
	return c, ok
}

// CountRealContacts returns the number of established contacts.
func (p *Particle) CountRealContacts() int {
	n := 0
	for _, c := range p.contacts {
		if c.IsReal() {
			n++
		}
	}
	return n
}

// RealContacts returns ids of particles in established contact, ascending.
func (p *Particle) RealContacts() []ParticleID {
	ids := make([]ParticleID, 0, len(p.contacts))
	for id, c := range p.contacts {
		if c.IsReal() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AllContacts returns every contact including provisional ones.
func (p *Particle) AllContacts() map[ParticleID]*Contact {
	out := make(map[ParticleID]*Contact, len(p.contacts))
	for id, c := range p.contacts {
		out[id] = c
	}
	return out
}

func (p *Particle) String() string {
	if p.Shape == nil {
		return fmt.Sprintf("<Particle #%d, no shape>", p.id)
	}
	return fmt.Sprintf("<Particle #%d %s>", p.id, p.Shape.Kind())
}
