package dem

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dynamo"
)

// ContactGeom is the local geometry of an established contact.
type ContactGeom struct {
	Point   mgl64.Vec3
	Normal  mgl64.Vec3
	Overlap float64
}

// ContactPhys holds the interaction parameters and the force acting on A
// (global frame).
type ContactPhys struct {
	Kn    float64
	Force mgl64.Vec3
}

// Contact relates particles A and B. It is real once both geometry and
// physics are set; otherwise it is a provisional entry kept by a collider.
type Contact struct {
	A, B ParticleID
	Geom *ContactGeom
	Phys *ContactPhys

	linIx int
}

// NewContact returns a provisional contact between a and b.
func NewContact(a, b ParticleID) *Contact {
	return &Contact{A: a, B: b, linIx: -1}
}

// IsReal reports whether the contact represents physical interaction.
func (c *Contact) IsReal() bool { return c.Geom != nil && c.Phys != nil }

// Other returns the particle on the other side of id.
func (c *Contact) Other(id ParticleID) (ParticleID, error) {
	switch id {
	case c.A:
		return c.B, nil
	case c.B:
		return c.A, nil
	}
	return NoID, dynamo.Errorf("Contact.Other", dynamo.ErrValidation, "particle #%d is not in %s", id, c)
}

func (c *Contact) String() string {
	return fmt.Sprintf("<Contact #%d+#%d real=%v>", c.A, c.B, c.IsReal())
}

// ContactContainer stores every contact of a Field once, in a linear list,
// and indexes it from both particles' adjacency maps.
type ContactContainer struct {
	f    *Field
	list []*Contact
}

// Add registers c. Both particles must be live and not already in contact.
func (cc *ContactContainer) Add(c *Contact) error {
	cc.f.mu.Lock()
	defer cc.f.mu.Unlock()
	return cc.addLocked(c)
}

func (cc *ContactContainer) addLocked(c *Contact) error {
	if c == nil {
		return dynamo.Errorf("ContactContainer.Add", dynamo.ErrValidation, "contact is nil")
	}
	if c.A == c.B {
		return dynamo.Errorf("ContactContainer.Add", dynamo.ErrValidation, "self-contact of #%d", c.A)
	}
	pa, okA := cc.f.particleLocked(c.A)
	pb, okB := cc.f.particleLocked(c.B)
	if !okA || !okB {
		return dynamo.Errorf("ContactContainer.Add", dynamo.ErrNotFound, "%s references a missing particle", c)
	}
	if _, dup := pa.contacts[c.B]; dup {
		return dynamo.Errorf("ContactContainer.Add", dynamo.ErrValidation, "#%d and #%d are already in contact", c.A, c.B)
	}
	c.linIx = len(cc.list)
	cc.list = append(cc.list, c)
	pa.contacts[c.B] = c
	pb.contacts[c.A] = c
	return nil
}

// Remove drops c from the list and from both adjacency maps.
func (cc *ContactContainer) Remove(c *Contact) error {
	cc.f.mu.Lock()
	defer cc.f.mu.Unlock()
	return cc.removeLocked(c)
}

func (cc *ContactContainer) removeLocked(c *Contact) error {
	if c == nil || c.linIx < 0 || c.linIx >= len(cc.list) || cc.list[c.linIx] != c {
		return dynamo.Errorf("ContactContainer.Remove", dynamo.ErrNotFound, "%v is not in the container", c)
	}
	if pa, ok := cc.f.particleLocked(c.A); ok {
		delete(pa.contacts, c.B)
	}
	if pb, ok := cc.f.particleLocked(c.B); ok {
		delete(pb.contacts, c.A)
	}
	last := len(cc.list) - 1
	if c.linIx != last {
		moved := cc.list[last]
		cc.list[c.linIx] = moved
		moved.linIx = c.linIx
	}
	cc.list[last] = nil
	cc.list = cc.list[:last]
	c.linIx = -1
	return nil
}

// Find returns the contact between a and b.
func (cc *ContactContainer) Find(a, b ParticleID) (*Contact, bool) {
	cc.f.mu.Lock()
	defer cc.f.mu.Unlock()
	return cc.findLocked(a, b)
}

func (cc *ContactContainer) findLocked(a, b ParticleID) (*Contact, bool) {
	pa, ok := cc.f.particleLocked(a)
	if !ok {
		return nil, false
	}
	c, ok := pa.contacts[b]
	return c, ok
}

// Exists reports whether a and b have a contact, real or not.
func (cc *ContactContainer) Exists(a, b ParticleID) bool {
	_, ok := cc.Find(a, b)
	return ok
}

func (cc *ContactContainer) Len() int {
	cc.f.mu.Lock()
	defer cc.f.mu.Unlock()
	return len(cc.list)
}

// All returns a snapshot of the contact list.
func (cc *ContactContainer) All() []*Contact {
	cc.f.mu.Lock()
	defer cc.f.mu.Unlock()
	out := make([]*Contact, len(cc.list))
	copy(out, cc.list)
	return out
}

// RealCount returns the number of real contacts.
func (cc *ContactContainer) RealCount() int {
	cc.f.mu.Lock()
	defer cc.f.mu.Unlock()
	n := 0
	for _, c := range cc.list {
		if c.IsReal() {
			n++
		}
	}
	return n
}

// Clear removes every contact.
func (cc *ContactContainer) Clear() {
	cc.f.mu.Lock()
	defer cc.f.mu.Unlock()
	for _, c := range cc.list {
		c.linIx = -1
	}
	cc.list = nil
	for _, p := range cc.f.particles {
		if p != nil {
			clear(p.contacts)
		}
	}
}
