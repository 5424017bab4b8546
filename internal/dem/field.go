package dem

import (
	"log/slog"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dynamo"
)

// NodesPolicy selects which particle nodes AddParticle registers for time
// integration.
type NodesPolicy int

const (
	// NodesNone registers no nodes.
	NodesNone NodesPolicy = iota
	// NodesAll registers every node not yet registered.
	NodesAll
	// NodesAuto registers nodes for which DemData.GuessMoving is true.
	NodesAuto
)

// Field owns the node array, the particle container and the contact graph.
// Structural mutation is serialized by one mutex; every mutation validates
// all preconditions before changing anything.
type Field struct {
	mu sync.Mutex

	nodes     []*Node
	particles []*Particle // nil slots are removed particles
	live      int
	contacts  *ContactContainer

	saveDead      bool
	deadNodes     []*Node
	deadParticles []*Particle

	logger *slog.Logger
}

type Option func(*Field)

func WithLogger(l *slog.Logger) Option {
	return func(f *Field) { f.logger = l }
}

// WithSaveDead keeps removed particles and retired nodes for inspection.
func WithSaveDead(on bool) Option {
	return func(f *Field) { f.saveDead = on }
}

func NewField(opts ...Option) *Field {
	f := &Field{logger: slog.Default()}
	f.contacts = &ContactContainer{f: f}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Contacts returns the contact container.
func (f *Field) Contacts() *ContactContainer { return f.contacts }

// Nodes returns a snapshot of the node array.
func (f *Field) Nodes() []*Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Node, len(f.nodes))
	copy(out, f.nodes)
	return out
}

func (f *Field) NodeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.nodes)
}

// Particle returns the live particle with the given id.
func (f *Field) Particle(id ParticleID) (*Particle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.particleLocked(id)
}

func (f *Field) particleLocked(id ParticleID) (*Particle, bool) {
	if id < 0 || int(id) >= len(f.particles) || f.particles[id] == nil {
		return nil, false
	}
	return f.particles[id], true
}

// Particles returns live particles in id order.
func (f *Field) Particles() []*Particle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Particle, 0, f.live)
	for _, p := range f.particles {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// ParticleCount returns the number of live particles.
func (f *Field) ParticleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

// Slots returns the size of the particle container including removed slots.
func (f *Field) Slots() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.particles)
}

func (f *Field) SetSaveDead(on bool) {
	f.mu.Lock()
	f.saveDead = on
	f.mu.Unlock()
}

func (f *Field) DeadParticles() []*Particle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Particle(nil), f.deadParticles...)
}

func (f *Field) DeadNodes() []*Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Node(nil), f.deadNodes...)
}

func (f *Field) registeredLocked(n *Node) bool {
	d := n.Dem()
	return d != nil && d.LinIx >= 0 && d.LinIx < len(f.nodes) && f.nodes[d.LinIx] == n
}

func (f *Field) appendNodeLocked(n *Node) {
	n.Dem().LinIx = len(f.nodes)
	f.nodes = append(f.nodes, n)
}

// retireNodeLocked removes a registered node by swap-and-truncate. dead
// nodes are kept when SaveDead is on.
func (f *Field) retireNodeLocked(n *Node, dead bool) {
	ix := n.Dem().LinIx
	last := len(f.nodes) - 1
	if ix != last {
		moved := f.nodes[last]
		f.nodes[ix] = moved
		moved.Dem().LinIx = ix
	}
	f.nodes[last] = nil
	f.nodes = f.nodes[:last]
	n.Dem().LinIx = -1
	if dead && f.saveDead {
		f.deadNodes = append(f.deadNodes, n)
	}
}

func (f *Field) checkNewParticleLocked(op string, p *Particle) error {
	if p == nil {
		return dynamo.Errorf(op, dynamo.ErrValidation, "particle is nil")
	}
	if p.id != NoID {
		return dynamo.Errorf(op, dynamo.ErrValidation, "%s already has an id", p)
	}
	if p.Shape == nil || p.Material == nil {
		return dynamo.Errorf(op, dynamo.ErrValidation, "%s must have both shape and material", p)
	}
	if !NumNodesOk(p.Shape) {
		return dynamo.Errorf(op, dynamo.ErrValidation, "%s: shape needs %d nodes, has %d", p, p.Shape.NumNodes(), len(p.Shape.Nodes()))
	}
	for i, n := range p.Shape.Nodes() {
		if n == nil || !n.HasDem() {
			return dynamo.Errorf(op, dynamo.ErrValidation, "%s: shape.nodes[%d] has no DemData", p, i)
		}
		if !n.Dem().HasParRef(p) {
			return dynamo.Errorf(op, dynamo.ErrInvariant, "%s: shape.nodes[%d] does not back-reference the particle", p, i)
		}
	}
	return nil
}

func (f *Field) insertParticleLocked(p *Particle) ParticleID {
	p.id = ParticleID(len(f.particles))
	if p.contacts == nil {
		p.contacts = make(map[ParticleID]*Contact)
	}
	f.particles = append(f.particles, p)
	f.live++
	return p.id
}

// AddParticle inserts p and registers its nodes according to policy.
func (f *Field) AddParticle(p *Particle, policy NodesPolicy) (ParticleID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkNewParticleLocked("Field.AddParticle", p); err != nil {
		return NoID, err
	}
	id := f.insertParticleLocked(p)
	for _, n := range p.Shape.Nodes() {
		d := n.Dem()
		if f.registeredLocked(n) || d.IsClumped() {
			continue
		}
		if policy == NodesAll || (policy == NodesAuto && d.GuessMoving()) {
			f.appendNodeLocked(n)
		}
	}
	return id, nil
}

// AddClumped inserts particles as members of a new clump and registers the
// clump's master node. Member nodes are not registered.
func (f *Field) AddClumped(ps []*Particle, central *Node) (*Node, []ParticleID, error) {
	const op = "Field.AddClumped"
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(ps) == 0 {
		return nil, nil, dynamo.Errorf(op, dynamo.ErrValidation, "no particles")
	}
	seenPar := make(map[*Particle]bool, len(ps))
	var members []*Node
	seen := make(map[*Node]bool)
	for _, p := range ps {
		if err := f.checkNewParticleLocked(op, p); err != nil {
			return nil, nil, err
		}
		if seenPar[p] {
			return nil, nil, dynamo.Errorf(op, dynamo.ErrValidation, "%s given twice", p)
		}
		seenPar[p] = true
		for _, n := range p.Shape.Nodes() {
			if f.registeredLocked(n) {
				return nil, nil, dynamo.Errorf(op, dynamo.ErrPrecondition, "%s: node %s is already in the node array", p, n)
			}
			if !seen[n] {
				seen[n] = true
				members = append(members, n)
			}
		}
	}
	if central != nil && f.registeredLocked(central) {
		return nil, nil, dynamo.Errorf(op, dynamo.ErrPrecondition, "central node %s is already in the node array", central)
	}
	master, err := MakeClump(members, central, false)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]ParticleID, len(ps))
	for i, p := range ps {
		ids[i] = f.insertParticleLocked(p)
	}
	f.appendNodeLocked(master)
	return master, ids, nil
}

// AddClump inserts particles whose nodes are all members of the assembled
// clump master, and registers master.
func (f *Field) AddClump(master *Node, ps []*Particle) ([]ParticleID, error) {
	const op = "Field.AddClump"
	f.mu.Lock()
	defer f.mu.Unlock()
	cd, err := clumpOf(op, master)
	if err != nil {
		return nil, err
	}
	if f.registeredLocked(master) {
		return nil, dynamo.Errorf(op, dynamo.ErrPrecondition, "master %s is already in the node array", master)
	}
	seen := make(map[*Particle]bool, len(ps))
	for _, p := range ps {
		if err := f.checkNewParticleLocked(op, p); err != nil {
			return nil, err
		}
		if seen[p] {
			return nil, dynamo.Errorf(op, dynamo.ErrValidation, "%s given twice", p)
		}
		seen[p] = true
		for _, n := range p.Shape.Nodes() {
			if m, _ := n.Dem().Master(); m != master {
				return nil, dynamo.Errorf(op, dynamo.ErrValidation, "%s: node %s is not a member of the clump", p, n)
			}
		}
	}
	for _, n := range cd.Nodes {
		for _, p := range n.Dem().parRef {
			if !seen[p] {
				return nil, dynamo.Errorf(op, dynamo.ErrValidation, "clump member %s belongs to %s, which is not being added", n, p)
			}
		}
	}
	ids := make([]ParticleID, len(ps))
	for i, p := range ps {
		ids[i] = f.insertParticleLocked(p)
	}
	f.appendNodeLocked(master)
	return ids, nil
}

// ClumpParticles turns particles already in the field into one clump.
// Their nodes leave the node array and the master node is registered.
func (f *Field) ClumpParticles(ids []ParticleID, central *Node) (*Node, error) {
	const op = "Field.ClumpParticles"
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(ids) == 0 {
		return nil, dynamo.Errorf(op, dynamo.ErrValidation, "no particles")
	}
	var members []*Node
	seen := make(map[*Node]bool)
	for _, id := range ids {
		p, ok := f.particleLocked(id)
		if !ok {
			return nil, dynamo.Errorf(op, dynamo.ErrNotFound, "no particle #%d", id)
		}
		for _, n := range p.Nodes() {
			if !n.HasDem() {
				return nil, dynamo.Errorf(op, dynamo.ErrInvariant, "%s: node %s has no DemData", p, n)
			}
			if n.Dem().LinIx >= 0 && !f.registeredLocked(n) {
				return nil, dynamo.Errorf(op, dynamo.ErrInvariant, "%s: node %s has invalid index %d", p, n, n.Dem().LinIx)
			}
			if !seen[n] {
				seen[n] = true
				members = append(members, n)
			}
		}
	}
	if central != nil && f.registeredLocked(central) {
		return nil, dynamo.Errorf(op, dynamo.ErrPrecondition, "central node %s is already in the node array", central)
	}
	master, err := MakeClump(members, central, false)
	if err != nil {
		return nil, err
	}
	for _, n := range members {
		if f.registeredLocked(n) {
			ix := n.Dem().LinIx
			f.retireNodeLocked(n, false)
			f.logger.Debug("clumped node left node array", "index", ix)
		}
	}
	f.appendNodeLocked(master)
	return master, nil
}

// AppendNode registers n for time integration.
func (f *Field) AppendNode(n *Node) error {
	return f.AppendNodes([]*Node{n})
}

// AppendNodes registers every node, or none if any is rejected.
func (f *Field) AppendNodes(nn []*Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkAppendLocked(nn); err != nil {
		return err
	}
	for _, n := range nn {
		f.appendNodeLocked(n)
	}
	return nil
}

func (f *Field) checkAppendLocked(nn []*Node) error {
	const op = "Field.AppendNode"
	seen := make(map[*Node]bool, len(nn))
	for _, n := range nn {
		if n == nil {
			return dynamo.Errorf(op, dynamo.ErrValidation, "node to be added may not be nil")
		}
		if !n.HasDem() {
			return dynamo.Errorf(op, dynamo.ErrValidation, "node %s must carry DemData", n)
		}
		if f.registeredLocked(n) || seen[n] {
			return dynamo.Errorf(op, dynamo.ErrValidation, "node %s already in the node array at %d, refusing to add it again", n, n.Dem().LinIx)
		}
		if n.Dem().IsClumped() {
			return dynamo.Errorf(op, dynamo.ErrPrecondition, "node %s is clumped; its master node is integrated instead", n)
		}
		seen[n] = true
	}
	return nil
}

// AppendNodesFromParticles registers the distinct nodes of ps.
func (f *Field) AppendNodesFromParticles(ps []*Particle) error {
	var nn []*Node
	seen := make(map[*Node]bool)
	for _, p := range ps {
		if p == nil || p.Shape == nil {
			continue
		}
		for _, n := range p.Shape.Nodes() {
			if !seen[n] {
				seen[n] = true
				nn = append(nn, n)
			}
		}
	}
	return f.AppendNodes(nn)
}

// CollectNodes registers every unregistered, non-clumped node of live
// particles and returns how many were added.
func (f *Field) CollectNodes() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var add []*Node
	seen := make(map[*Node]bool)
	for _, n := range f.nodes {
		seen[n] = true
	}
	for _, p := range f.particles {
		if p == nil || p.Shape == nil {
			continue
		}
		for _, n := range p.Shape.Nodes() {
			if seen[n] {
				continue
			}
			if n == nil || !n.HasDem() {
				return 0, dynamo.Errorf("Field.CollectNodes", dynamo.ErrValidation, "node %s of %s has no DemData", n, p)
			}
			seen[n] = true
			if n.Dem().IsClumped() {
				continue
			}
			add = append(add, n)
		}
	}
	for _, n := range add {
		f.appendNodeLocked(n)
	}
	return len(add), nil
}

// RenderingBox returns the bounding box of all particle and registered nodes.
func (f *Field) RenderingBox() dynamo.AlignedBox {
	f.mu.Lock()
	defer f.mu.Unlock()
	box := dynamo.EmptyBox()
	for _, p := range f.particles {
		if p == nil || p.Shape == nil {
			continue
		}
		for _, n := range p.Shape.Nodes() {
			box.Extend(n.Pos)
		}
	}
	for _, n := range f.nodes {
		box.Extend(n.Pos)
	}
	return box
}

func (f *Field) clumpNodes() []*Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Node
	for _, n := range f.nodes {
		if n.Dem().IsClump() {
			out = append(out, n)
		}
	}
	return out
}

// ApplyClumps propagates the kinematics of every registered clump to its
// members. It runs before force evaluation.
func (f *Field) ApplyClumps(reset bool) error {
	for _, n := range f.clumpNodes() {
		if err := ApplyToMembers(n, reset); err != nil {
			return err
		}
	}
	return nil
}

// CollectClumpForces adds member loads of every registered clump to the
// master node. It runs after force evaluation.
func (f *Field) CollectClumpForces() error {
	for _, n := range f.clumpNodes() {
		F, T, err := ForceTorqueFromMembers(n)
		if err != nil {
			return err
		}
		d := n.Dem()
		d.Force = d.Force.Add(F)
		d.Torque = d.Torque.Add(T)
	}
	return nil
}

// KineticEnergy sums kinetic energy over registered nodes.
func (f *Field) KineticEnergy() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := 0.0
	for _, n := range f.nodes {
		e += KineticEnergy(n, true, true)
	}
	return e
}

// Momentum sums linear momentum over registered nodes.
func (f *Field) Momentum() mgl64.Vec3 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var m mgl64.Vec3
	for _, n := range f.nodes {
		d := n.Dem()
		m = m.Add(d.Vel.Mul(d.Mass))
	}
	return m
}
