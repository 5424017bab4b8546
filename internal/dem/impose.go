package dem

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ImposeKind tells the integrator which hooks an Impose implements.
type ImposeKind uint8

const (
	ImposeVelocity ImposeKind = 1 << iota
	ImposeForce
	ImposeReadForce
)

// Impose is an externally imposed motion or load attached to a node.
// Implementations additionally satisfy VelocityImposer, ForceImposer and/or
// ForceReader according to Kind.
type Impose interface {
	Kind() ImposeKind
}

// VelocityImposer prescribes nodal velocity after force integration.
type VelocityImposer interface {
	ImposeVelocity(t float64, n *Node)
}

// ForceImposer adds load before force integration.
type ForceImposer interface {
	ImposeForce(t float64, n *Node)
}

// ForceReader observes the force acting on a node without changing it.
type ForceReader interface {
	ReadForce(t float64, n *Node)
}

// HarmonicOscillation prescribes velocity of x(t)=A·sin(ω(t−t0)) along Dir.
type HarmonicOscillation struct {
	Freq float64
	Amp  float64
	Dir  mgl64.Vec3
	T0   float64
	// PerpFree leaves velocity perpendicular to Dir untouched.
	PerpFree bool
}

func NewHarmonicOscillation(freq, amp float64, dir mgl64.Vec3) *HarmonicOscillation {
	return &HarmonicOscillation{Freq: freq, Amp: amp, Dir: dir.Normalize()}
}

func (h *HarmonicOscillation) Kind() ImposeKind { return ImposeVelocity }

func (h *HarmonicOscillation) ImposeVelocity(t float64, n *Node) {
	omega := 2 * math.Pi * h.Freq
	vMag := h.Amp * omega * math.Cos(omega*(t-h.T0))
	d := n.Dem()
	if !h.PerpFree {
		d.Vel = h.Dir.Mul(vMag)
		return
	}
	d.Vel = d.Vel.Sub(h.Dir.Mul(d.Vel.Dot(h.Dir))).Add(h.Dir.Mul(vMag))
}

// AlignedHarmonicOscillations imposes independent oscillations along global
// axes; a NaN frequency or amplitude leaves that axis alone.
type AlignedHarmonicOscillations struct {
	Freqs mgl64.Vec3
	Amps  mgl64.Vec3
}

func (a *AlignedHarmonicOscillations) Kind() ImposeKind { return ImposeVelocity }

func (a *AlignedHarmonicOscillations) ImposeVelocity(t float64, n *Node) {
	d := n.Dem()
	for ax := 0; ax < 3; ax++ {
		if math.IsNaN(a.Freqs[ax]) || math.IsNaN(a.Amps[ax]) {
			continue
		}
		omega := 2 * math.Pi * a.Freqs[ax]
		d.Vel[ax] = a.Amps[ax] * omega * math.Cos(omega*t)
	}
}

// ConstantForce adds F (global frame) to the node force.
type ConstantForce struct {
	F mgl64.Vec3
}

func (c *ConstantForce) Kind() ImposeKind { return ImposeForce }

func (c *ConstantForce) ImposeForce(_ float64, n *Node) {
	d := n.Dem()
	d.Force = d.Force.Add(c.F)
}

// ReadForce sums force and torque of all nodes sharing it. Reset must be
// called by the driver before each step.
type ReadForce struct {
	F mgl64.Vec3
	T mgl64.Vec3
}

func (r *ReadForce) Kind() ImposeKind { return ImposeReadForce }

func (r *ReadForce) ReadForce(_ float64, n *Node) {
	d := n.Dem()
	r.F = r.F.Add(d.Force)
	r.T = r.T.Add(d.Torque)
}

func (r *ReadForce) Reset() {
	r.F = mgl64.Vec3{}
	r.T = mgl64.Vec3{}
}
