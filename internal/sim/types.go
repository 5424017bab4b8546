package sim

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dem"
)

// Collider keeps the contact graph of a field up to date.
type Collider interface {
	Update(f *dem.Field) error
}

// Law computes the physics of real contacts and applies the resulting
// loads to the particle nodes.
type Law interface {
	Apply(f *dem.Field, c *dem.Contact, a, b *dem.Particle) error
}

// Integrator advances registered nodes by one step.
type Integrator interface {
	Step(f *dem.Field, t, dt float64) error
}

type Metric interface {
	Name() string
	Observe(f *dem.Field, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(f *dem.Field, step int, t float64)
}

type Config struct {
	Dt      float64
	Steps   int
	Gravity mgl64.Vec3
	// Damping is the non-viscous damping coefficient of the integrator.
	Damping       float64
	SampleEvery   int
	ValidateState bool
	Seed          int64
}

func DefaultConfig() Config {
	return Config{
		Dt:            1e-4,
		Steps:         1000,
		Gravity:       mgl64.Vec3{0, 0, -9.81},
		Damping:       0.2,
		SampleEvery:   10,
		ValidateState: true,
	}
}

// Sample is a snapshot of scalar field quantities.
type Sample struct {
	Step          int
	Time          float64
	KineticEnergy float64
	Particles     int
	Nodes         int
	Contacts      int
	RealContacts  int
}

type Result struct {
	Samples    []Sample
	Metrics    map[string]float64
	StepsTaken int
	Time       float64
}

// Series returns one column of the samples by name.
func (r *Result) Series(name string) []float64 {
	out := make([]float64, 0, len(r.Samples))
	for _, s := range r.Samples {
		switch name {
		case "time":
			out = append(out, s.Time)
		case "kinetic_energy":
			out = append(out, s.KineticEnergy)
		case "particles":
			out = append(out, float64(s.Particles))
		case "nodes":
			out = append(out, float64(s.Nodes))
		case "contacts":
			out = append(out, float64(s.Contacts))
		case "real_contacts":
			out = append(out, float64(s.RealContacts))
		default:
			return nil
		}
	}
	return out
}

// SeriesNames lists the names accepted by Result.Series.
var SeriesNames = []string{"time", "kinetic_energy", "particles", "nodes", "contacts", "real_contacts"}
