package sim

import (
	"context"
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dem"
	"github.com/san-kum/demsim/internal/dynamo"
)

// Scene steps a Field: clump kinematics are propagated to members, contacts
// are detected and evaluated, member loads are collected on clump masters
// and registered nodes are integrated.
type Scene struct {
	Field *dem.Field

	collider   Collider
	law        Law
	integrator Integrator
	metrics    []Metric
	observers  []Observer
	logger     *slog.Logger

	cfg  Config
	step int
	time float64
}

type Option func(*Scene)

func WithCollider(c Collider) Option     { return func(s *Scene) { s.collider = c } }
func WithLaw(l Law) Option               { return func(s *Scene) { s.law = l } }
func WithIntegrator(i Integrator) Option { return func(s *Scene) { s.integrator = i } }
func WithLogger(l *slog.Logger) Option   { return func(s *Scene) { s.logger = l } }

func New(f *dem.Field, cfg Config, opts ...Option) *Scene {
	s := &Scene{
		Field:    f,
		collider: &BruteForceCollider{},
		law:      &LinearNormal{},
		integrator: &Leapfrog{
			Gravity:  cfg.Gravity,
			Damping:  cfg.Damping,
			Validate: cfg.ValidateState,
		},
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
		logger:    slog.Default(),
		cfg:       cfg,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Scene) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Scene) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Scene) Time() float64  { return s.time }
func (s *Scene) StepCount() int { return s.step }

// Step advances the scene by one time step.
func (s *Scene) Step() error {
	f := s.Field
	s.resetForces()
	if err := f.ApplyClumps(false); err != nil {
		return err
	}
	if err := s.collider.Update(f); err != nil {
		return err
	}
	for _, c := range f.Contacts().All() {
		if c.Geom == nil {
			continue
		}
		a, okA := f.Particle(c.A)
		b, okB := f.Particle(c.B)
		if !okA || !okB {
			return dynamo.Errorf("Scene.Step", dynamo.ErrInvariant, "%s references a missing particle", c)
		}
		if err := s.law.Apply(f, c, a, b); err != nil {
			return err
		}
	}
	if err := f.CollectClumpForces(); err != nil {
		return err
	}
	if err := s.integrator.Step(f, s.time, s.cfg.Dt); err != nil {
		return err
	}
	s.step++
	s.time += s.cfg.Dt
	return nil
}

func (s *Scene) resetForces() {
	for _, p := range s.Field.Particles() {
		for _, n := range p.Nodes() {
			if d := n.Dem(); d != nil {
				d.Force = mgl64.Vec3{}
				d.Torque = mgl64.Vec3{}
			}
		}
	}
	for _, n := range s.Field.Nodes() {
		d := n.Dem()
		d.Force = mgl64.Vec3{}
		d.Torque = mgl64.Vec3{}
	}
}

// Run performs cfg.Steps steps, sampling field quantities every
// cfg.SampleEvery steps as well as at the start and the end. On failure the
// partial result is returned together with a *dynamo.SimulationError.
func (s *Scene) Run(ctx context.Context) (*Result, error) {
	if err := validateConfig(s.cfg); err != nil {
		return nil, err
	}

	result := &Result{
		Samples: make([]Sample, 0, s.cfg.Steps/max(s.cfg.SampleEvery, 1)+2),
		Metrics: make(map[string]float64),
	}
	for _, m := range s.metrics {
		m.Reset()
	}
	s.logger.Debug("run started", "steps", s.cfg.Steps, "dt", s.cfg.Dt, "particles", s.Field.ParticleCount(), "nodes", s.Field.NodeCount())

	result.Samples = append(result.Samples, s.sample())
	finish := func() {
		// members follow their clumps in the final state
		_ = s.Field.ApplyClumps(false)
		if n := len(result.Samples); result.Samples[n-1].Step != s.step {
			result.Samples = append(result.Samples, s.sample())
		}
		for _, m := range s.metrics {
			result.Metrics[m.Name()] = m.Value()
		}
		result.Time = s.time
	}

	for i := 0; i < s.cfg.Steps; i++ {
		select {
		case <-ctx.Done():
			finish()
			return result, ctx.Err()
		default:
		}

		for _, m := range s.metrics {
			m.Observe(s.Field, s.time)
		}
		for _, obs := range s.observers {
			obs.OnStep(s.Field, s.step, s.time)
		}

		if err := s.Step(); err != nil {
			finish()
			return result, &dynamo.SimulationError{Step: s.step, Time: s.time, Wrapped: err}
		}
		result.StepsTaken++

		if s.cfg.SampleEvery > 0 && s.step%s.cfg.SampleEvery == 0 {
			result.Samples = append(result.Samples, s.sample())
		}
	}
	finish()
	s.logger.Debug("run finished", "steps", result.StepsTaken, "time", s.time, "contacts", s.Field.Contacts().Len())
	return result, nil
}

func (s *Scene) sample() Sample {
	f := s.Field
	cc := f.Contacts()
	return Sample{
		Step:          s.step,
		Time:          s.time,
		KineticEnergy: f.KineticEnergy(),
		Particles:     f.ParticleCount(),
		Nodes:         f.NodeCount(),
		Contacts:      cc.Len(),
		RealContacts:  cc.RealCount(),
	}
}

func validateConfig(cfg Config) error {
	const op = "Scene.Run"
	if !(cfg.Dt > 0) || math.IsInf(cfg.Dt, 0) {
		return dynamo.Errorf(op, dynamo.ErrValidation, "dt must be positive, got %g", cfg.Dt)
	}
	if cfg.Steps <= 0 {
		return dynamo.Errorf(op, dynamo.ErrValidation, "steps must be positive, got %d", cfg.Steps)
	}
	if cfg.SampleEvery < 0 {
		return dynamo.Errorf(op, dynamo.ErrValidation, "sample interval must not be negative, got %d", cfg.SampleEvery)
	}
	if cfg.Damping < 0 || cfg.Damping >= 1 {
		return dynamo.Errorf(op, dynamo.ErrValidation, "damping must be in [0,1), got %g", cfg.Damping)
	}
	if !dynamo.IsFinite(cfg.Gravity) {
		return dynamo.Errorf(op, dynamo.ErrValidation, "gravity must be finite, got %v", cfg.Gravity)
	}
	return nil
}
