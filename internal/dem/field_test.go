package dem_test

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/demsim/internal/dem"
	"github.com/san-kum/demsim/internal/dynamo"
)

var mat = dem.NewMaterial(2600, 1e8)

func sphereAt(pos mgl64.Vec3, r float64) *dem.Particle {
	p, err := dem.MakeParticle(dem.NewSphere(r), mat, false)
	Expect(err).NotTo(HaveOccurred())
	p.Nodes()[0].Pos = pos
	return p
}

func facet(nodes ...*dem.Node) *dem.Particle {
	f := dem.NewFacet(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 0, 0}, mgl64.Vec3{0, 1, 0}, 0)
	fn := f.Nodes()
	copy(fn, nodes)
	p, err := dem.MakeParticle(f, mat, true)
	Expect(err).NotTo(HaveOccurred())
	return p
}

var _ = Describe("Field", func() {
	var f *dem.Field

	BeforeEach(func() {
		f = dem.NewField(dem.WithSaveDead(true))
	})

	Describe("adding particles", func() {
		It("keeps back-references symmetric", func() {
			for i := 0; i < 3; i++ {
				_, err := f.AddParticle(sphereAt(mgl64.Vec3{float64(i), 0, 0}, 0.4), dem.NodesAll)
				Expect(err).NotTo(HaveOccurred())
			}
			for _, p := range f.Particles() {
				for _, n := range p.Nodes() {
					Expect(n.Dem().ParRef()).To(ContainElement(p))
				}
			}
			Expect(f.NodeCount()).To(Equal(3))
			Expect(f.SelfTest()).To(Succeed())
		})

		It("assigns ids in insertion order", func() {
			a, _ := f.AddParticle(sphereAt(mgl64.Vec3{}, 1), dem.NodesAll)
			b, _ := f.AddParticle(sphereAt(mgl64.Vec3{3, 0, 0}, 1), dem.NodesAll)
			Expect(a).To(Equal(dem.ParticleID(0)))
			Expect(b).To(Equal(dem.ParticleID(1)))
		})

		It("registers only moving nodes with NodesAuto", func() {
			fixed := facet()
			free := sphereAt(mgl64.Vec3{0, 0, 1}, 0.2)
			_, err := f.AddParticle(fixed, dem.NodesAuto)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.AddParticle(free, dem.NodesAuto)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Nodes()).To(ConsistOf(free.Nodes()[0]))
		})

		It("refuses to add a particle twice", func() {
			p := sphereAt(mgl64.Vec3{}, 1)
			_, err := f.AddParticle(p, dem.NodesAll)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.AddParticle(p, dem.NodesAll)
			Expect(err).To(MatchError(dynamo.ErrValidation))
			Expect(f.ParticleCount()).To(Equal(1))
		})

		It("refuses to register a node twice", func() {
			p := sphereAt(mgl64.Vec3{}, 1)
			_, err := f.AddParticle(p, dem.NodesNone)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.AppendNode(p.Nodes()[0])).To(Succeed())
			Expect(f.AppendNode(p.Nodes()[0])).To(MatchError(dynamo.ErrValidation))
			Expect(f.AppendNode(dem.NewNode())).To(MatchError(dynamo.ErrValidation))
		})

		It("collects unregistered nodes", func() {
			for i := 0; i < 4; i++ {
				_, err := f.AddParticle(sphereAt(mgl64.Vec3{float64(i), 0, 0}, 0.3), dem.NodesNone)
				Expect(err).NotTo(HaveOccurred())
			}
			ps := f.Particles()
			Expect(f.AppendNodesFromParticles(ps[:1])).To(Succeed())
			n, err := f.CollectNodes()
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
			Expect(f.NodeCount()).To(Equal(4))
			Expect(f.SelfTest()).To(Succeed())
		})
	})

	Describe("removing particles", func() {
		It("shrinks the node array by exactly the unreferenced nodes", func() {
			a := facet()
			an := a.Nodes()
			b := facet(an[0], an[1])
			for _, p := range []*dem.Particle{a, b} {
				_, err := f.AddParticle(p, dem.NodesAll)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(f.NodeCount()).To(Equal(4))

			Expect(f.RemoveParticle(a.ID())).To(Succeed())
			Expect(f.NodeCount()).To(Equal(3))
			Expect(f.Nodes()).NotTo(ContainElement(an[2]))
			Expect(an[0].Dem().ParRef()).To(ConsistOf(b))
			Expect(f.DeadNodes()).To(ConsistOf(an[2]))
			Expect(f.DeadParticles()).To(ConsistOf(a))
			Expect(f.SelfTest()).To(Succeed())
		})

		It("fixes the index of the node moved into the freed slot", func() {
			var ps []*dem.Particle
			for i := 0; i < 3; i++ {
				p := sphereAt(mgl64.Vec3{float64(i), 0, 0}, 0.4)
				_, err := f.AddParticle(p, dem.NodesAll)
				Expect(err).NotTo(HaveOccurred())
				ps = append(ps, p)
			}
			Expect(f.RemoveParticle(ps[0].ID())).To(Succeed())
			Expect(ps[2].Nodes()[0].Dem().LinIx).To(Equal(0))
			Expect(ps[0].Nodes()[0].Dem().LinIx).To(Equal(-1))
			Expect(f.SelfTest()).To(Succeed())
		})

		It("never reuses ids and compacts on request", func() {
			var ids []dem.ParticleID
			for i := 0; i < 3; i++ {
				id, err := f.AddParticle(sphereAt(mgl64.Vec3{float64(i), 0, 0}, 0.6), dem.NodesAll)
				Expect(err).NotTo(HaveOccurred())
				ids = append(ids, id)
			}
			Expect(f.Contacts().Add(dem.NewContact(ids[1], ids[2]))).To(Succeed())
			Expect(f.RemoveParticle(ids[0])).To(Succeed())
			_, ok := f.Particle(ids[0])
			Expect(ok).To(BeFalse())

			id, err := f.AddParticle(sphereAt(mgl64.Vec3{9, 0, 0}, 0.6), dem.NodesAll)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(dem.ParticleID(3)))
			Expect(f.Slots()).To(Equal(4))

			remap := f.Compact()
			Expect(remap).To(Equal(map[dem.ParticleID]dem.ParticleID{1: 0, 2: 1, 3: 2}))
			Expect(f.Slots()).To(Equal(3))
			Expect(f.Contacts().Exists(0, 1)).To(BeTrue())
			Expect(f.SelfTest()).To(Succeed())
		})

		It("removes every incident contact", func() {
			var ids []dem.ParticleID
			for i := 0; i < 3; i++ {
				id, _ := f.AddParticle(sphereAt(mgl64.Vec3{float64(i), 0, 0}, 0.6), dem.NodesAll)
				ids = append(ids, id)
			}
			Expect(f.Contacts().Add(dem.NewContact(ids[0], ids[1]))).To(Succeed())
			Expect(f.Contacts().Add(dem.NewContact(ids[2], ids[1]))).To(Succeed())
			Expect(f.Contacts().Len()).To(Equal(2))

			Expect(f.RemoveParticle(ids[1])).To(Succeed())
			Expect(f.Contacts().Len()).To(Equal(0))
			p0, _ := f.Particle(ids[0])
			Expect(p0.AllContacts()).To(BeEmpty())
			Expect(f.SelfTest()).To(Succeed())
		})

		It("rejects removing a clumped particle and leaves the field intact", func() {
			a := sphereAt(mgl64.Vec3{-1, 0, 0}, 0.5)
			b := sphereAt(mgl64.Vec3{1, 0, 0}, 0.5)
			_, ids, err := f.AddClumped([]*dem.Particle{a, b}, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(f.RemoveParticle(ids[0])).To(MatchError(dynamo.ErrPrecondition))
			Expect(f.ParticleCount()).To(Equal(2))
			Expect(a.Nodes()[0].Dem().ParRef()).To(ConsistOf(a))
			Expect(f.SelfTest()).To(Succeed())
		})

		It("reports unknown ids", func() {
			Expect(f.RemoveParticle(42)).To(MatchError(dynamo.ErrNotFound))
		})
	})

	Describe("clumps", func() {
		It("removes a clump with all its members", func() {
			other := sphereAt(mgl64.Vec3{5, 0, 0}, 0.5)
			_, err := f.AddParticle(other, dem.NodesAll)
			Expect(err).NotTo(HaveOccurred())

			a := sphereAt(mgl64.Vec3{-1, 0, 0}, 0.5)
			b := sphereAt(mgl64.Vec3{1, 0, 0}, 0.5)
			master, _, err := f.AddClumped([]*dem.Particle{a, b}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.NodeCount()).To(Equal(2))
			Expect(f.SelfTest()).To(Succeed())

			Expect(f.RemoveClump(master.Dem().LinIx)).To(Succeed())
			Expect(f.ParticleCount()).To(Equal(1))
			Expect(f.Nodes()).To(ConsistOf(other.Nodes()[0]))
			Expect(other.Nodes()[0].Dem().LinIx).To(Equal(0))
			Expect(a.Nodes()[0].Dem().IsClumped()).To(BeFalse())
			Expect(f.DeadParticles()).To(ConsistOf(a, b))
			Expect(f.DeadNodes()).To(ContainElement(master))
			Expect(f.SelfTest()).To(Succeed())
		})

		It("refuses to remove a plain node as clump", func() {
			_, err := f.AddParticle(sphereAt(mgl64.Vec3{}, 1), dem.NodesAll)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.RemoveClump(0)).To(MatchError(dynamo.ErrValidation))
			Expect(f.RemoveClump(7)).To(MatchError(dynamo.ErrNotFound))
		})

		It("clumps particles already in the field", func() {
			a := sphereAt(mgl64.Vec3{-1, 0, 0}, 0.5)
			b := sphereAt(mgl64.Vec3{1, 0, 0}, 0.5)
			ia, _ := f.AddParticle(a, dem.NodesAll)
			ib, _ := f.AddParticle(b, dem.NodesAll)
			master, err := f.ClumpParticles([]dem.ParticleID{ia, ib}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Nodes()).To(ConsistOf(master))
			Expect(f.SelfTest()).To(Succeed())
		})

		It("propagates kinematics down and forces up", func() {
			a := sphereAt(mgl64.Vec3{-1, 0, 0}, 0.5)
			b := sphereAt(mgl64.Vec3{1, 0, 0}, 0.5)
			master, _, err := f.AddClumped([]*dem.Particle{a, b}, nil)
			Expect(err).NotTo(HaveOccurred())

			master.Dem().Vel = mgl64.Vec3{0, 0, 2}
			Expect(f.ApplyClumps(true)).To(Succeed())
			Expect(a.Nodes()[0].Dem().Vel).To(Equal(mgl64.Vec3{0, 0, 2}))

			a.Nodes()[0].Dem().Force = mgl64.Vec3{0, 0, 1}
			b.Nodes()[0].Dem().Force = mgl64.Vec3{0, 0, 1}
			Expect(f.CollectClumpForces()).To(Succeed())
			Expect(master.Dem().Force).To(Equal(mgl64.Vec3{0, 0, 2}))
			Expect(master.Dem().Torque.Len()).To(BeNumerically("<", 1e-12))
		})
	})

	Describe("splitting nodes", func() {
		var hub *dem.Node
		var ps []*dem.Particle

		BeforeEach(func() {
			first := facet()
			hub = first.Nodes()[0]
			ps = []*dem.Particle{first, facet(hub), facet(hub)}
			for _, p := range ps {
				_, err := f.AddParticle(p, dem.NodesAll)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("gives the clone exactly the reassigned particles", func() {
			before := f.NodeCount()
			clone, err := f.SplitNode(hub, ps[1:2], 0.5, 0.5)
			Expect(err).NotTo(HaveOccurred())

			Expect(hub.Dem().ParRef()).To(ConsistOf(ps[0], ps[2]))
			Expect(clone.Dem().ParRef()).To(ConsistOf(ps[1]))
			for _, p := range ps {
				refsHub := ContainElement(hub)
				refsClone := ContainElement(clone)
				if p == ps[1] {
					Expect(p.Nodes()).To(refsClone)
					Expect(p.Nodes()).NotTo(refsHub)
				} else {
					Expect(p.Nodes()).To(refsHub)
					Expect(p.Nodes()).NotTo(refsClone)
				}
			}
			Expect(f.NodeCount()).To(Equal(before + 1))
			Expect(clone.Pos).To(Equal(hub.Pos))
			Expect(clone.Dem().IsBlockedAll()).To(BeTrue())
			Expect(f.SelfTest()).To(Succeed())
		})

		It("rejects particles not attached to the node without changes", func() {
			stranger := sphereAt(mgl64.Vec3{}, 1)
			before := f.NodeCount()
			_, err := f.SplitNode(hub, []*dem.Particle{ps[1], stranger}, 1, 1)
			Expect(err).To(MatchError(dynamo.ErrValidation))
			Expect(f.NodeCount()).To(Equal(before))
			Expect(hub.Dem().ParRef()).To(HaveLen(3))
			Expect(ps[1].Nodes()).To(ContainElement(hub))
		})

		It("rejects clumped nodes", func() {
			a := sphereAt(mgl64.Vec3{-1, 0, 0}, 0.5)
			b := sphereAt(mgl64.Vec3{1, 0, 0}, 0.5)
			master, _, err := f.AddClumped([]*dem.Particle{a, b}, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.SplitNode(a.Nodes()[0], []*dem.Particle{a}, 1, 1)
			Expect(err).To(MatchError(dynamo.ErrPrecondition))
			_, err = f.SplitNode(master, nil, 1, 1)
			Expect(err).To(MatchError(dynamo.ErrPrecondition))
		})
	})

	Describe("concurrent access", func() {
		It("serializes appends, removals and snapshots", func() {
			const n = 8
			var keep, drop []*dem.Particle
			for i := 0; i < n; i++ {
				k := sphereAt(mgl64.Vec3{float64(i), 0, 0}, 0.4)
				_, err := f.AddParticle(k, dem.NodesNone)
				Expect(err).NotTo(HaveOccurred())
				keep = append(keep, k)

				d := sphereAt(mgl64.Vec3{float64(i), 2, 0}, 0.4)
				_, err = f.AddParticle(d, dem.NodesAll)
				Expect(err).NotTo(HaveOccurred())
				drop = append(drop, d)
			}
			Expect(f.NodeCount()).To(Equal(n))

			var wg sync.WaitGroup
			errs := make(chan error, 2*n)
			for i := 0; i < n; i++ {
				wg.Add(3)
				go func(p *dem.Particle) {
					defer wg.Done()
					errs <- f.AppendNode(p.Nodes()[0])
				}(keep[i])
				go func(id dem.ParticleID) {
					defer wg.Done()
					errs <- f.RemoveParticle(id)
				}(drop[i].ID())
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					for _, nd := range f.Nodes() {
						Expect(nd).NotTo(BeNil())
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}

			var want []*dem.Node
			for _, k := range keep {
				want = append(want, k.Nodes()[0])
			}
			Expect(f.Nodes()).To(ConsistOf(want))
			Expect(f.ParticleCount()).To(Equal(n))
			Expect(f.SelfTest()).To(Succeed())
		})
	})

	Describe("self-test", func() {
		It("flags floating nodes with velocity", func() {
			p := sphereAt(mgl64.Vec3{}, 1)
			_, err := f.AddParticle(p, dem.NodesNone)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.SelfTest()).To(Succeed())

			p.Nodes()[0].Dem().Vel = mgl64.Vec3{1, 0, 0}
			Expect(f.SelfTest()).To(MatchError(dynamo.ErrPrecondition))
		})

		It("flags a broken back-reference", func() {
			p := sphereAt(mgl64.Vec3{}, 1)
			_, err := f.AddParticle(p, dem.NodesAll)
			Expect(err).NotTo(HaveOccurred())
			p.Nodes()[0].Dem().RemoveParRef(p)
			Expect(f.SelfTest()).To(MatchError(dynamo.ErrInvariant))
		})

		It("flags a free massless node", func() {
			p := sphereAt(mgl64.Vec3{}, 1)
			_, err := f.AddParticle(p, dem.NodesAll)
			Expect(err).NotTo(HaveOccurred())
			p.Nodes()[0].Dem().Mass = 0
			Expect(f.SelfTest()).To(MatchError(dynamo.ErrPrecondition))
		})
	})

	Describe("contacts", func() {
		var a, b dem.ParticleID

		BeforeEach(func() {
			a, _ = f.AddParticle(sphereAt(mgl64.Vec3{}, 1), dem.NodesAll)
			b, _ = f.AddParticle(sphereAt(mgl64.Vec3{1.5, 0, 0}, 1), dem.NodesAll)
		})

		It("indexes a contact from both sides", func() {
			c := dem.NewContact(a, b)
			Expect(f.Contacts().Add(c)).To(Succeed())
			got, ok := f.Contacts().Find(b, a)
			Expect(ok).To(BeTrue())
			Expect(got).To(BeIdenticalTo(c))
			Expect(f.Contacts().RealCount()).To(Equal(0))

			c.Geom = &dem.ContactGeom{Overlap: 0.5}
			c.Phys = &dem.ContactPhys{Kn: 1}
			Expect(f.Contacts().RealCount()).To(Equal(1))
			pa, _ := f.Particle(a)
			Expect(pa.RealContacts()).To(Equal([]dem.ParticleID{b}))
		})

		It("rejects duplicates and self-contacts", func() {
			Expect(f.Contacts().Add(dem.NewContact(a, b))).To(Succeed())
			Expect(f.Contacts().Add(dem.NewContact(b, a))).To(MatchError(dynamo.ErrValidation))
			Expect(f.Contacts().Add(dem.NewContact(a, a))).To(MatchError(dynamo.ErrValidation))
			Expect(f.Contacts().Add(dem.NewContact(a, 99))).To(MatchError(dynamo.ErrNotFound))
		})

		It("removes by swapping with the last contact", func() {
			c, _ := f.AddParticle(sphereAt(mgl64.Vec3{0, 1.5, 0}, 1), dem.NodesAll)
			first := dem.NewContact(a, b)
			second := dem.NewContact(a, c)
			Expect(f.Contacts().Add(first)).To(Succeed())
			Expect(f.Contacts().Add(second)).To(Succeed())
			Expect(f.Contacts().Remove(first)).To(Succeed())
			Expect(f.Contacts().All()).To(Equal([]*dem.Contact{second}))
			Expect(f.Contacts().Remove(first)).To(MatchError(dynamo.ErrNotFound))
			Expect(f.SelfTest()).To(Succeed())
		})
	})

	It("bounds every node in the rendering box", func() {
		_, _ = f.AddParticle(sphereAt(mgl64.Vec3{-1, 2, 0}, 1), dem.NodesAll)
		_, _ = f.AddParticle(sphereAt(mgl64.Vec3{3, -2, 1}, 1), dem.NodesNone)
		box := f.RenderingBox()
		Expect(box.Min).To(Equal(mgl64.Vec3{-1, -2, 0}))
		Expect(box.Max).To(Equal(mgl64.Vec3{3, 2, 1}))
	})
})
