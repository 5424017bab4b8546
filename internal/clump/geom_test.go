package clump

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dem"
	"github.com/san-kum/demsim/internal/dynamo"
	"github.com/san-kum/demsim/internal/pack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sphereVolume(r float64) float64 { return 4. / 3. * math.Pi * r * r * r }

func TestRecomputeSingleSphere(t *testing.T) {
	g := New([]mgl64.Vec3{{1, 2, 3}}, []float64{0.5}, 5)
	require.NoError(t, g.Recompute(5, false, false))
	assert.True(t, g.IsOk())
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, g.Pos)
	assert.InDelta(t, sphereVolume(0.5), g.Volume, 1e-12)
	assert.InDelta(t, 0.4*g.Volume*0.25, g.Inertia[0], 1e-12)
	assert.Equal(t, 0.5, g.EquivRad)
}

func TestRecomputeSteiner(t *testing.T) {
	const d = 2.0
	g := New([]mgl64.Vec3{{-d, 0, 0}, {d, 0, 0}}, []float64{1, 1}, 0)
	require.NoError(t, g.Recompute(0, false, false))

	v := sphereVolume(1)
	own := 0.4 * v
	assert.InDelta(t, 2*v, g.Volume, 1e-12)
	assert.InDelta(t, 0, g.Pos.Len(), 1e-12)
	assert.InDelta(t, 2*own, g.Inertia[0], 1e-9)
	assert.InDelta(t, 2*own+2*v*d*d, g.Inertia[1], 1e-9)
	assert.InDelta(t, 2*own+2*v*d*d, g.Inertia[2], 1e-9)
}

func TestRecomputeGridMatchesSteiner(t *testing.T) {
	centers := []mgl64.Vec3{{-1.5, 0, 0}, {1.5, 0.2, 0}}
	radii := []float64{1, 0.8}
	exact := New(centers, radii, 0)
	require.NoError(t, exact.Recompute(0, false, false))
	grid := exact.Copy()
	require.NoError(t, grid.Recompute(12, false, false))

	assert.InEpsilon(t, exact.Volume, grid.Volume, 0.03)
	for i := 0; i < 3; i++ {
		assert.InEpsilon(t, exact.Inertia[i], grid.Inertia[i], 0.05, "moment %d", i)
		assert.InDelta(t, exact.Pos[i], grid.Pos[i], 0.03, "centroid %d", i)
	}
}

func TestRecomputeOverlapping(t *testing.T) {
	g := New([]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}}, []float64{1, 1}, 10)
	require.NoError(t, g.Recompute(10, false, false))
	// lens volume of two unit spheres at distance 1 is 5π/12
	want := 2*sphereVolume(1) - 5*math.Pi/12
	assert.InEpsilon(t, want, g.Volume, 0.03)
	assert.InDelta(t, 0.5, g.Pos[0], 0.02)
}

func TestRecomputeFastOnlyCutoff(t *testing.T) {
	g := New([]mgl64.Vec3{{0, 0, 0}, {3, 0, 0}}, []float64{1, 1}, 0)
	require.NoError(t, g.Recompute(100, false, true))
	assert.False(t, g.IsOk(), "fast-only recompute of a huge grid must leave the geometry unset")
	assert.True(t, math.IsNaN(g.Pos[0]))
}

func TestRecomputeInvalid(t *testing.T) {
	tests := []struct {
		name    string
		centers []mgl64.Vec3
		radii   []float64
	}{
		{"empty", nil, nil},
		{"mismatched", []mgl64.Vec3{{}, {}}, []float64{1}},
		{"zero radius", []mgl64.Vec3{{}, {1, 0, 0}}, []float64{1, 0}},
		{"negative radius", []mgl64.Vec3{{}}, []float64{-1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(tt.centers, tt.radii, 4)
			assert.ErrorIs(t, g.Recompute(4, false, false), dynamo.ErrValidation)
			assert.NoError(t, g.Recompute(4, true, false))
			assert.False(t, g.IsOk())
		})
	}
}

func TestTranslateAndCopy(t *testing.T) {
	g := New([]mgl64.Vec3{{0, 0, 0}, {2, 0, 0}}, []float64{0.5, 0.5}, 0)
	require.NoError(t, g.Recompute(0, false, false))
	c := g.Copy()
	g.Translate(mgl64.Vec3{0, 0, 1})
	assert.Equal(t, mgl64.Vec3{2, 0, 1}, g.Centers[1])
	assert.InDelta(t, 1, g.Pos[2], 1e-12)
	assert.Equal(t, mgl64.Vec3{2, 0, 0}, c.Centers[1], "copy must not share centers")
	assert.Equal(t, g.Volume, c.Volume)
}

func TestMakeParticles(t *testing.T) {
	mat := dem.NewMaterial(1000, 1e7)
	g := New([]mgl64.Vec3{{-1, 0, 0}, {1, 0, 0}, {0, 1.5, 0}}, []float64{0.5, 0.5, 0.4}, 0)
	require.NoError(t, g.Recompute(0, false, false))

	master, ps, err := g.MakeParticles(mat, dynamo.NaNVec3(), mgl64.QuatIdent(), 3, 1)
	require.NoError(t, err)
	require.Len(t, ps, 3)

	md := master.Dem()
	assert.True(t, md.IsClump())
	assert.InDelta(t, mat.Density*g.Volume, md.Mass, 1e-9)
	for i, p := range ps {
		n := p.Nodes()[0]
		assert.True(t, n.Dem().IsClumped())
		assert.Equal(t, uint32(3), p.Mask)
		for k := 0; k < 3; k++ {
			assert.InDelta(t, g.Centers[i][k], n.Pos[k], 1e-9, "member %d", i)
		}
	}

	f := dem.NewField()
	ids, err := f.AddClump(master, ps)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.NoError(t, f.SelfTest())
}

func TestMakeParticlesScaled(t *testing.T) {
	mat := dem.NewMaterial(1, 0)
	g := New([]mgl64.Vec3{{-1, 0, 0}, {1, 0, 0}}, []float64{0.5, 0.5}, 0)
	at := mgl64.Vec3{10, 0, 0}
	turn := mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1})
	master, ps, err := g.MakeParticles(mat, at, turn, 1, 2)
	require.NoError(t, err)

	assert.InDelta(t, 8*g.Volume, master.Dem().Mass, 1e-9)
	assert.InDelta(t, 32*g.Inertia[2], master.Dem().Inertia[2], 1e-9)
	// the clump axis along x is turned onto y and doubled in length
	p0 := ps[0].Nodes()[0].Pos
	assert.InDelta(t, 10, p0[0], 1e-9)
	assert.InDelta(t, 2, math.Abs(p0[1]), 1e-9)
	r, _ := ps[0].Shape.(*dem.Sphere)
	assert.Equal(t, 1.0, r.Radius)
}

func TestMakeParticlesSingle(t *testing.T) {
	g := New([]mgl64.Vec3{{1, 1, 1}}, []float64{0.2}, 0)
	n, ps, err := g.MakeParticles(dem.NewMaterial(1, 0), dynamo.NaNVec3(), mgl64.QuatIdent(), 1, 1)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.False(t, n.Dem().IsClump())
	assert.Equal(t, mgl64.Vec3{1, 1, 1}, n.Pos)
}

func TestFromSpherePack(t *testing.T) {
	sp := &pack.SpherePack{}
	sp.Add(mgl64.Vec3{0, 0, 0}, 1, -1)
	sp.Add(mgl64.Vec3{5, 0, 0}, 1, 3)
	sp.Add(mgl64.Vec3{10, 0, 0}, 2, -1)
	sp.Add(mgl64.Vec3{7, 0, 0}, 1, 3)

	keys, geoms, err := FromSpherePack(sp, 0)
	require.NoError(t, err)
	require.Len(t, geoms, 3)
	assert.Equal(t, []int{-2, -1, 3}, keys)
	// standalone spheres get decreasing negative keys
	assert.Equal(t, []float64{2}, geoms[0].Radii)
	assert.Equal(t, []float64{1}, geoms[1].Radii)
	assert.Equal(t, []mgl64.Vec3{{5, 0, 0}, {7, 0, 0}}, geoms[2].Centers)
	for _, g := range geoms {
		assert.True(t, g.IsOk())
	}
	assert.InDelta(t, 6, geoms[2].Pos[0], 1e-12)
}

func TestFromSpherePackError(t *testing.T) {
	sp := &pack.SpherePack{}
	sp.Add(mgl64.Vec3{}, 1, 0)
	sp.Add(mgl64.Vec3{1, 0, 0}, 0, 0)
	_, _, err := FromSpherePack(sp, 4)
	assert.ErrorIs(t, err, dynamo.ErrValidation)
}
