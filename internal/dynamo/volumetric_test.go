package dynamo

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInertiaTranslate_PointMass(t *testing.T) {
	// point mass at distance 2 on x: Ixx=0, Iyy=Izz=m*d²
	i := InertiaTranslate(mgl64.Mat3{}, 3, mgl64.Vec3{2, 0, 0})

	assert.InDelta(t, 0.0, i.At(0, 0), 1e-12)
	assert.InDelta(t, 12.0, i.At(1, 1), 1e-12)
	assert.InDelta(t, 12.0, i.At(2, 2), 1e-12)
	assert.True(t, IsDiagonal(i))
}

func TestInertiaTranslate_OffAxis(t *testing.T) {
	i := InertiaTranslate(mgl64.Mat3{}, 1, mgl64.Vec3{1, 1, 0})
	assert.InDelta(t, -1.0, i.At(0, 1), 1e-12)
	assert.InDelta(t, -1.0, i.At(1, 0), 1e-12)
	assert.False(t, IsDiagonal(i))
}

func TestInertiaRotate_Quarter(t *testing.T) {
	local := mgl64.Diag3(mgl64.Vec3{1, 2, 3})
	q := mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1})
	global := InertiaRotate(local, q)

	// x and y moments swap under a quarter turn around z
	assert.InDelta(t, 2.0, global.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, global.At(1, 1), 1e-12)
	assert.InDelta(t, 3.0, global.At(2, 2), 1e-12)
}

func TestDiagonalizeSym_Recovers(t *testing.T) {
	q := mgl64.QuatRotate(0.7, mgl64.Vec3{1, 2, 3}.Normalize())
	tensor := InertiaRotate(mgl64.Diag3(mgl64.Vec3{1, 4, 9}), q)

	ori, moments, err := DiagonalizeSym(tensor)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, moments[0], 1e-9)
	assert.InDelta(t, 4.0, moments[1], 1e-9)
	assert.InDelta(t, 9.0, moments[2], 1e-9)

	// rotating the diagonal back must reproduce the tensor
	back := InertiaRotate(mgl64.Diag3(moments), ori)
	for k := range back {
		assert.InDelta(t, tensor[k], back[k], 1e-9)
	}
	assert.InDelta(t, 1.0, ori.Len(), 1e-12)
}

func TestPrincipalAxes_TwoPoints(t *testing.T) {
	var sg mgl64.Vec3
	var ig mgl64.Mat3
	for _, x := range []mgl64.Vec3{{1, 1, 0}, {3, 1, 0}} {
		sg = sg.Add(x)
		ig = ig.Add(InertiaTranslate(mgl64.Mat3{}, 1, x))
	}

	pos, _, moments, err := PrincipalAxes(2, sg, ig)
	require.NoError(t, err)
	assert.True(t, pos.ApproxEqualThreshold(mgl64.Vec3{2, 1, 0}, 1e-12))
	// along the dumbbell axis: 0, perpendicular: 2*1*1
	assert.InDelta(t, 0.0, moments[0], 1e-9)
	assert.InDelta(t, 2.0, moments[1], 1e-9)
	assert.InDelta(t, 2.0, moments[2], 1e-9)
}

func TestPrincipalAxes_ZeroMass(t *testing.T) {
	_, _, _, err := PrincipalAxes(0, mgl64.Vec3{}, mgl64.Mat3{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestOpError(t *testing.T) {
	err := Errorf("Field.RemoveParticle", ErrPrecondition, "#%d is clumped", 4)
	assert.Equal(t, "Field.RemoveParticle: #4 is clumped", err.Error())
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.NotErrorIs(t, err, ErrInvariant)
}

func TestIsFinite(t *testing.T) {
	assert.True(t, IsFinite(mgl64.Vec3{1, 2, 3}))
	assert.False(t, IsFinite(NaNVec3()))
	assert.False(t, IsFinite(mgl64.Vec3{math.Inf(1), 0, 0}))
}
