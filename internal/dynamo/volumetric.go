package dynamo

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
)

// DiagonalTolerance is the relative magnitude below which off-diagonal
// inertia terms are treated as zero.
const DiagonalTolerance = 1e-9

// InertiaTranslate moves inertia tensor i of a body with mass m, given
// about the body's centroid, to a reference point displaced by off from the
// centroid (parallel-axis theorem).
func InertiaTranslate(i mgl64.Mat3, m float64, off mgl64.Vec3) mgl64.Mat3 {
	steiner := mgl64.Ident3().Mul(off.Dot(off)).Sub(off.OuterProd3(off))
	return i.Add(steiner.Mul(m))
}

// InertiaRotate expresses tensor i, given in the local frame of orientation
// q, in the global frame: R·I·Rᵀ.
func InertiaRotate(i mgl64.Mat3, q mgl64.Quat) mgl64.Mat3 {
	r := RotationMatrix(q)
	return r.Mul3(i).Mul3(r.Transpose())
}

// RotationMatrix returns the 3×3 rotation matrix of a unit quaternion.
func RotationMatrix(q mgl64.Quat) mgl64.Mat3 {
	return q.Normalize().Mat4().Mat3()
}

// IsDiagonal reports whether the symmetric tensor i has negligible
// off-diagonal terms relative to its largest entry.
func IsDiagonal(i mgl64.Mat3) bool {
	scale := 0.0
	for _, v := range i {
		scale = math.Max(scale, math.Abs(v))
	}
	if scale == 0 {
		return true
	}
	tol := DiagonalTolerance * scale
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if r != c && math.Abs(i.At(r, c)) > tol {
				return false
			}
		}
	}
	return true
}

// DiagonalizeSym decomposes the symmetric tensor i into principal moments
// (ascending) and the rotation whose columns are the principal axes.
// The rotation is always proper (right-handed).
func DiagonalizeSym(i mgl64.Mat3) (mgl64.Quat, mgl64.Vec3, error) {
	data := make([]float64, 9)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			// symmetrize to absorb rounding in the summed tensor
			data[r*3+c] = 0.5 * (i.At(r, c) + i.At(c, r))
		}
	}
	var es mat.EigenSym
	if ok := es.Factorize(mat.NewSymDense(3, data), true); !ok {
		return mgl64.QuatIdent(), mgl64.Vec3{}, Errorf("DiagonalizeSym", ErrInvariant, "eigendecomposition of %v did not converge", i)
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	var axes mgl64.Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			axes.Set(r, c, vecs.At(r, c))
		}
	}
	if axes.Det() < 0 {
		for r := 0; r < 3; r++ {
			axes.Set(r, 2, -axes.At(r, 2))
		}
	}
	ori := mgl64.Mat4ToQuat(axes.Mat4()).Normalize()
	return ori, mgl64.Vec3{vals[0], vals[1], vals[2]}, nil
}

// PrincipalAxes turns an aggregate of total mass m, static moment sg (Σ mᵢxᵢ)
// and inertia tensor ig (about the global origin) into centroid position,
// principal orientation and principal moments.
func PrincipalAxes(m float64, sg mgl64.Vec3, ig mgl64.Mat3) (mgl64.Vec3, mgl64.Quat, mgl64.Vec3, error) {
	if !(m > 0) {
		return mgl64.Vec3{}, mgl64.QuatIdent(), mgl64.Vec3{}, Errorf("PrincipalAxes", ErrValidation, "mass must be positive (not %g)", m)
	}
	pos := sg.Mul(1 / m)
	// move from the origin back to the centroid
	ic := ig.Sub(mgl64.Ident3().Mul(pos.Dot(pos)).Sub(pos.OuterProd3(pos)).Mul(m))
	ori, inertia, err := DiagonalizeSym(ic)
	if err != nil {
		return mgl64.Vec3{}, mgl64.QuatIdent(), mgl64.Vec3{}, err
	}
	return pos, ori, inertia, nil
}

// IsFinite reports whether no component of v is NaN or Inf.
func IsFinite(v mgl64.Vec3) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// NaNVec3 is the "unset" marker for cached vector quantities.
func NaNVec3() mgl64.Vec3 {
	return mgl64.Vec3{math.NaN(), math.NaN(), math.NaN()}
}
