package dynamo

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// AlignedBox is an axis-aligned bounding box. The zero value is not empty;
// use EmptyBox for an accumulator.
type AlignedBox struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// EmptyBox returns a box that any Extend call will replace.
func EmptyBox() AlignedBox {
	inf := math.Inf(1)
	return AlignedBox{
		Min: mgl64.Vec3{inf, inf, inf},
		Max: mgl64.Vec3{-inf, -inf, -inf},
	}
}

// IsEmpty reports whether nothing has been added to the box.
func (b AlignedBox) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Extend grows the box to contain pt.
func (b *AlignedBox) Extend(pt mgl64.Vec3) {
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Min(b.Min[i], pt[i])
		b.Max[i] = math.Max(b.Max[i], pt[i])
	}
}

// Merge grows the box to contain other.
func (b *AlignedBox) Merge(other AlignedBox) {
	if other.IsEmpty() {
		return
	}
	b.Extend(other.Min)
	b.Extend(other.Max)
}

// Sizes returns the edge lengths.
func (b AlignedBox) Sizes() mgl64.Vec3 {
	if b.IsEmpty() {
		return mgl64.Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Contains reports whether pt lies inside the box (boundary included).
func (b AlignedBox) Contains(pt mgl64.Vec3) bool {
	for i := 0; i < 3; i++ {
		if pt[i] < b.Min[i] || pt[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Overlaps reports whether the two boxes intersect.
func (b AlignedBox) Overlaps(other AlignedBox) bool {
	for i := 0; i < 3; i++ {
		if b.Max[i] < other.Min[i] || other.Max[i] < b.Min[i] {
			return false
		}
	}
	return true
}
