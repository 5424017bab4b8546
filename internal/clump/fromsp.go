package clump

import (
	"errors"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dynamo"
	"github.com/san-kum/demsim/internal/pack"
)

// FromSpherePack groups spheres by clump id, every standalone sphere forming
// its own group, and computes the geometry of each group. Groups are
// computed in parallel; the result is ordered by group key, standalone
// spheres (negative keys) first. The k-th standalone sphere has key -(k+1).
func FromSpherePack(sp *pack.SpherePack, div int) ([]int, []*SphereClumpGeom, error) {
	groups := make(map[int][]int)
	noClump := -1
	for i, s := range sp.Spheres {
		if s.ClumpID < 0 {
			groups[noClump] = append(groups[noClump], i)
			noClump--
			continue
		}
		groups[s.ClumpID] = append(groups[s.ClumpID], i)
	}
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]*SphereClumpGeom, len(keys))
	errs := make([]error, len(keys))
	dynamo.ParallelFor(len(keys), 1, func(start, end int) {
		for i := start; i < end; i++ {
			ix := groups[keys[i]]
			centers := make([]mgl64.Vec3, len(ix))
			radii := make([]float64, len(ix))
			for j, k := range ix {
				centers[j] = sp.Spheres[k].Center
				radii[j] = sp.Spheres[k].Radius
			}
			g := New(centers, radii, div)
			errs[i] = g.Recompute(div, false, false)
			out[i] = g
		}
	})
	if err := errors.Join(errs...); err != nil {
		return nil, nil, err
	}
	return keys, out, nil
}
