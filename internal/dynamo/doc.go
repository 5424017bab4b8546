// Package dynamo provides the numerical primitives shared by the DEM kernel.
//
// The package defines:
//
//   - the error taxonomy used by every structural operation ([ErrValidation],
//     [ErrInvariant], [ErrUnsupported], [ErrPrecondition], [ErrNotFound],
//     [ErrInvalidState]), the [OpError] wrapper carrying the failing
//     operation and [SimulationError] locating a failed step;
//   - rigid-body volumetric helpers: translating and rotating inertia tensors
//     ([InertiaTranslate], [InertiaRotate]) and decomposing an aggregate
//     (mass, static moment, inertia tensor) into principal axes
//     ([PrincipalAxes]);
//   - [AlignedBox] bounds used by the collider and by rendering;
//   - [ParallelFor], the chunked data-parallel loop used for independent
//     clump construction, pair tests and parameter sweeps.
//
// # Example
//
//	ig := dynamo.InertiaTranslate(mgl64.Diag3(inertia), mass, pos)
//	c, ori, principal, err := dynamo.PrincipalAxes(mass, pos.Mul(mass), ig)
//
// # Thread Safety
//
// All functions are pure; ParallelFor invokes its callback concurrently on
// disjoint ranges and the callback must only write to its own range.
package dynamo
