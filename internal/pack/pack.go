package pack

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/demsim/internal/dynamo"
)

// Sphere is one raw sphere description. ClumpID < 0 marks a standalone
// sphere.
type Sphere struct {
	Center  mgl64.Vec3
	Radius  float64
	ClumpID int
}

// SpherePack is a flat list of spheres, optionally grouped into clumps.
type SpherePack struct {
	Spheres []Sphere
}

func (sp *SpherePack) Add(center mgl64.Vec3, radius float64, clumpID int) {
	sp.Spheres = append(sp.Spheres, Sphere{Center: center, Radius: radius, ClumpID: clumpID})
}

func (sp *SpherePack) Len() int { return len(sp.Spheres) }

// Translate shifts every sphere by off.
func (sp *SpherePack) Translate(off mgl64.Vec3) {
	for i := range sp.Spheres {
		sp.Spheres[i].Center = sp.Spheres[i].Center.Add(off)
	}
}

// Box returns the bounding box of all spheres.
func (sp *SpherePack) Box() dynamo.AlignedBox {
	box := dynamo.EmptyBox()
	for _, s := range sp.Spheres {
		r := mgl64.Vec3{s.Radius, s.Radius, s.Radius}
		box.Extend(s.Center.Sub(r))
		box.Extend(s.Center.Add(r))
	}
	return box
}

// Lattice places n[0]×n[1]×n[2] standalone spheres on a cubic lattice
// starting at origin.
func Lattice(origin mgl64.Vec3, n [3]int, spacing, radius float64) *SpherePack {
	sp := &SpherePack{}
	for i := 0; i < n[0]; i++ {
		for j := 0; j < n[1]; j++ {
			for k := 0; k < n[2]; k++ {
				off := mgl64.Vec3{float64(i), float64(j), float64(k)}.Mul(spacing)
				sp.Add(origin.Add(off), radius, -1)
			}
		}
	}
	return sp
}

var header = []string{"x", "y", "z", "r", "clump"}

// Write stores the pack as CSV with a header row.
func (sp *SpherePack) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range sp.Spheres {
		row := []string{
			strconv.FormatFloat(s.Center[0], 'g', -1, 64),
			strconv.FormatFloat(s.Center[1], 'g', -1, 64),
			strconv.FormatFloat(s.Center[2], 'g', -1, 64),
			strconv.FormatFloat(s.Radius, 'g', -1, 64),
			strconv.Itoa(s.ClumpID),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read parses CSV written by Write. The clump column is optional.
func Read(r io.Reader) (*SpherePack, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	sp := &SpherePack{}
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == header[0] {
			continue
		}
		if len(rec) < 4 {
			return nil, dynamo.Errorf("pack.Read", dynamo.ErrValidation, "line %d: expected at least 4 columns, got %d", i+1, len(rec))
		}
		var v [4]float64
		for j := 0; j < 4; j++ {
			v[j], err = strconv.ParseFloat(rec[j], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", i+1, j+1, err)
			}
		}
		if !(v[3] > 0) {
			return nil, dynamo.Errorf("pack.Read", dynamo.ErrValidation, "line %d: radius must be positive (not %g)", i+1, v[3])
		}
		clump := -1
		if len(rec) > 4 && rec[4] != "" {
			clump, err = strconv.Atoi(rec[4])
			if err != nil {
				return nil, fmt.Errorf("line %d clump id: %w", i+1, err)
			}
		}
		sp.Add(mgl64.Vec3{v[0], v[1], v[2]}, v[3], clump)
	}
	return sp, nil
}

func (sp *SpherePack) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return sp.Write(f)
}

func Load(path string) (*SpherePack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}
