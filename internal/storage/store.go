package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/demsim/internal/dem"
	"github.com/san-kum/demsim/internal/dynamo"
	"github.com/san-kum/demsim/internal/pack"
	"github.com/san-kum/demsim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	samplesFile  = "samples.csv"
	spheresFile  = "spheres.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Scene      string             `json:"scene"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       int64              `json:"seed"`
	Dt         float64            `json:"dt"`
	Steps      int                `json:"steps"`
	StepsTaken int                `json:"steps_taken"`
	Time       float64            `json:"time"`
	Gravity    [3]float64         `json:"gravity"`
	Damping    float64            `json:"damping"`
	Particles  int                `json:"particles"`
	Nodes      int                `json:"nodes"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Save writes run metadata, the sampled series and, if f is non-nil, the
// final sphere positions as a sphere pack.
func (s *Store) Save(scene string, cfg sim.Config, result *sim.Result, f *dem.Field) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", scene, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:         runID,
		Scene:      scene,
		Timestamp:  now,
		Seed:       cfg.Seed,
		Dt:         cfg.Dt,
		Steps:      cfg.Steps,
		StepsTaken: result.StepsTaken,
		Time:       result.Time,
		Gravity:    cfg.Gravity,
		Damping:    cfg.Damping,
		Metrics:    result.Metrics,
	}
	if f != nil {
		meta.Particles = f.ParticleCount()
		meta.Nodes = f.NodeCount()
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if err := writeSamples(filepath.Join(runDir, samplesFile), result.Samples); err != nil {
		return "", err
	}

	if f != nil {
		if err := Snapshot(f).Save(filepath.Join(runDir, spheresFile)); err != nil {
			return "", err
		}
	}
	return runID, nil
}

func writeSamples(path string, samples []sim.Sample) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := append([]string{"step"}, sim.SeriesNames...)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, smp := range samples {
		row := []string{
			strconv.Itoa(smp.Step),
			strconv.FormatFloat(smp.Time, 'g', -1, 64),
			strconv.FormatFloat(smp.KineticEnergy, 'g', -1, 64),
			strconv.Itoa(smp.Particles),
			strconv.Itoa(smp.Nodes),
			strconv.Itoa(smp.Contacts),
			strconv.Itoa(smp.RealContacts),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Snapshot returns the spheres of f as a pack. Members of one clump share
// the position of their master node in the node array as clump id.
func Snapshot(f *dem.Field) *pack.SpherePack {
	sp := &pack.SpherePack{}
	for _, p := range f.Particles() {
		s, ok := p.Shape.(*dem.Sphere)
		if !ok {
			continue
		}
		n := s.Nodes()[0]
		id := -1
		if master, ok := n.Dem().Master(); ok {
			id = master.Dem().LinIx
		}
		sp.Add(n.Pos, s.Radius, id)
	}
	return sp
}

// List returns stored runs, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), metadataFile))
		if err != nil {
			continue
		}

		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}

		runs = append(runs, meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })

	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadSamples reads the sampled series of a run.
func (s *Store) LoadSamples(runID string) ([]sim.Sample, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, samplesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(sim.SeriesNames) + 1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []sim.Sample{}, nil
	}

	samples := make([]sim.Sample, 0, len(records)-1)
	for i, rec := range records[1:] {
		var smp sim.Sample
		ints := []*int{&smp.Step, nil, nil, &smp.Particles, &smp.Nodes, &smp.Contacts, &smp.RealContacts}
		for j, field := range rec {
			switch j {
			case 1:
				smp.Time, err = strconv.ParseFloat(field, 64)
			case 2:
				smp.KineticEnergy, err = strconv.ParseFloat(field, 64)
			default:
				*ints[j], err = strconv.Atoi(field)
			}
			if err != nil {
				return nil, dynamo.Errorf("Store.LoadSamples", dynamo.ErrValidation, "row %d, column %d: %v", i+1, j, err)
			}
		}
		samples = append(samples, smp)
	}
	return samples, nil
}

// LoadSpheres reads the final sphere pack of a run.
func (s *Store) LoadSpheres(runID string) (*pack.SpherePack, error) {
	return pack.Load(filepath.Join(s.baseDir, runID, spheresFile))
}
