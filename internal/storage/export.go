package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/demsim/internal/sim"
)

type ExportData struct {
	Scene   string               `json:"scene"`
	Dt      float64              `json:"dt"`
	Steps   int                  `json:"steps"`
	Time    float64              `json:"time"`
	Series  map[string][]float64 `json:"series"`
	Metrics map[string]float64   `json:"metrics"`
}

func newExportData(scene string, cfg sim.Config, result *sim.Result) ExportData {
	data := ExportData{
		Scene:   scene,
		Dt:      cfg.Dt,
		Steps:   result.StepsTaken,
		Time:    result.Time,
		Series:  make(map[string][]float64, len(sim.SeriesNames)),
		Metrics: result.Metrics,
	}
	for _, name := range sim.SeriesNames {
		data.Series[name] = result.Series(name)
	}
	return data
}

// ExportJSON writes the sampled series and metrics of a run to w.
func ExportJSON(w io.Writer, scene string, cfg sim.Config, result *sim.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(newExportData(scene, cfg, result))
}

// ExportJSONFile writes the export to path.
func ExportJSONFile(path, scene string, cfg sim.Config, result *sim.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return ExportJSON(file, scene, cfg, result)
}
