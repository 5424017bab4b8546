package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/demsim/internal/clump"
	"github.com/san-kum/demsim/internal/config"
	"github.com/san-kum/demsim/internal/export"
	"github.com/san-kum/demsim/internal/pack"
	"github.com/san-kum/demsim/internal/sim"
	"github.com/san-kum/demsim/internal/storage"
	"github.com/spf13/cobra"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENE\tTIME\tSTEPS\tDT\tPARTICLES")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%.3g\t%d\n",
			run.ID,
			run.Scene,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.StepsTaken,
			run.Steps,
			run.Dt,
			run.Particles,
		)
	}
	return w.Flush()
}

func loadResult(st *storage.Store, runID string) (*storage.RunMetadata, *sim.Result, error) {
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	samples, err := st.LoadSamples(runID)
	if err != nil {
		return nil, nil, err
	}
	return meta, &sim.Result{
		Samples:    samples,
		Metrics:    meta.Metrics,
		StepsTaken: meta.StepsTaken,
		Time:       meta.Time,
	}, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	if !slices.Contains(sim.SeriesNames, series) {
		return fmt.Errorf("unknown series %q (available: %v)", series, sim.SeriesNames)
	}
	meta, result, err := loadResult(storage.New(dataDir), args[0])
	if err != nil {
		return err
	}
	data := result.Series(series)
	if len(data) == 0 {
		return errors.New("no data to plot")
	}

	fmt.Println(kv(
		[2]string{"run", meta.ID},
		[2]string{"scene", meta.Scene},
		[2]string{"samples", fmt.Sprintf("%d", len(data))},
	))
	fmt.Println()
	fmt.Println(asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(series+" vs sample"),
	))
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, result, err := loadResult(storage.New(dataDir), args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, meta.Scene, sim.Config{Dt: meta.Dt}, result)
}

func exportSVG(cmd *cobra.Command, args []string) error {
	_, result, err := loadResult(storage.New(dataDir), args[0])
	if err != nil {
		return err
	}
	if svgOut == "" {
		return export.SeriesToSVG(os.Stdout, result, svgSeries, 800, 300, "#4fc3f7")
	}
	file, err := os.Create(svgOut)
	if err != nil {
		return err
	}
	defer file.Close()
	return export.SeriesToSVG(file, result, svgSeries, 800, 300, "#4fc3f7")
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSPHERES\tWALLS\tSTEPS\tGRAVITY")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		sp, err := cfg.SpherePack()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%v\n", name, sp.Len(), len(cfg.Walls), cfg.Steps, cfg.Gravity)
	}
	return w.Flush()
}

func clumpInfo(cmd *cobra.Command, args []string) error {
	sp, err := pack.Load(args[0])
	if err != nil {
		return err
	}
	keys, geoms, err := clump.FromSpherePack(sp, clumpDiv)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSPHERES\tVOLUME\tEQUIV_RAD\tINERTIA\tPOS")
	for i, g := range geoms {
		fmt.Fprintf(w, "%d\t%d\t%.4g\t%.4g\t%s\t%s\n",
			keys[i], len(g.Radii), g.Volume, g.EquivRad, fmtVec(g.Inertia), fmtVec(g.Pos))
	}
	return w.Flush()
}

func fmtVec(v mgl64.Vec3) string {
	return fmt.Sprintf("(%.4g, %.4g, %.4g)", v[0], v[1], v[2])
}

func writePack(cmd *cobra.Command, args []string) error {
	if len(count) != 3 {
		return fmt.Errorf("--count needs 3 values, got %d", len(count))
	}
	sp := pack.Lattice(mgl64.Vec3{}, [3]int{count[0], count[1], count[2]}, spacing, radius)
	if packOut == "" {
		return sp.Write(os.Stdout)
	}
	if err := sp.Save(packOut); err != nil {
		return err
	}
	fmt.Println(green.Render("wrote ") + fmt.Sprintf("%d spheres to %s", sp.Len(), packOut))
	return nil
}
