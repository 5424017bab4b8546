package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	dataDir  string
	logLevel string

	configFile  string
	dt          float64
	steps       int
	damping     float64
	sampleEvery int
	seed        int64
	clumpDiv    int
	noSave      bool
	plotAfter   bool
	stableSpeed float64

	series   string
	packOut  string
	count    []int
	spacing  float64
	radius   float64
	checkRun int

	sweepParams   []string
	sweepMetric   string
	sweepMaximize bool

	svgSeries string
	svgOut    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "demsim",
		Short:         "discrete element particle simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger(logLevel)
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".demsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "run a scene from a preset or a config file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScene,
	}
	addSceneFlags(runCmd)
	runCmd.Flags().Float64Var(&dt, "dt", 0, "timestep (0 picks a fraction of the critical step)")
	runCmd.Flags().IntVar(&steps, "steps", 0, "number of steps")
	runCmd.Flags().Float64Var(&damping, "damping", 0, "non-viscous damping in [0,1)")
	runCmd.Flags().IntVar(&sampleEvery, "sample-every", 0, "sampling interval in steps")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "random seed for lattice jitter")
	runCmd.Flags().IntVar(&clumpDiv, "clump-div", 0, "grid subdivision for clump inertia (0 assumes disjoint spheres)")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().BoolVar(&plotAfter, "plot", false, "plot kinetic energy after the run")
	runCmd.Flags().Float64Var(&stableSpeed, "stable-speed", 10, "speed above which a step counts as unstable")

	selfTestCmd := &cobra.Command{
		Use:   "selftest [preset]",
		Short: "build a scene and check the consistency of the particle field",
		Args:  cobra.MaximumNArgs(1),
		RunE:  selfTestScene,
	}
	addSceneFlags(selfTestCmd)
	selfTestCmd.Flags().IntVar(&checkRun, "steps", 0, "steps to run before checking")

	sweepCmd := &cobra.Command{
		Use:   "sweep [preset]",
		Short: "grid search scene parameters against a metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweepScene,
	}
	addSceneFlags(sweepCmd)
	sweepCmd.Flags().IntVar(&steps, "steps", 0, "steps per run")
	sweepCmd.Flags().StringArrayVar(&sweepParams, "param", nil, "parameter grid as name=v1,v2,... (repeatable)")
	sweepCmd.Flags().StringVar(&sweepMetric, "metric", "energy", "metric to optimize")
	sweepCmd.Flags().BoolVar(&sweepMaximize, "maximize", false, "pick the largest metric value")
	sweepCmd.Flags().Float64Var(&stableSpeed, "stable-speed", 10, "speed above which a step counts as unstable")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a sampled series of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&series, "series", "kinetic_energy", "series to plot")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "export a sampled series of a run as an SVG chart",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringVar(&svgSeries, "series", "kinetic_energy", "series to chart")
	exportSVGCmd.Flags().StringVarP(&svgOut, "out", "o", "", "output file (stdout if empty)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available scene presets",
		RunE:  listPresets,
	}

	clumpCmd := &cobra.Command{
		Use:   "clump [pack.csv]",
		Short: "compute clump geometry of a sphere pack",
		Args:  cobra.ExactArgs(1),
		RunE:  clumpInfo,
	}
	clumpCmd.Flags().IntVar(&clumpDiv, "div", 0, "grid subdivision (0 assumes disjoint spheres)")

	packCmd := &cobra.Command{
		Use:   "pack",
		Short: "write a lattice sphere pack",
		RunE:  writePack,
	}
	packCmd.Flags().IntSliceVar(&count, "count", []int{4, 4, 4}, "spheres along x,y,z")
	packCmd.Flags().Float64Var(&spacing, "spacing", 0.11, "center spacing")
	packCmd.Flags().Float64Var(&radius, "radius", 0.05, "sphere radius")
	packCmd.Flags().StringVarP(&packOut, "out", "o", "", "output file (stdout if empty)")

	rootCmd.AddCommand(runCmd, sweepCmd, selfTestCmd, listCmd, plotCmd, exportJSONCmd, exportSVGCmd, presetsCmd, clumpCmd, packCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func addSceneFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
}

func setupLogger(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}
