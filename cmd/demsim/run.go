package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/demsim/internal/config"
	"github.com/san-kum/demsim/internal/dem"
	"github.com/san-kum/demsim/internal/metrics"
	"github.com/san-kum/demsim/internal/sim"
	"github.com/san-kum/demsim/internal/storage"
	"github.com/spf13/cobra"
)

// loadScene resolves the scene from a preset argument and/or --config; the
// config file overrides the preset and flags override both.
func loadScene(cmd *cobra.Command, args []string) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		name string
	)
	if len(args) > 0 {
		cfg = config.GetPreset(args[0])
		if cfg == nil {
			return nil, "", fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
		}
		name = args[0]
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		name = strings.TrimSuffix(filepath.Base(configFile), filepath.Ext(configFile))
	}
	if cfg == nil {
		return nil, "", errors.New("give a preset or --config")
	}
	if cfg.Name != "" {
		name = cfg.Name
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if cmd.Name() != "selftest" && flags.Changed("steps") {
		cfg.Steps = steps
	}
	if flags.Changed("damping") {
		cfg.Damping = damping
	}
	if flags.Changed("sample-every") {
		cfg.SampleEvery = sampleEvery
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("clump-div") {
		cfg.ClumpDiv = clumpDiv
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, name, nil
}

func runScene(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadScene(cmd, args)
	if err != nil {
		return err
	}

	f, err := cfg.Build(dem.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("building scene: %w", err)
	}
	if err := f.SelfTest(); err != nil {
		return fmt.Errorf("scene is inconsistent: %w", err)
	}
	simCfg, err := cfg.SimConfig(f)
	if err != nil {
		return err
	}

	scene := sim.New(f, simCfg, sim.WithLogger(slog.Default()))
	scene.AddMetric(metrics.NewEnergy())
	scene.AddMetric(metrics.NewEnergyRatio())
	scene.AddMetric(metrics.NewStability(stableSpeed))
	scene.AddMetric(metrics.NewContacts())
	scene.AddMetric(metrics.NewNodes())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println(titleStyle.Render("running " + name))
	fmt.Println(dim.Render(fmt.Sprintf("%d particles, %d nodes, dt=%.3g, %d steps", f.ParticleCount(), f.NodeCount(), simCfg.Dt, simCfg.Steps)))
	start := time.Now()

	result, runErr := scene.Run(ctx)
	if result == nil {
		return runErr
	}
	elapsed := time.Since(start)
	if runErr != nil {
		fmt.Fprintln(os.Stderr, yellow.Render("run stopped: ")+runErr.Error())
	}

	rows := [][2]string{
		{"elapsed", elapsed.Round(time.Millisecond).String()},
		{"steps", fmt.Sprintf("%d", result.StepsTaken)},
		{"time", fmt.Sprintf("%.4gs", result.Time)},
		{"contacts", fmt.Sprintf("%d (%d real)", f.Contacts().Len(), f.Contacts().RealCount())},
	}
	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(name, simCfg, result, f)
		if err != nil {
			return err
		}
		rows = append(rows, [2]string{"run id", runID})
	}
	names := make([]string, 0, len(result.Metrics))
	for k := range result.Metrics {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		rows = append(rows, [2]string{k, fmt.Sprintf("%.6g", result.Metrics[k])})
	}
	fmt.Println(panel.Render(kv(rows...)))

	if plotAfter {
		if data := result.Series("kinetic_energy"); len(data) > 1 {
			fmt.Println(asciigraph.Plot(data,
				asciigraph.Height(10),
				asciigraph.Width(80),
				asciigraph.Caption("kinetic energy"),
			))
		}
	}
	return runErr
}

func selfTestScene(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadScene(cmd, args)
	if err != nil {
		return err
	}
	f, err := cfg.Build(dem.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("building scene: %w", err)
	}
	if checkRun > 0 {
		simCfg, err := cfg.SimConfig(f)
		if err != nil {
			return err
		}
		simCfg.Steps = checkRun
		if _, err := sim.New(f, simCfg).Run(cmd.Context()); err != nil {
			return err
		}
	}
	if err := f.SelfTest(); err != nil {
		fmt.Println(errorStyle.Render(name + ": FAILED"))
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Println("  " + line)
		}
		return errors.New("self test failed")
	}
	fmt.Println(green.Render(name+": ok") + dim.Render(fmt.Sprintf("  %d particles, %d nodes, %d contacts", f.ParticleCount(), f.NodeCount(), f.Contacts().Len())))
	return nil
}
