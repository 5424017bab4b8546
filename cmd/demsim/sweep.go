package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/san-kum/demsim/internal/metrics"
	"github.com/san-kum/demsim/internal/optim"
	"github.com/san-kum/demsim/internal/sim"
	"github.com/spf13/cobra"
)

var metricFactories = map[string]func() sim.Metric{
	"energy":       func() sim.Metric { return metrics.NewEnergy() },
	"energy_ratio": func() sim.Metric { return metrics.NewEnergyRatio() },
	"stability":    func() sim.Metric { return metrics.NewStability(stableSpeed) },
	"contacts":     func() sim.Metric { return metrics.NewContacts() },
	"nodes":        func() sim.Metric { return metrics.NewNodes() },
}

// parseParam reads name=v1,v2,...
func parseParam(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", nil, fmt.Errorf("parameter %q: want name=v1,v2,...", s)
	}
	var vals []float64
	for _, field := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return "", nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		vals = append(vals, v)
	}
	return name, vals, nil
}

func sweepScene(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadScene(cmd, args)
	if err != nil {
		return err
	}
	factory, ok := metricFactories[sweepMetric]
	if !ok {
		names := make([]string, 0, len(metricFactories))
		for k := range metricFactories {
			names = append(names, k)
		}
		sort.Strings(names)
		return fmt.Errorf("unknown metric %q (available: %v)", sweepMetric, names)
	}
	if len(sweepParams) == 0 {
		return fmt.Errorf("give at least one --param (available: %v)", optim.ParamNames())
	}

	var (
		params []string
		ranges [][]float64
	)
	for _, s := range sweepParams {
		p, vals, err := parseParam(s)
		if err != nil {
			return err
		}
		params = append(params, p)
		ranges = append(ranges, vals)
	}
	gs, err := optim.NewGridSearch(params, ranges)
	if err != nil {
		return err
	}
	gs.Maximize = sweepMaximize
	gs.Logger = slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println(titleStyle.Render(fmt.Sprintf("sweeping %s over %d points", name, len(gs.Grid()))))
	points, best, err := gs.Search(ctx, cfg, factory)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(params, "\t"))+"\t"+strings.ToUpper(sweepMetric)+"\t")
	for i, pt := range points {
		row := make([]string, 0, len(params)+2)
		for _, p := range params {
			row = append(row, strconv.FormatFloat(pt.Params[p], 'g', 4, 64))
		}
		switch {
		case pt.Err != nil:
			row = append(row, errorStyle.Render("error"), dim.Render(pt.Err.Error()))
		case i == best:
			row = append(row, fmt.Sprintf("%.6g", pt.Value), green.Render("best"))
		default:
			row = append(row, fmt.Sprintf("%.6g", pt.Value), "")
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if best < 0 {
		return fmt.Errorf("no grid point succeeded")
	}
	return nil
}
