package optim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/san-kum/demsim/internal/config"
	"github.com/san-kum/demsim/internal/dynamo"
	"github.com/san-kum/demsim/internal/sim"
)

// Setters maps sweepable parameter names onto scene config fields.
var Setters = map[string]func(*config.Config, float64){
	"damping":   func(c *config.Config, v float64) { c.Damping = v },
	"dt":        func(c *config.Config, v float64) { c.Dt = v },
	"dt_safety": func(c *config.Config, v float64) { c.DtSafety = v },
	"density":   func(c *config.Config, v float64) { c.Material.Density = v },
	"young":     func(c *config.Config, v float64) { c.Material.Young = v },
	"clump_div": func(c *config.Config, v float64) { c.ClumpDiv = int(v) },
}

// ParamNames lists the sweepable parameters in sorted order.
func ParamNames() []string {
	names := make([]string, 0, len(Setters))
	for k := range Setters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Point is one evaluated grid point.
type Point struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	// Maximize picks the largest metric value instead of the smallest.
	Maximize bool
	Logger   *slog.Logger
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, dynamo.Errorf("GridSearch", dynamo.ErrValidation, "%d params but %d ranges", len(params), len(ranges))
	}
	for i, p := range params {
		if _, ok := Setters[p]; !ok {
			return nil, dynamo.Errorf("GridSearch", dynamo.ErrValidation, "unknown parameter %q (available: %v)", p, ParamNames())
		}
		if len(ranges[i]) == 0 {
			return nil, dynamo.Errorf("GridSearch", dynamo.ErrValidation, "empty range for %q", p)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Grid enumerates every parameter combination, last parameter fastest.
func (g *GridSearch) Grid() []map[string]float64 {
	var out []map[string]float64
	var rec func(depth int, current map[string]float64)
	rec = func(depth int, current map[string]float64) {
		if depth == len(g.paramNames) {
			out = append(out, current)
			return
		}
		for _, val := range g.ranges[depth] {
			next := make(map[string]float64, len(current)+1)
			for k, v := range current {
				next[k] = v
			}
			next[g.paramNames[depth]] = val
			rec(depth+1, next)
		}
	}
	rec(0, map[string]float64{})
	return out
}

// Search runs base with every grid point applied and scores each run by the
// final value of metric. Points run in parallel; a failing point is kept
// with its error and never wins. The returned index is -1 if no point
// succeeded.
func (g *GridSearch) Search(
	ctx context.Context,
	base *config.Config,
	metric func() sim.Metric,
) ([]Point, int, error) {
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grid := g.Grid()
	points := make([]Point, len(grid))
	dynamo.ParallelFor(len(grid), 1, func(start, end int) {
		for i := start; i < end; i++ {
			points[i] = evaluate(ctx, base, grid[i], metric())
			logger.Debug("grid point", "params", grid[i], "value", points[i].Value, "err", points[i].Err)
		}
	})
	if err := ctx.Err(); err != nil {
		return points, -1, err
	}

	best := -1
	for i, p := range points {
		if p.Err != nil || math.IsNaN(p.Value) {
			continue
		}
		if best < 0 || (g.Maximize && p.Value > points[best].Value) || (!g.Maximize && p.Value < points[best].Value) {
			best = i
		}
	}
	return points, best, nil
}

func evaluate(ctx context.Context, base *config.Config, params map[string]float64, metric sim.Metric) Point {
	pt := Point{Params: params, Value: math.NaN()}
	cfg := base.Clone()
	for k, v := range params {
		Setters[k](cfg, v)
	}
	if err := cfg.Validate(); err != nil {
		pt.Err = err
		return pt
	}
	f, err := cfg.Build()
	if err != nil {
		pt.Err = err
		return pt
	}
	simCfg, err := cfg.SimConfig(f)
	if err != nil {
		pt.Err = err
		return pt
	}
	scene := sim.New(f, simCfg)
	scene.AddMetric(metric)
	result, err := scene.Run(ctx)
	if err != nil {
		pt.Err = fmt.Errorf("run: %w", err)
		return pt
	}
	pt.Value = result.Metrics[metric.Name()]
	return pt
}
