package optim

import (
	"context"
	"math"
	"sort"

	"github.com/san-kum/numlab/internal/dynamo"
	"github.com/san-kum/numlab/internal/experiment"
)

// GridSearch evaluates every combination of parameter values and keeps the
// one with the smallest summary metric.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, dynamo.Invalidf("grid search needs one value range per parameter (%d names, %d ranges)", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, dynamo.Invalidf("parameter %s has no values", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Trial is one evaluated grid point.
type Trial struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type SearchResult struct {
	Best      map[string]float64
	BestValue float64
	Trials    []Trial
	Failed    int
}

// Search builds and runs one experiment per grid point. Points whose build
// or run fails, or whose summary lacks metric, are recorded as failed.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (*SearchResult, error) {
	res := &SearchResult{BestValue: math.Inf(1)}
	if err := g.searchRecursive(ctx, 0, make(map[string]float64), buildExperiment, metricName, res); err != nil {
		return res, err
	}
	if res.Best == nil {
		return res, dynamo.Invalidf("no grid point produced metric %q", metricName)
	}
	return res, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	metricName string,
	res *SearchResult,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		trial := Trial{Params: current}
		res.Trials = append(res.Trials, trial)
		last := &res.Trials[len(res.Trials)-1]

		exp, err := buildExperiment(current)
		if err != nil {
			last.Err = err
			res.Failed++
			return nil
		}
		out, err := exp.Run(ctx, nil)
		if err != nil {
			last.Err = err
			res.Failed++
			return nil
		}
		val, ok := out.Summary[metricName]
		if !ok || !dynamo.IsValid(val) {
			last.Err = dynamo.Invalidf("metric %q missing or invalid", metricName)
			res.Failed++
			return nil
		}
		last.Value = val

		if val < res.BestValue {
			res.BestValue = val
			res.Best = make(map[string]float64)
			for k, v := range current {
				res.Best[k] = v
			}
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, buildExperiment, metricName, res); err != nil {
			return err
		}
	}
	return nil
}

// Ranked returns the successful trials, best first.
func (r *SearchResult) Ranked() []Trial {
	out := make([]Trial, 0, len(r.Trials))
	for _, t := range r.Trials {
		if t.Err == nil {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}
