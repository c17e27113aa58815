package automation

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/numlab/internal/config"
	"github.com/san-kum/numlab/internal/dynamo"
	"github.com/san-kum/numlab/internal/experiment"
)

// Scenario is a scripted sequence of problems run one after another.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep names a preset or carries an inline problem; the optional
// fields override it.
type ScenarioStep struct {
	Preset  string             `yaml:"preset,omitempty"`
	Problem *config.Config     `yaml:"problem,omitempty"`
	H       float64            `yaml:"h,omitempty"`
	End     float64            `yaml:"end,omitempty"`
	Method  string             `yaml:"method,omitempty"`
	Params  map[string]float64 `yaml:"params,omitempty"`
	SaveAs  string             `yaml:"save_as,omitempty"`
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, dynamo.Invalidf("scenario %s has no steps", path)
	}

	return &scenario, nil
}

// Resolve builds the problem config of a step.
func (s ScenarioStep) Resolve() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.Problem != nil:
		cfg = s.Problem.Clone()
		cfg.ApplyDefaults()
	case s.Preset != "":
		cfg = config.GetPreset(s.Preset)
		if cfg == nil {
			return nil, dynamo.Invalidf("unknown preset %q", s.Preset)
		}
	default:
		return nil, dynamo.Invalidf("step needs a preset or a problem")
	}

	if s.H != 0 {
		cfg.SetStep(s.H)
	}
	if s.End != 0 {
		cfg.SetEnd(s.End)
	}
	if s.Method != "" {
		cfg.Method = s.Method
	}
	if len(s.Params) > 0 {
		if cfg.Params == nil {
			cfg.Params = make(map[string]float64)
		}
		for k, v := range s.Params {
			cfg.Params[k] = v
		}
	}
	if s.SaveAs != "" {
		cfg.Name = s.SaveAs
	}
	return cfg, nil
}

// Hooks lets the caller observe a scenario. Sink, when set, supplies the
// sink of each step and is closed after the step. Done receives every
// finished step, successful or not; returning an error stops the scenario.
type Hooks struct {
	Sink func(i int, cfg *config.Config) dynamo.Sink
	Done func(i int, cfg *config.Config, out *experiment.Outcome, runErr error) error
}

// RunScenario executes all steps in order. A failing run is handed to Done
// and does not stop the scenario; an invalid step does.
func RunScenario(ctx context.Context, scenario *Scenario, hooks Hooks, opts ...experiment.Option) ([]*experiment.Outcome, error) {
	results := make([]*experiment.Outcome, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := step.Resolve()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		exp, err := experiment.New(cfg, opts...)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		sink := dynamo.Discard
		if hooks.Sink != nil {
			sink = hooks.Sink(i, cfg)
		}
		out, runErr := exp.RunAndClose(ctx, sink)
		if out == nil {
			return results, fmt.Errorf("step %d run: %w", i+1, runErr)
		}
		results = append(results, out)

		if hooks.Done != nil {
			if err := hooks.Done(i, cfg, out, runErr); err != nil {
				return results, err
			}
		}
	}

	return results, nil
}
