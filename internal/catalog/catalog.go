// Package catalog loads the read-only list of scenarios a simulation walks
// through.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/leadsim/internal/model"
)

//go:embed scenarios.yaml
var defaultScenarios []byte

// Catalog is an ordered, immutable list of scenarios.
type Catalog struct {
	scenarios []model.Scenario
	index     map[int]int
}

type file struct {
	Scenarios []model.Scenario `yaml:"scenarios"`
}

// Default returns the built-in scenarios.
func Default() (*Catalog, error) {
	return Parse(defaultScenarios)
}

// Load reads scenarios from a YAML file. An empty path selects the built-in
// scenarios.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML scenario document.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}
	if len(f.Scenarios) == 0 {
		return nil, errors.New("no scenarios defined")
	}

	c := &Catalog{index: make(map[int]int, len(f.Scenarios))}
	for i, sc := range f.Scenarios {
		sc.Type = normalizeType(sc.Type)
		if err := validate(sc); err != nil {
			return nil, fmt.Errorf("scenario %d: %w", i+1, err)
		}
		if _, dup := c.index[sc.ID]; dup {
			return nil, fmt.Errorf("scenario %d: duplicate id %d", i+1, sc.ID)
		}
		sc.Text = strings.TrimSpace(sc.Text)
		c.index[sc.ID] = len(c.scenarios)
		c.scenarios = append(c.scenarios, sc)
	}
	return c, nil
}

func normalizeType(t model.ScenarioType) model.ScenarioType {
	t = model.ScenarioType(strings.ToLower(strings.TrimSpace(string(t))))
	if t == "ai-generated" {
		return model.ScenarioAdaptive
	}
	return t
}

func validate(sc model.Scenario) error {
	switch {
	case sc.ID <= 0:
		return fmt.Errorf("invalid id %d", sc.ID)
	case strings.TrimSpace(sc.Title) == "":
		return errors.New("missing title")
	case !sc.Type.Valid():
		return fmt.Errorf("unknown type %q", sc.Type)
	case strings.TrimSpace(sc.Text) == "":
		// Adaptive scenarios show this text when generation is unavailable.
		return errors.New("missing text")
	}
	return nil
}

// Len returns the number of scenarios.
func (c *Catalog) Len() int {
	return len(c.scenarios)
}

// At returns the scenario at position i in run order.
func (c *Catalog) At(i int) (model.Scenario, bool) {
	if i < 0 || i >= len(c.scenarios) {
		return model.Scenario{}, false
	}
	return c.scenarios[i], true
}

// ByID looks a scenario up by its identifier.
func (c *Catalog) ByID(id int) (model.Scenario, bool) {
	i, ok := c.index[id]
	if !ok {
		return model.Scenario{}, false
	}
	return c.scenarios[i], true
}
