package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StageConfig binds one pipeline stage to the remote agent that
// serves it and the payment plan that meters it.
type StageConfig struct {
	AgentDID        string `yaml:"agent_did"`
	PlanID          string `yaml:"plan_id"`
	RequiredCredits int64  `yaml:"required_credits"`
	CreditsPerItem  int64  `yaml:"credits_per_item"`
	MaxFailures     int    `yaml:"max_failures"`
}

// StageRegistry is the deployment's stage→agent mapping, kept in a
// YAML file so agent ids, plan ids and fan-out budgets change
// without a rebuild.
type StageRegistry struct {
	Stages map[string]StageConfig `yaml:"stages"`
}

func LoadStages(path string) (*StageRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage registry: %w", err)
	}
	var reg StageRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse stage registry: %w", err)
	}
	if len(reg.Stages) == 0 {
		return nil, fmt.Errorf("stage registry %s defines no stages", path)
	}
	return &reg, nil
}

// Get returns the config for a stage name, if present.
func (r *StageRegistry) Get(name string) (StageConfig, bool) {
	cfg, ok := r.Stages[name]
	return cfg, ok
}
