package interfaces

import "github.com/betwatch/casekeeper/pkg/domain/types"

// ListCaseOption is a functional option for filtering cases in List
type ListCaseOption func(*listCaseConfig)

type listCaseConfig struct {
	state *types.CaseState
}

// WithState filters cases by lifecycle state
func WithState(state types.CaseState) ListCaseOption {
	return func(c *listCaseConfig) {
		c.state = &state
	}
}

// BuildListCaseConfig builds a listCaseConfig from options
func BuildListCaseConfig(opts ...ListCaseOption) *listCaseConfig {
	cfg := &listCaseConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// State returns the state filter value, or nil if not set
func (c *listCaseConfig) State() *types.CaseState {
	return c.state
}
