package engine

import (
	"fmt"

	"codemedic/internal/checks"
	"codemedic/internal/config"
)

// StagePlan is a selected check with its effective repair policy.
type StagePlan struct {
	Check  checks.Check
	Policy checks.Policy
}

// Plan is the ordered list of stages a run executes.
type Plan struct {
	Stages []StagePlan
}

// Has reports whether the plan runs the given stage.
func (p *Plan) Has(stage checks.Stage) bool {
	for _, sp := range p.Stages {
		if sp.Check.Stage() == stage {
			return true
		}
	}
	return false
}

// IDs returns the stage ids in run order.
func (p *Plan) IDs() []string {
	ids := make([]string, 0, len(p.Stages))
	for _, sp := range p.Stages {
		ids = append(ids, sp.Check.ID())
	}
	return ids
}

// BuildPlan resolves the stage selector and applies policy overrides.
//
// Overrides apply in order: the fuzz stage's repair bound comes from
// cfg.Fuzz.Retries, then --set entries (stage.max_repairs=N,
// stage.on_exhausted=abort|warn) win. In reportOnly mode no repairs are
// attempted and no stage aborts the run, so every finding is reported.
func BuildPlan(cfg *config.Config, reportOnly bool) (*Plan, error) {
	selected, err := checks.Resolve(cfg.Stages.Selector)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no stages selected")
	}

	opts, err := config.ParseStageOptions(cfg.Stages.Set)
	if err != nil {
		return nil, err
	}
	for id := range opts {
		if _, ok := checks.Get(id); !ok {
			return nil, fmt.Errorf("unknown stage %q in --set", id)
		}
	}

	plan := &Plan{}
	for _, c := range selected {
		pol := c.Policy()
		if c.Stage() == checks.StageFuzz {
			pol.MaxRepairs = cfg.Fuzz.Retries
		}
		if o, ok := opts[c.ID()]; ok {
			if o.MaxRepairs != nil {
				pol.MaxRepairs = *o.MaxRepairs
			}
			switch o.OnExhausted {
			case "abort":
				pol.OnExhausted = checks.Abort
			case "warn":
				pol.OnExhausted = checks.Warn
			}
		}
		if reportOnly {
			pol.MaxRepairs = 0
		}
		plan.Stages = append(plan.Stages, StagePlan{Check: c, Policy: pol})
	}
	return plan, nil
}
