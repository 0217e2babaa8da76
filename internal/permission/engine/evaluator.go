package engine

import "context"

// Input is the resolved permission state handed to the policy.
type Input struct {
	Permission        string
	Granted           bool
	Source            string
	DepartmentScoped  bool
	CallerDepartment  string
	TargetDepartment  string
	HasSystemOverride bool
}

// Evaluator makes the final allow/deny decision.
type Evaluator interface {
	Allow(ctx context.Context, in Input) (bool, error)
}
