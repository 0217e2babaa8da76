package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

const allowQuery = "data.sessiontrust.authz.allow"

// DefaultPolicy grants a resolved permission, confining department-scoped permissions to the
// caller's department unless the caller holds the system override.
const DefaultPolicy = `package sessiontrust.authz

default allow := false

allow if {
	input.granted
	not input.department_scoped
}

allow if {
	input.granted
	input.department_scoped
	input.system_override
}

allow if {
	input.granted
	input.department_scoped
	input.target_department == ""
}

allow if {
	input.granted
	input.department_scoped
	input.target_department == input.caller_department
}
`

// OPAEvaluator evaluates the authorization policy with an in-process OPA Rego engine.
// The query is compiled once; Allow is safe for concurrent use.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the given Rego modules, or DefaultPolicy when none are given.
// Modules must define data.sessiontrust.authz.allow.
func NewOPAEvaluator(ctx context.Context, modules ...string) (*OPAEvaluator, error) {
	if len(modules) == 0 {
		modules = []string{DefaultPolicy}
	}
	opts := []func(*rego.Rego){rego.Query(allowQuery)}
	for i, m := range modules {
		opts = append(opts, rego.Module(fmt.Sprintf("policy_%d.rego", i), m))
	}
	pq, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile authorization policy: %w", err)
	}
	return &OPAEvaluator{query: pq}, nil
}

// Allow evaluates the policy. Any evaluation problem is returned as an error; callers deny.
func (e *OPAEvaluator) Allow(ctx context.Context, in Input) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(in.toMap()))
	if err != nil {
		return false, fmt.Errorf("eval authorization policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, errors.New("authorization policy returned no result")
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("authorization policy returned %T, want bool", rs[0].Expressions[0].Value)
	}
	return allowed, nil
}

// HealthCheck verifies that the compiled policy evaluates. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.Allow(ctx, Input{Permission: "health.check"})
	return err
}

func (in Input) toMap() map[string]interface{} {
	return map[string]interface{}{
		"permission":        in.Permission,
		"granted":           in.Granted,
		"source":            in.Source,
		"department_scoped": in.DepartmentScoped,
		"caller_department": in.CallerDepartment,
		"target_department": in.TargetDepartment,
		"system_override":   in.HasSystemOverride,
	}
}
