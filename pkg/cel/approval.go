// Package cel compiles the approval rules that decide whether a successful
// centralizer response means the request was approved.
package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// maxRuleCost caps the evaluation cost of a single rule.
const maxRuleCost = 10000

// Response is what an approval rule sees of a centralizer answer.
type Response struct {
	Operation  string
	StatusCode int
	Body       interface{}
	Headers    map[string]string
}

func (r Response) activation() map[string]interface{} {
	headers := r.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	return map[string]interface{}{
		"operation":   r.Operation,
		"status_code": r.StatusCode,
		"body":        r.Body,
		"headers":     headers,
	}
}

type Env struct {
	env *cel.Env
}

func NewEnv() (*Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("operation", cel.StringType),
		cel.Variable("status_code", cel.IntType),
		cel.Variable("body", cel.DynType),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create approval rule environment: %w", err)
	}
	return &Env{env: env}, nil
}

// Check reports whether expression compiles to a boolean rule.
func Check(expression string) error {
	env, err := NewEnv()
	if err != nil {
		return err
	}
	_, err = env.Compile(expression)
	return err
}

// Rule is a compiled approval rule. It is safe for concurrent use.
type Rule struct {
	source  string
	program cel.Program
}

func (e *Env) Compile(expression string) (*Rule, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("approval rule %q: %w", expression, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("approval rule %q must be boolean, got %v", expression, ast.OutputType())
	}

	program, err := e.env.Program(ast, cel.CostLimit(maxRuleCost))
	if err != nil {
		return nil, fmt.Errorf("approval rule %q: %w", expression, err)
	}
	return &Rule{source: expression, program: program}, nil
}

func (r *Rule) String() string {
	return r.source
}

// Approves evaluates the rule against resp. A rule that fails at runtime,
// such as one reading a missing body field, returns an error.
func (r *Rule) Approves(ctx context.Context, resp Response) (bool, error) {
	out, _, err := r.program.ContextEval(ctx, resp.activation())
	if err != nil {
		return false, fmt.Errorf("approval rule %q: %w", r.source, err)
	}
	approved, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("approval rule %q returned %T", r.source, out.Value())
	}
	return approved, nil
}
