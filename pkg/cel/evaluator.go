package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Input is what a filter expression can see of an aggregated message.
type Input struct {
	SensorID string
	Topic    string
	Metrics  []string
	Measures int
}

func (in Input) vars() map[string]interface{} {
	metrics := in.Metrics
	if metrics == nil {
		metrics = []string{}
	}
	return map[string]interface{}{
		"sensor_id": in.SensorID,
		"topic":     in.Topic,
		"metrics":   metrics,
		"measures":  int64(in.Measures),
	}
}

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("sensor_id", cel.StringType),
		cel.Variable("topic", cel.StringType),
		cel.Variable("metrics", cel.ListType(cel.StringType)),
		cel.Variable("measures", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	_, err := e.compileFilter(expression)
	return err
}

func (e *Evaluator) compileFilter(expression string) (*cel.Ast, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return ast, nil
}

// EvaluateFilter compiles and runs expression against in. Callers that
// evaluate the same expression repeatedly should use NewFilter instead.
func (e *Evaluator) EvaluateFilter(ctx context.Context, expression string, in Input) (bool, error) {
	f, err := e.NewFilter(expression)
	if err != nil {
		return false, err
	}
	return f.Match(ctx, in)
}

func (e *Evaluator) CompileExpression(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

// Filter is a boolean expression compiled once and evaluated per message.
type Filter struct {
	expression string
	program    cel.Program
}

func (e *Evaluator) NewFilter(expression string) (*Filter, error) {
	ast, err := e.compileFilter(expression)
	if err != nil {
		return nil, err
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Filter{expression: expression, program: program}, nil
}

func (f *Filter) Expression() string {
	return f.expression
}

func (f *Filter) Match(ctx context.Context, in Input) (bool, error) {
	result, _, err := f.program.ContextEval(ctx, in.vars())
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}
