package rules

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyExpression is returned for blank rule expressions.
	ErrEmptyExpression = errors.New("rules: expression must not be empty")
	// ErrUnknownEngine is returned by NewEvaluator for unsupported engines.
	ErrUnknownEngine = errors.New("rules: unknown engine")
	// ErrEngineUnavailable is returned when an engine is not compiled in.
	ErrEngineUnavailable = errors.New("rules: engine not available in this build")
	// ErrNotBoolean is returned when a filter rule yields a non-boolean.
	ErrNotBoolean = errors.New("rules: rule did not evaluate to a boolean")

	errCallName = errors.New("call requires a function name string")
)

// EvaluationError captures evaluator metadata alongside the originating error.
type EvaluationError struct {
	Engine string
	Expr   string
	Rule   string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("rules: %s evaluator %s rule=%s: %v", e.Engine, describeExpression(e.Expr), e.Rule, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "rules:") {
		return err
	}
	return fmt.Errorf("rules: %s evaluator: %w", engine, err)
}

func wrapEvaluationError(engine, expr, rule string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Rule == "" {
			evalErr.Rule = rule
		}
		return evalErr
	}

	return &EvaluationError{
		Engine: engine,
		Expr:   expr,
		Rule:   rule,
		Err:    err,
	}
}
