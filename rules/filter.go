package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Match reports the first rule that matched an event.
type Match struct {
	Rule    string
	Expr    string
	Matched bool
}

// FilterOption configures a Filter.
type FilterOption func(*filterConfig)

type filterConfig struct {
	evaluator Evaluator
	evalOpts  []Option
	logger    Logger
}

// WithEvaluator replaces the engine-selected evaluator.
func WithEvaluator(evaluator Evaluator) FilterOption {
	return func(cfg *filterConfig) {
		cfg.evaluator = evaluator
	}
}

// WithEvaluatorOptions passes opts to the evaluator selected by engine name.
func WithEvaluatorOptions(opts ...Option) FilterOption {
	return func(cfg *filterConfig) {
		cfg.evalOpts = append(cfg.evalOpts, opts...)
	}
}

// WithLogger records every rule evaluation.
func WithLogger(logger Logger) FilterOption {
	return func(cfg *filterConfig) {
		cfg.logger = logger
	}
}

type filterRule struct {
	name     string
	expr     string
	compiled CompiledRule
}

// Filter holds a compiled, ordered list of ignore rules.
type Filter struct {
	engine string
	rules  []filterRule
	logger Logger
}

// NewFilter compiles expressions with the evaluator for engine. Rules are
// named "ignore[i]" after their position. Blank expressions are skipped.
// Evaluators selected by engine name start with the EventFunctions helpers;
// WithEvaluatorOptions may replace or extend them.
func NewFilter(engine string, expressions []string, opts ...FilterOption) (*Filter, error) {
	cfg := filterConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	evaluator := cfg.evaluator
	if evaluator == nil {
		var err error
		evalOpts := append([]Option{WithFunctionRegistry(EventFunctions())}, cfg.evalOpts...)
		evaluator, err = NewEvaluator(engine, evalOpts...)
		if err != nil {
			return nil, fmt.Errorf("rules: engine %q: %w", engine, err)
		}
	}

	filter := &Filter{
		engine: EngineName(evaluator),
		logger: loggerOrNoop(cfg.logger),
	}
	var errs []error
	for i, expression := range expressions {
		expression = strings.TrimSpace(expression)
		if expression == "" {
			continue
		}
		name := fmt.Sprintf("ignore[%d]", i)
		compiled, err := evaluator.Compile(expression, WithRuleName(name))
		if err != nil {
			errs = append(errs, wrapEvaluationError(filter.engine, expression, name, err))
			continue
		}
		filter.rules = append(filter.rules, filterRule{name: name, expr: expression, compiled: compiled})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return filter, nil
}

// Engine returns the name of the engine backing the filter.
func (f *Filter) Engine() string {
	if f == nil {
		return ""
	}
	return f.engine
}

// Len returns the number of compiled rules.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.rules)
}

// Match evaluates rules in order and stops at the first one returning true.
// Rules that fail or return a non-boolean are skipped; their errors are
// joined and returned alongside the match result.
func (f *Filter) Match(ctx RuleContext) (Match, error) {
	if f == nil || len(f.rules) == 0 {
		return Match{}, nil
	}
	ctx = ctx.withDefaults()

	var errs []error
	for _, rule := range f.rules {
		ruleCtx := ctx
		ruleCtx.Rule = rule.name

		start := time.Now()
		value, err := rule.compiled.Evaluate(ruleCtx)
		matched := false
		if err == nil {
			var ok bool
			matched, ok = value.(bool)
			if !ok {
				err = wrapEvaluationError(f.engine, rule.expr, rule.name, fmt.Errorf("%w: got %T", ErrNotBoolean, value))
			}
		}
		f.logger.LogEvaluation(LogEvent{
			Engine:   f.engine,
			Expr:     rule.expr,
			Rule:     rule.name,
			Matched:  matched,
			Duration: time.Since(start),
			Err:      err,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if matched {
			return Match{Rule: rule.name, Expr: rule.expr, Matched: true}, errors.Join(errs...)
		}
	}
	return Match{}, errors.Join(errs...)
}
