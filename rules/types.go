// Package rules evaluates event filter expressions. Ignore rules configured
// on a client run against a flattened view of each event before it is sent;
// any rule returning true drops the event.
package rules

import "time"

// Engine names accepted by NewEvaluator.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

// RuleContext carries the inputs a rule is evaluated against.
type RuleContext struct {
	// Event is the flattened event payload. Its keys become top-level
	// variables and it is also bound as "event".
	Event map[string]any
	// Scope is bound as "scope" when set.
	Scope map[string]any
	Now   *time.Time
	Args  map[string]any
	// Rule names the rule for error and log metadata.
	Rule string
}

func (ctx RuleContext) withDefaults() RuleContext {
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	if ctx.Now == nil {
		return time.Now()
	}
	return *ctx.Now
}

func (ctx RuleContext) label() string {
	if ctx.Rule != "" {
		return ctx.Rule
	}
	return "unnamed"
}

// eventFields lists the variables every engine can reference even when the
// event omits them.
var eventFields = map[string]any{
	"event_id":    "",
	"level":       "",
	"message":     "",
	"release":     "",
	"environment": "",
	"server_name": "",
	"platform":    "",
	"tags":        map[string]any{},
	"extra":       map[string]any{},
	"user":        map[string]any{},
	"fingerprint": []any{},
	"exception":   []any{},
	"breadcrumbs": []any{},
}

// bindings builds the variable set shared by every engine.
func (ctx RuleContext) bindings() map[string]any {
	env := make(map[string]any, len(eventFields)+len(ctx.Event)+5)
	for key, value := range eventFields {
		env[key] = value
	}
	event := ctx.Event
	if event == nil {
		event = map[string]any{}
	}
	for key, value := range event {
		if value == nil {
			continue
		}
		env[key] = value
	}
	scope := ctx.Scope
	if scope == nil {
		scope = map[string]any{}
	}
	env["event"] = event
	env["scope"] = scope
	env["now"] = ctx.timestamp()
	env["args"] = ctx.Args
	env["rule"] = ctx.label()
	return env
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct {
	name string
}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// WithRuleName labels a compiled rule. The name is used when the evaluation
// context does not carry one.
func WithRuleName(name string) CompileOption {
	return compileOptionFunc(func(cfg *compileConfig) {
		cfg.name = name
	})
}

func applyCompileOptions(opts []CompileOption) compileConfig {
	cfg := compileConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyCompileOption(&cfg)
		}
	}
	return cfg
}
