package cli

import (
	"fmt"

	hub "github.com/goliatone/go-hub"
	"github.com/goliatone/go-hub/client"
	"github.com/goliatone/go-hub/internal/hydrate"
	"github.com/goliatone/go-hub/rules"
	"github.com/spf13/cobra"
)

// NewRulesCmd creates the "rules" command group.
func NewRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Work with event ignore rules",
	}
	cmd.AddCommand(newRulesCheckCmd())
	return cmd
}

func newRulesCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <event-file>",
		Short: "Evaluate ignore rules against an event file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRulesCheck,
	}

	cmd.Flags().StringArray("rule", nil, "Ignore rule (repeatable, replaces configured rules)")
	cmd.Flags().String("engine", "", "Rule engine: expr | cel | js (overrides config)")
	cmd.Flags().Bool("fail-on-match", false, "Exit with code 1 when a rule matches")

	return cmd
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if flagRules, _ := cmd.Flags().GetStringArray("rule"); len(flagRules) > 0 {
		opts.IgnoreRules = flagRules
	}
	if engine, _ := cmd.Flags().GetString("engine"); engine != "" {
		opts.RuleEngine = engine
	}

	payload, err := readPayload(args[0])
	if err != nil {
		return err
	}
	event, err := client.EventFromPayload(args[0], payload)
	if err != nil {
		return exitError(exitInputParse, "%v", err)
	}
	snapshot, err := scopeFromPayload(args[0], payload)
	if err != nil {
		return exitError(exitInputParse, "%v", err)
	}
	client.ApplyScope(event, snapshot, opts.MaxBreadcrumbs)
	eventPayload, err := client.PayloadFromEvent(event, false)
	if err != nil {
		return err
	}

	logger := newLogger(cmd)
	filter, err := rules.NewFilter(opts.RuleEngine, opts.IgnoreRules, rules.WithLogger(logger.Named("rules")))
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}
	scope, _ := payload["scope"].(map[string]any)
	match, evalErr := filter.Match(rules.RuleContext{Event: eventPayload, Scope: scope})

	out := cmd.OutOrStdout()
	if evalErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", evalErr)
	}
	if !match.Matched {
		fmt.Fprintf(out, "no rule matched (%d rules, engine %s)\n", filter.Len(), filter.Engine())
		return nil
	}
	fmt.Fprintf(out, "matched %s: %s\n", match.Rule, match.Expr)
	if fail, _ := cmd.Flags().GetBool("fail-on-match"); fail {
		return exitError(exitFailure, "event would be ignored")
	}
	return nil
}

var scopeDecoder = hydrate.NewDecoder[hub.ScopeSnapshot](hydrate.WithDisallowUnknownFields[hub.ScopeSnapshot]())

// scopeFromPayload decodes the optional "scope" object of an event file.
func scopeFromPayload(source string, payload map[string]any) (hub.ScopeSnapshot, error) {
	raw, ok := payload["scope"].(map[string]any)
	if !ok {
		return hub.ScopeSnapshot{}, nil
	}
	return scopeDecoder.Decode(hydrate.Context{Source: source, Kind: "scope"}, raw)
}
