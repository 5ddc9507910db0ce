package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	hub "github.com/goliatone/go-hub"
	"github.com/goliatone/go-hub/pkg/state"
	"github.com/spf13/cobra"
)

// NewScopesCmd creates the "scopes" subcommand.
func NewScopesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scopes",
		Short: "List persisted scope snapshots",
		Long: "Scopes lists the snapshots a client persisted. With --resolve the named refs " +
			"(kind or kind:id, strongest first) are merged into one snapshot.",
		Args: cobra.NoArgs,
		RunE: runScopes,
	}

	cmd.Flags().String("dsn", "", "SQLite DSN (overrides config)")
	cmd.Flags().String("domain", "", "Scope domain (overrides config)")
	cmd.Flags().StringArray("resolve", nil, "Ref to merge, e.g. user:u-1 or global (repeatable)")
	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

func runScopes(cmd *cobra.Command, _ []string) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	storeOpts := storeFlags(cmd, opts.Store)
	store, closer, ok, err := openStore(storeOpts)
	if err != nil {
		return err
	}
	defer closer.Close()
	if !ok {
		return exitError(exitConfig, "no scope store configured; pass --dsn or set store.driver")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	format, _ := cmd.Flags().GetString("format")
	specs, _ := cmd.Flags().GetStringArray("resolve")
	if len(specs) > 0 {
		return resolveScopes(ctx, cmd, store, storeOpts.Domain, specs)
	}

	records, err := store.List(ctx, storeOpts.Domain)
	if err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(cmd.OutOrStdout(), records)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tID\tETAG\tUPDATED\tUSER\tTAGS\tBREADCRUMBS")
	for _, record := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			record.Ref.Kind,
			dash(record.Ref.ID),
			record.Meta.ETag,
			record.Meta.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
			dash(record.Snapshot.User.ID),
			len(record.Snapshot.Tags),
			len(record.Snapshot.Breadcrumbs),
		)
	}
	return tw.Flush()
}

func resolveScopes(ctx context.Context, cmd *cobra.Command, store state.Store[hub.ScopeSnapshot], domain string, specs []string) error {
	refs := make([]state.Ref, 0, len(specs))
	for _, spec := range specs {
		ref, err := parseRef(domain, spec)
		if err != nil {
			return exitError(exitFailure, "%v", err)
		}
		refs = append(refs, ref)
	}
	snapshot, metas, err := state.Resolver[hub.ScopeSnapshot]{Store: store}.Resolve(ctx, refs...)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return exitError(exitNotFound, "no snapshot found for %s", strings.Join(specs, ", "))
		}
		return err
	}
	return writeJSON(cmd.OutOrStdout(), struct {
		Snapshot hub.ScopeSnapshot `json:"snapshot"`
		Sources  []state.Meta      `json:"sources"`
	}{snapshot, metas})
}

func parseRef(domain, spec string) (state.Ref, error) {
	kind, id, _ := strings.Cut(strings.TrimSpace(spec), ":")
	ref := state.Ref{Domain: domain, Kind: kind, ID: id}
	if _, err := ref.Identifier(); err != nil {
		return state.Ref{}, fmt.Errorf("invalid ref %q: %w", spec, err)
	}
	return ref, nil
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
