package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	hub "github.com/goliatone/go-hub"
	"github.com/goliatone/go-hub/client"
	"github.com/goliatone/go-hub/hubotel"
	"github.com/goliatone/go-hub/pkg/state"
	"github.com/goliatone/go-hub/rules"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

// NewCaptureCmd creates the "capture" subcommand.
func NewCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture [message]",
		Short: "Capture a message, error or event file and print the sent event",
		Long: "Capture builds a hub bound to a client that writes events as JSON lines to stdout. " +
			"Scope data given by flags is applied first and persisted when a store is configured.",
		Args: cobra.MaximumNArgs(1),
		RunE: runCapture,
	}

	cmd.Flags().StringP("event", "e", "", "Capture a JSON or YAML event file")
	cmd.Flags().Bool("exception", false, "Capture the message as an error")
	cmd.Flags().String("user", "", "User ID set on the scope")
	cmd.Flags().StringToString("tag", nil, "Scope tags (repeatable, key=value)")
	cmd.Flags().StringArray("breadcrumb", nil, "Breadcrumb message recorded before the capture (repeatable)")
	cmd.Flags().Bool("legacy", false, "Write exceptions in the {\"values\": [...]} envelope")
	cmd.Flags().String("dsn", "", "SQLite DSN for persisted scopes (overrides config)")
	cmd.Flags().String("domain", "", "Scope store domain (overrides config)")
	cmd.Flags().Duration("timeout", 10*time.Second, "Delivery timeout")

	return cmd
}

func runCapture(cmd *cobra.Command, args []string) error {
	eventPath, _ := cmd.Flags().GetString("event")
	if len(args) == 0 && eventPath == "" {
		return exitError(exitFailure, "capture needs a message or --event")
	}

	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	opts.Store = storeFlags(cmd, opts.Store)
	logger := newLogger(cmd)

	userID, _ := cmd.Flags().GetString("user")
	store, closer, hasStore, err := openStore(opts.Store)
	if err != nil {
		return err
	}
	defer closer.Close()

	var backendOpts []client.BackendOption
	if hasStore {
		backendOpts = append(backendOpts, client.WithScopeStore(store, scopeRef(opts.Store.Domain, userID)))
	}
	if legacy, _ := cmd.Flags().GetBool("legacy"); legacy {
		backendOpts = append(backendOpts, client.WithLegacyExceptionFormat())
	}
	backend, err := hubotel.Instrument(
		client.NewWriterBackend(cmd.OutOrStdout(), backendOpts...),
		otel.Tracer("hubctl"),
		otel.Meter("hubctl"),
	)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	var results []client.Result
	timeout, _ := cmd.Flags().GetDuration("timeout")
	c, err := client.New(opts, backend,
		client.WithLogger(logger.Named("client")),
		client.WithFilterOptions(rules.WithLogger(logger.Named("rules"))),
		client.WithSendTimeout(timeout),
		client.WithResultHook(func(result client.Result) {
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}),
	)
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}
	if err := c.Install(); err != nil {
		if errors.Is(err, hub.ErrNotInstalled) {
			fmt.Fprintln(cmd.ErrOrStderr(), "client disabled, nothing captured")
			return nil
		}
		return err
	}

	handle := hub.NewHandle(hub.WithHubOptions(hub.WithLogger(logger.Named("hub"))))
	ctx := hub.Isolate(cmd.Context())
	handle.BindClient(ctx, c)
	if err := applyScopeFlags(ctx, cmd, handle, userID); err != nil {
		return err
	}

	switch {
	case eventPath != "":
		payload, err := readPayload(eventPath)
		if err != nil {
			return err
		}
		event, err := client.EventFromPayload(eventPath, payload)
		if err != nil {
			return exitError(exitInputParse, "%v", err)
		}
		handle.CaptureEvent(ctx, event)
	default:
		message := args[0]
		if asError, _ := cmd.Flags().GetBool("exception"); asError {
			handle.CaptureException(ctx, errors.New(message))
		} else {
			handle.CaptureMessage(ctx, message)
		}
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.Close(flushCtx); err != nil {
		return exitError(exitSendFailed, "%v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return reportResults(cmd, results)
}

func scopeRef(domain, userID string) state.Ref {
	if userID != "" {
		return state.Ref{Domain: domain, Kind: state.KindUser, ID: userID}
	}
	return state.Ref{Domain: domain, Kind: state.KindGlobal}
}

func applyScopeFlags(ctx context.Context, cmd *cobra.Command, handle *hub.Handle, userID string) error {
	tags, _ := cmd.Flags().GetStringToString("tag")
	crumbs, _ := cmd.Flags().GetStringArray("breadcrumb")

	handle.ConfigureScope(ctx, func(scope *hub.Scope) {
		if userID != "" {
			scope.SetUser(hub.User{ID: userID})
		}
		if len(tags) > 0 {
			scope.SetTags(tags)
		}
	})
	for _, message := range crumbs {
		message = strings.TrimSpace(message)
		if message == "" {
			continue
		}
		handle.AddBreadcrumb(ctx, hub.Breadcrumb{Category: "hubctl", Message: message, Level: hub.LevelInfo})
	}
	return nil
}

func reportResults(cmd *cobra.Command, results []client.Result) error {
	stderr := cmd.ErrOrStderr()
	var failed []error
	for _, result := range results {
		switch result.Status {
		case client.StatusSkipped:
			fmt.Fprintf(stderr, "event %s skipped by %s\n", result.EventID, result.Rule)
		case client.StatusSuccess:
			fmt.Fprintf(stderr, "event %s sent\n", result.EventID)
		default:
			err := result.Err
			if err == nil {
				err = fmt.Errorf("status %s", result.Status)
			}
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return exitError(exitSendFailed, "capture failed: %v", errors.Join(failed...))
	}
	return nil
}
