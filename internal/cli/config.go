package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	hub "github.com/goliatone/go-hub"
	"github.com/goliatone/go-hub/client"
	"github.com/goliatone/go-hub/pkg/state"
	"github.com/goliatone/go-hub/pkg/zaplog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// AddGlobalFlags registers the flags every command reads.
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", "", "Client options file (YAML)")
	cmd.PersistentFlags().Bool("verbose", false, "Log hub operations to stderr")
}

func loadOptions(cmd *cobra.Command) (client.Options, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return client.DefaultOptions(), nil
	}
	opts, err := client.LoadOptions(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return client.Options{}, exitError(exitFileNotFound, "config not found: %s", path)
		}
		return client.Options{}, exitError(exitConfig, "%v", err)
	}
	return opts, nil
}

func newLogger(cmd *cobra.Command) *zaplog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return zaplog.New(nil)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	if err != nil {
		return zaplog.New(nil)
	}
	return zaplog.New(log)
}

type scopeStore interface {
	state.Store[hub.ScopeSnapshot]
	state.Lister[hub.ScopeSnapshot]
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore opens the scope store named by opts. ok is false when no store
// is configured.
func openStore(opts client.StoreOptions) (store scopeStore, closer io.Closer, ok bool, err error) {
	switch strings.ToLower(opts.Driver) {
	case "":
		return nil, nopCloser{}, false, nil
	case "memory":
		return state.NewMemoryStore[hub.ScopeSnapshot](), nopCloser{}, true, nil
	case "sqlite":
		sqlite, err := state.NewSQLiteStore[hub.ScopeSnapshot](state.SQLiteStoreConfig{DSN: opts.DSN})
		if err != nil {
			return nil, nil, false, exitError(exitConfig, "%v", err)
		}
		return sqlite, sqlite, true, nil
	default:
		return nil, nil, false, exitError(exitConfig, "unknown store driver %q", opts.Driver)
	}
}

// storeFlags lets --dsn override the configured store.
func storeFlags(cmd *cobra.Command, opts client.StoreOptions) client.StoreOptions {
	if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
		opts.Driver = "sqlite"
		opts.DSN = dsn
	}
	if domain, _ := cmd.Flags().GetString("domain"); domain != "" {
		opts.Domain = domain
	}
	return opts
}

// readPayload reads a JSON or YAML object from path.
func readPayload(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "file not found: %s", path)
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var payload map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &payload)
	default:
		err = json.Unmarshal(data, &payload)
	}
	if err != nil {
		return nil, exitError(exitInputParse, "parse %s: %v", path, err)
	}
	if payload == nil {
		return nil, exitError(exitInputParse, "parse %s: expected an object", path)
	}
	return payload, nil
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
