// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/confrunner/config"
	"github.com/cardinalhq/confrunner/internal/rescache"
	"github.com/cardinalhq/confrunner/propdb"
	"github.com/cardinalhq/confrunner/resolver"
)

// Exit codes map the error taxonomy for scripting callers; an HTTP layer
// would map the same taxonomy to 4xx/503/500.
const (
	exitInvalidRequest   = 2
	exitStoreUnavailable = 3
	exitDataIntegrity    = 4
)

func init() {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve one application's configuration environment and print it",
		RunE: func(c *cobra.Command, _ []string) error {
			application, _ := c.Flags().GetString("application")
			profiles, _ := c.Flags().GetStringSlice("profiles")
			label, _ := c.Flags().GetString("label")
			output, _ := c.Flags().GetString("output")

			ctx, cancel := setupTelemetry("confrunner-resolve")
			defer cancel()

			env, err := runResolve(ctx, application, profiles, label)
			if err != nil {
				slog.Error("resolve failed", slog.Any("error", err))
				os.Exit(exitCode(err))
			}
			return printEnvironment(env, output)
		},
	}
	cmd.Flags().String("application", "", "application name to resolve")
	cmd.Flags().StringSlice("profiles", nil, "ordered profile list, highest precedence first")
	cmd.Flags().String("label", "", "label (branch/version tag), empty for latest")
	cmd.Flags().String("output", "json", "output format: json or yaml")
	_ = cmd.MarkFlagRequired("application")
	rootCmd.AddCommand(cmd)
}

func runResolve(ctx context.Context, application string, profiles []string, label string) (*resolver.Environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := propdb.PropDBStore(ctx, propdb.WithQueryTimeout(cfg.Store.QueryTimeout))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", propdb.ErrStoreUnavailable, err)
	}
	defer store.Close()

	var cache *rescache.Cache[*resolver.Environment]
	if !cfg.Cache.Disabled {
		cache = rescache.New[*resolver.Environment](cfg.Cache.TTL)
		defer cache.Stop()
	}

	r := resolver.New(store, cache, resolver.Options{LabelFallback: cfg.Resolver.LabelFallback})
	return r.Resolve(ctx, application, profiles, label)
}

func printEnvironment(env *resolver.Environment, output string) error {
	switch output {
	case "yaml":
		out, err := yaml.Marshal(env)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
	default:
		out, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}

func exitCode(err error) int {
	var integrity *resolver.DataIntegrityError
	switch {
	case errors.Is(err, resolver.ErrInvalidRequest):
		return exitInvalidRequest
	case errors.Is(err, propdb.ErrStoreUnavailable):
		return exitStoreUnavailable
	case errors.As(err, &integrity):
		return exitDataIntegrity
	default:
		return 1
	}
}
