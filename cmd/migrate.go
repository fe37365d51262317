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
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/confrunner/internal/dbopen"
	propdbmigrations "github.com/cardinalhq/confrunner/propdb/migrations"
)

func init() {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply PROPDB schema migrations",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cancel := setupTelemetry("confrunner-migrate")
			defer cancel()

			// Connect without the version check; we are the ones bringing
			// the schema up to date.
			connectionString, err := dbopen.GetDatabaseURLFromEnv("PROPDB")
			if err != nil {
				return fmt.Errorf("failed to get PROPDB connection string: %w", err)
			}
			pool, err := pgxpool.New(ctx, connectionString)
			if err != nil {
				return fmt.Errorf("failed to create PROPDB connection pool: %w", err)
			}
			defer pool.Close()

			if err := propdbmigrations.RunMigrationsUp(ctx, pool); err != nil {
				return fmt.Errorf("failed to run PROPDB migrations: %w", err)
			}
			slog.Info("PROPDB migrations applied")
			return nil
		},
	}
	rootCmd.AddCommand(cmd)
}
