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

package propdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/confrunner/internal/dbopen"
	propdbmigrations "github.com/cardinalhq/confrunner/propdb/migrations"
)

// ConnectToPropDB opens a connection pool to PROPDB using the PROPDB_*
// environment variables and verifies the schema is at the expected
// migration version.
func ConnectToPropDB(ctx context.Context) (*pgxpool.Pool, error) {
	connectionString, err := dbopen.GetDatabaseURLFromEnv("PROPDB")
	if err != nil {
		return nil, errors.Join(dbopen.ErrDatabaseNotConfigured, fmt.Errorf("failed to get PROPDB connection string: %w", err))
	}

	pool, err := newConnectionPool(ctx, connectionString)
	if err != nil {
		return nil, err
	}

	if err := propdbmigrations.CheckVersion(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PROPDB migration version check failed: %w", err)
	}

	return pool, nil
}

// PropDBStore connects to PROPDB and wraps the pool in a Store.
func PropDBStore(ctx context.Context, opts ...Option) (*Store, error) {
	pool, err := ConnectToPropDB(ctx)
	if err != nil {
		return nil, err
	}
	return NewStore(pool, opts...), nil
}

func newConnectionPool(ctx context.Context, connectionString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PROPDB connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PROPDB connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PROPDB: %w", err)
	}

	return pool, nil
}
