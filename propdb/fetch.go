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
	"fmt"

	"github.com/jackc/pgx/v5"
)

const fetchRowsSQL = `SELECT application, profile, label, key, value
FROM properties
WHERE application = $1 AND profile = $2 AND label = $3
ORDER BY key`

// FetchRows returns every property row matching exactly the given scope.
// No fallback of any kind happens here; an empty profile is normalized to
// the "default" sentinel and an empty label means unscoped configuration.
// An empty result is not an error.
func (s *Store) FetchRows(ctx context.Context, application, profile, label string) ([]PropertyRow, error) {
	if application == "" {
		return nil, fmt.Errorf("application must not be empty")
	}
	if profile == "" {
		profile = DefaultProfile
	}

	ctx, cancel := s.fetchContext(ctx)
	defer cancel()

	rows, err := s.connPool.Query(ctx, fetchRowsSQL, application, profile, label)
	if err != nil {
		return nil, fmt.Errorf("%w: query properties %s/%s/%s: %v", ErrStoreUnavailable, application, profile, label, err)
	}
	defer rows.Close()

	return scanPropertyRows(rows)
}

// FetchRowsBatch fetches every requested (profile, label) scope for one
// application in a single round trip. Results are re-grouped by scope, not
// consumed in arrival order; scopes with no rows are absent from the map.
func (s *Store) FetchRowsBatch(ctx context.Context, application string, pairs []ScopePair) (map[ScopePair][]PropertyRow, error) {
	if application == "" {
		return nil, fmt.Errorf("application must not be empty")
	}
	grouped := make(map[ScopePair][]PropertyRow, len(pairs))
	if len(pairs) == 0 {
		return grouped, nil
	}

	ctx, cancel := s.fetchContext(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, pair := range pairs {
		profile := pair.Profile
		if profile == "" {
			profile = DefaultProfile
		}
		batch.Queue(fetchRowsSQL, application, profile, pair.Label)
	}

	results := s.connPool.SendBatch(ctx, batch)
	defer func() {
		_ = results.Close()
	}()

	for _, pair := range pairs {
		rows, err := results.Query()
		if err != nil {
			return nil, fmt.Errorf("%w: batch query properties %s/%s: %v", ErrStoreUnavailable, application, pair, err)
		}
		scanned, err := scanPropertyRows(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		if len(scanned) > 0 {
			grouped[pair] = scanned
		}
	}

	return grouped, nil
}

func (s *Store) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

func scanPropertyRows(rows pgx.Rows) ([]PropertyRow, error) {
	var out []PropertyRow
	for rows.Next() {
		var row PropertyRow
		if err := rows.Scan(&row.Application, &row.Profile, &row.Label, &row.Key, &row.Value); err != nil {
			return nil, fmt.Errorf("%w: scan property row: %v", ErrStoreUnavailable, err)
		}
		if err := validateRow(row); err != nil {
			return nil, fmt.Errorf("malformed property row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read property rows: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}
