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
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides all functions to execute property reads against PROPDB.
type Store struct {
	connPool     *pgxpool.Pool
	queryTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithQueryTimeout bounds every fetch issued by the store. Zero disables
// the store-level bound; callers may still carry their own deadline.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.queryTimeout = d
	}
}

// NewStore creates a new Store over an existing connection pool.
func NewStore(connPool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		connPool:     connPool,
		queryTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.connPool
}

func (s *Store) Close() {
	if s.connPool != nil {
		s.connPool.Close()
	}
}
