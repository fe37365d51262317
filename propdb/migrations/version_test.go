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

package migrations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestMigrationVersion(t *testing.T) {
	version, err := latestMigrationVersion(migrationFiles)
	require.NoError(t, err)
	assert.EqualValues(t, 1756300000, version)
}

func TestGetCheckConfig_Defaults(t *testing.T) {
	t.Setenv("PROPDB_MIGRATION_CHECK_ENABLED", "")
	t.Setenv("PROPDB_MIGRATION_CHECK_TIMEOUT", "")
	t.Setenv("PROPDB_MIGRATION_CHECK_RETRY_INTERVAL", "")
	t.Setenv("PROPDB_MIGRATION_CHECK_ALLOW_DIRTY", "")

	cfg := getCheckConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 5*time.Second, cfg.RetryInterval)
	assert.False(t, cfg.AllowDirty)
}

func TestGetCheckConfig_Overrides(t *testing.T) {
	t.Setenv("PROPDB_MIGRATION_CHECK_ENABLED", "false")
	t.Setenv("PROPDB_MIGRATION_CHECK_TIMEOUT", "10s")
	t.Setenv("PROPDB_MIGRATION_CHECK_RETRY_INTERVAL", "1s")
	t.Setenv("PROPDB_MIGRATION_CHECK_ALLOW_DIRTY", "true")

	cfg := getCheckConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, time.Second, cfg.RetryInterval)
	assert.True(t, cfg.AllowDirty)
}
