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

package resolver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/confrunner/propdb"
)

func strptr(s string) *string {
	return &s
}

func row(app, profile, label, key string, value *string) propdb.PropertyRow {
	return propdb.PropertyRow{Application: app, Profile: profile, Label: label, Key: key, Value: value}
}

func TestAssemble_BillingScenario(t *testing.T) {
	spec := ExpandProfiles([]string{"dev"}, "main", DefaultOptions())
	grouped := map[propdb.ScopePair][]propdb.PropertyRow{
		pair("dev", "main"): {
			row("billing", "dev", "main", "timeout", strptr("30")),
		},
		pair("default", "main"): {
			row("billing", "default", "main", "timeout", strptr("10")),
			row("billing", "default", "main", "retries", strptr("3")),
		},
	}

	env, err := Assemble("billing", spec, grouped)
	require.NoError(t, err)

	require.Len(t, env.Sources, 2)
	assert.Equal(t, "billing-dev-main", env.Sources[0].Name)
	assert.Equal(t, map[string]*string{"timeout": strptr("30")}, env.Sources[0].Properties)
	assert.Equal(t, "billing-default-main", env.Sources[1].Name)
	assert.Equal(t, map[string]*string{"timeout": strptr("10"), "retries": strptr("3")}, env.Sources[1].Properties)
	assert.Equal(t, []string{"dev", "default"}, env.Profiles)
}

func TestAssemble_EmptyScopesContributeNoSource(t *testing.T) {
	spec := ExpandProfiles([]string{"dev"}, "main", DefaultOptions())
	grouped := map[propdb.ScopePair][]propdb.PropertyRow{
		pair("default", ""): {
			row("app", "default", "", "k", strptr("v")),
		},
	}

	env, err := Assemble("app", spec, grouped)
	require.NoError(t, err)

	// dev/main, default/main, and dev/"" had no rows; only default/"" shows.
	require.Len(t, env.Sources, 1)
	assert.Equal(t, "app-default", env.Sources[0].Name)
}

func TestAssemble_NoRowsAtAll(t *testing.T) {
	spec := ExpandProfiles(nil, "", DefaultOptions())

	env, err := Assemble("ghost", spec, nil)
	require.NoError(t, err)
	assert.NotNil(t, env.Sources)
	assert.Empty(t, env.Sources)
}

func TestAssemble_NilValuePreserved(t *testing.T) {
	spec := SearchSpec{pair("dev", "")}
	grouped := map[propdb.ScopePair][]propdb.PropertyRow{
		pair("dev", ""): {
			row("app", "dev", "", "feature.enabled", nil),
		},
	}

	env, err := Assemble("app", spec, grouped)
	require.NoError(t, err)

	require.Len(t, env.Sources, 1)
	v, ok := env.Sources[0].Properties["feature.enabled"]
	require.True(t, ok, "explicitly unset key must still be present")
	assert.Nil(t, v)
}

func TestAssemble_DuplicateKeysFail(t *testing.T) {
	spec := SearchSpec{pair("dev", "main")}
	grouped := map[propdb.ScopePair][]propdb.PropertyRow{
		pair("dev", "main"): {
			row("app", "dev", "main", "timeout", strptr("30")),
			row("app", "dev", "main", "timeout", strptr("60")),
		},
	}

	env, err := Assemble("app", spec, grouped)
	require.Error(t, err)
	assert.Nil(t, env)

	var integrity *DataIntegrityError
	require.True(t, errors.As(err, &integrity))
	assert.Equal(t, "app", integrity.Application)
	assert.Equal(t, "dev", integrity.Profile)
	assert.Equal(t, "main", integrity.Label)
	assert.Equal(t, []string{"timeout"}, integrity.Keys)
	assert.Contains(t, integrity.Error(), "app/dev/main")
}

func TestAssemble_SortedKeys(t *testing.T) {
	spec := SearchSpec{pair("dev", "")}
	grouped := map[propdb.ScopePair][]propdb.PropertyRow{
		pair("dev", ""): {
			row("app", "dev", "", "zeta", strptr("1")),
			row("app", "dev", "", "alpha", strptr("2")),
		},
	}

	env, err := Assemble("app", spec, grouped)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, env.Sources[0].Keys)
}

func TestSourceName(t *testing.T) {
	assert.Equal(t, "billing-dev-main", sourceName("billing", pair("dev", "main")))
	assert.Equal(t, "billing-default", sourceName("billing", pair("default", "")))
}
