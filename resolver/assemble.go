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
	"sort"

	"github.com/cardinalhq/confrunner/propdb"
)

// PropertySource is one named mapping of configuration keys to values
// contributed by a single (profile, label) scope. A nil value is an
// explicit unset: when a consumer flattens sources, a nil at a
// higher-precedence source must shadow lower-precedence values for the
// same key, not let them leak through.
type PropertySource struct {
	Name       string             `json:"name" yaml:"name"`
	Properties map[string]*string `json:"properties" yaml:"properties"`

	// Keys holds the property keys in sorted order for deterministic
	// rendering and comparison.
	Keys []string `json:"-" yaml:"-"`
}

// Environment is the resolution result: the ordered property sources for
// one application, highest precedence first, plus the profiles and label
// actually searched (fallbacks included). Immutable after construction.
type Environment struct {
	Application string           `json:"application" yaml:"application"`
	Profiles    []string         `json:"profiles" yaml:"profiles"`
	Label       string           `json:"label,omitempty" yaml:"label,omitempty"`
	Sources     []PropertySource `json:"propertySources" yaml:"propertySources"`
}

// Assemble merges fetched rows into an Environment. One source is built
// per scope in spec order; scopes with zero rows contribute no source at
// all, never an empty one. Key conflicts across sources are left to the
// consumer (precedence is expressed by source order); key conflicts within
// one scope are corrupt data and fail with a DataIntegrityError.
func Assemble(application string, spec SearchSpec, grouped map[propdb.ScopePair][]propdb.PropertyRow) (*Environment, error) {
	env := &Environment{
		Application: application,
		Profiles:    spec.Profiles(),
		Sources:     []PropertySource{},
	}

	for _, pair := range spec {
		rows := grouped[pair]
		if len(rows) == 0 {
			continue
		}

		source := PropertySource{
			Name:       sourceName(application, pair),
			Properties: make(map[string]*string, len(rows)),
			Keys:       make([]string, 0, len(rows)),
		}

		var duplicates []string
		for _, row := range rows {
			if _, ok := source.Properties[row.Key]; ok {
				duplicates = append(duplicates, row.Key)
				continue
			}
			source.Properties[row.Key] = row.Value
			source.Keys = append(source.Keys, row.Key)
		}
		if len(duplicates) > 0 {
			sort.Strings(duplicates)
			return nil, &DataIntegrityError{
				Application: application,
				Profile:     pair.Profile,
				Label:       pair.Label,
				Keys:        uniqueSorted(duplicates),
			}
		}

		sort.Strings(source.Keys)
		env.Sources = append(env.Sources, source)
	}

	return env, nil
}

func sourceName(application string, pair propdb.ScopePair) string {
	name := application + "-" + pair.Profile
	if pair.Label != propdb.NoLabel {
		name += "-" + pair.Label
	}
	return name
}

func uniqueSorted(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
