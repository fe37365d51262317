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
	"slices"

	"github.com/cardinalhq/confrunner/propdb"
)

// SearchSpec is the ordered list of (profile, label) scopes to query for
// one request. Order is the contract downstream components rely on: the
// first scope that defines a key wins when a consumer flattens sources.
// Built fresh per request; never shared.
type SearchSpec []propdb.ScopePair

// Options controls resolution policy.
type Options struct {
	// LabelFallback appends the full profile list paired with the empty
	// label when the requested label is non-empty, so label-specific gaps
	// fall back to unlabeled configuration without displacing
	// label-specific hits.
	LabelFallback bool
}

// DefaultOptions returns the stock resolution policy.
func DefaultOptions() Options {
	return Options{LabelFallback: true}
}

// ExpandProfiles turns the requested profile list and label into the
// complete ordered search sequence:
//
//  1. requested profiles in the order given, first = highest precedence
//  2. "default" appended at the end unless already present
//  3. every profile paired with the requested label
//  4. when the label is non-empty (and label fallback is enabled), the
//     same profile list paired with the empty label
//
// Exact duplicate scopes keep only their first, highest-precedence
// occurrence. An empty profile list expands to the default profile alone.
func ExpandProfiles(profiles []string, label string, opts Options) SearchSpec {
	expanded := make([]string, 0, len(profiles)+1)
	for _, p := range profiles {
		if p != "" {
			expanded = append(expanded, p)
		}
	}
	if !slices.Contains(expanded, propdb.DefaultProfile) {
		expanded = append(expanded, propdb.DefaultProfile)
	}

	spec := make(SearchSpec, 0, 2*len(expanded))
	seen := make(map[propdb.ScopePair]struct{}, 2*len(expanded))
	add := func(pair propdb.ScopePair) {
		if _, ok := seen[pair]; ok {
			return
		}
		seen[pair] = struct{}{}
		spec = append(spec, pair)
	}

	for _, p := range expanded {
		add(propdb.ScopePair{Profile: p, Label: label})
	}
	if label != propdb.NoLabel && opts.LabelFallback {
		for _, p := range expanded {
			add(propdb.ScopePair{Profile: p, Label: propdb.NoLabel})
		}
	}

	return spec
}

// Profiles returns the distinct profiles in spec order, reported on the
// Environment so callers can see which fallbacks participated.
func (s SearchSpec) Profiles() []string {
	out := make([]string, 0, len(s))
	for _, pair := range s {
		if !slices.Contains(out, pair.Profile) {
			out = append(out, pair.Profile)
		}
	}
	return out
}
