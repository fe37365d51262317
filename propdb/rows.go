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
	"errors"
	"fmt"
)

const (
	// DefaultProfile is the sentinel profile every application falls back to.
	DefaultProfile = "default"

	// NoLabel is the empty label, meaning unscoped ("latest") configuration.
	NoLabel = ""
)

// ErrStoreUnavailable indicates the underlying query could not be executed
// (connectivity, timeout). It is distinct from "no rows found", which is an
// empty, error-free result.
var ErrStoreUnavailable = errors.New("property store unavailable")

// PropertyRow is one stored key/value pair, scoped to an application,
// profile, and label. A nil Value is an explicit unset, distinct from the
// key being absent.
type PropertyRow struct {
	Application string
	Profile     string
	Label       string
	Key         string
	Value       *string
}

// ScopePair identifies one (profile, label) scope within an application.
type ScopePair struct {
	Profile string
	Label   string
}

func (p ScopePair) String() string {
	if p.Label == NoLabel {
		return p.Profile
	}
	return p.Profile + "/" + p.Label
}

// validateRow rejects rows the authoring system should never have written.
// Missing scope fields would silently land a row in the wrong source, so
// they are an error at the storage boundary.
func validateRow(row PropertyRow) error {
	if row.Application == "" {
		return fmt.Errorf("row with key %q has empty application", row.Key)
	}
	if row.Profile == "" {
		return fmt.Errorf("row with key %q has empty profile", row.Key)
	}
	if row.Key == "" {
		return fmt.Errorf("row in scope %s/%s has empty key", row.Application, row.Profile)
	}
	return nil
}
