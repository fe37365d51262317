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
	"fmt"
	"strings"
)

// ErrInvalidRequest indicates a malformed application name, profile, or
// label. Rejected before any store access and never worth retrying.
var ErrInvalidRequest = errors.New("invalid resolution request")

// DataIntegrityError reports duplicate (application, profile, label, key)
// rows found during assembly. Retrying will not change corrupt source
// data, so callers must treat this as non-retryable. The offending keys
// are carried for operator remediation; they are never silently collapsed
// by last-write-wins.
type DataIntegrityError struct {
	Application string
	Profile     string
	Label       string
	Keys        []string
}

func (e *DataIntegrityError) Error() string {
	scope := e.Application + "/" + e.Profile
	if e.Label != "" {
		scope += "/" + e.Label
	}
	return fmt.Sprintf("duplicate property rows in %s for key(s) %s", scope, strings.Join(e.Keys, ", "))
}
