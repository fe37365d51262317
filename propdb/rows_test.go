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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopePairString(t *testing.T) {
	assert.Equal(t, "dev/main", ScopePair{Profile: "dev", Label: "main"}.String())
	assert.Equal(t, "default", ScopePair{Profile: "default"}.String())
}

func TestValidateRow(t *testing.T) {
	good := PropertyRow{Application: "billing", Profile: "dev", Key: "timeout"}
	assert.NoError(t, validateRow(good))

	tests := []struct {
		name string
		row  PropertyRow
	}{
		{"missing application", PropertyRow{Profile: "dev", Key: "k"}},
		{"missing profile", PropertyRow{Application: "billing", Key: "k"}},
		{"missing key", PropertyRow{Application: "billing", Profile: "dev"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, validateRow(tt.row))
		})
	}
}
