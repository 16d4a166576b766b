// Copyright 2024 the vpn-operator contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vpnutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeepMerge(t *testing.T) {
	cases := []struct {
		name     string
		base     map[string]any
		override map[string]any
		want     map[string]any
	}{
		{
			name:     "nil override is no-op",
			base:     map[string]any{"a": 1.0},
			override: nil,
			want:     map[string]any{"a": 1.0},
		},
		{
			name:     "scalar override replaces wholesale",
			base:     map[string]any{"image": "old"},
			override: map[string]any{"image": "new"},
			want:     map[string]any{"image": "new"},
		},
		{
			name:     "null override deletes key",
			base:     map[string]any{"image": "old", "keep": true},
			override: map[string]any{"image": nil},
			want:     map[string]any{"keep": true},
		},
		{
			name: "nested object merges recursively",
			base: map[string]any{
				"resources": map[string]any{"cpu": "100m", "memory": "64Mi"},
			},
			override: map[string]any{
				"resources": map[string]any{"cpu": "200m"},
			},
			want: map[string]any{
				"resources": map[string]any{"cpu": "200m", "memory": "64Mi"},
			},
		},
		{
			name: "array override replaces wholesale, not merges",
			base: map[string]any{
				"env": []any{map[string]any{"name": "A", "value": "1"}},
			},
			override: map[string]any{
				"env": []any{map[string]any{"name": "B", "value": "2"}},
			},
			want: map[string]any{
				"env": []any{map[string]any{"name": "B", "value": "2"}},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeepMerge(tc.base, tc.override)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMergeJSON(t *testing.T) {
	base := []byte(`{"image":"curlimages/curl:7.88.1","env":[{"name":"A"}]}`)
	override := []byte(`{"image":"curlimages/curl:8.0.0"}`)
	merged, err := MergeJSON(base, override)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"image":"curlimages/curl:8.0.0","env":[{"name":"A"}]}`, string(merged))
}

func TestMergeJSONEmptyOverrideIsNoOp(t *testing.T) {
	base := []byte(`{"image":"x"}`)
	merged, err := MergeJSON(base, nil)
	assert.NoError(t, err)
	assert.Equal(t, base, merged)
}
