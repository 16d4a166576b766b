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

import "encoding/json"

func decodeObject(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func encodeObject(obj map[string]any) ([]byte, error) {
	return json.Marshal(obj)
}

// DeepMerge recursively merges override onto base. A null value in
// override deletes the corresponding key from base. Nested objects are
// merged recursively; any other value type (arrays, scalars) in override
// replaces the corresponding value in base wholesale. Used to blend
// user-supplied overrides into the controller-built verification pod
// template.
func DeepMerge(base, override map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if v == nil {
			delete(out, k)
			continue
		}
		overrideObj, overrideIsObj := v.(map[string]any)
		baseObj, baseIsObj := out[k].(map[string]any)
		if overrideIsObj && baseIsObj {
			out[k] = DeepMerge(baseObj, overrideObj)
			continue
		}
		out[k] = v
	}
	return out
}

// MergeJSON applies DeepMerge to two raw JSON object encodings, returning
// the merged object re-encoded as JSON. A nil or empty overrideJSON is a
// no-op and returns baseJSON unchanged.
func MergeJSON(baseJSON, overrideJSON []byte) ([]byte, error) {
	if len(overrideJSON) == 0 {
		return baseJSON, nil
	}
	base, err := decodeObject(baseJSON)
	if err != nil {
		return nil, err
	}
	override, err := decodeObject(overrideJSON)
	if err != nil {
		return nil, err
	}
	return encodeObject(DeepMerge(base, override))
}
