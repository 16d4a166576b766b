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
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// AddFinalizer merge-patches FinalizerName onto obj's metadata.finalizers.
// Idempotent: safe to call even if the finalizer is already present.
func AddFinalizer(ctx context.Context, c client.Client, obj client.Object) error {
	if HasFinalizer(obj) {
		return nil
	}
	finalizers := append(append([]string(nil), obj.GetFinalizers()...), FinalizerName)
	patch := []byte(fmt.Sprintf(`{"metadata":{"finalizers":%s}}`, marshalStrings(finalizers)))
	if err := c.Patch(ctx, obj, client.RawPatch(types.MergePatchType, patch)); err != nil {
		return Classify(err)
	}
	obj.SetFinalizers(finalizers)
	return nil
}

// RemoveFinalizer merge-patches FinalizerName off obj's metadata.finalizers.
// Oblivious to the object's continued existence: a NotFound response here is
// not an error, since the goal (the finalizer is gone) is already achieved.
func RemoveFinalizer(ctx context.Context, c client.Client, obj client.Object) error {
	remaining := make([]string, 0, len(obj.GetFinalizers()))
	for _, f := range obj.GetFinalizers() {
		if f != FinalizerName {
			remaining = append(remaining, f)
		}
	}
	var patch []byte
	if len(remaining) == 0 {
		patch = []byte(`{"metadata":{"finalizers":null}}`)
	} else {
		patch = []byte(fmt.Sprintf(`{"metadata":{"finalizers":%s}}`, marshalStrings(remaining)))
	}
	if err := c.Patch(ctx, obj, client.RawPatch(types.MergePatchType, patch)); err != nil {
		if IsNotFoundRaw(err) {
			return nil
		}
		return Classify(err)
	}
	obj.SetFinalizers(remaining)
	return nil
}

// HasFinalizer reports whether obj already carries FinalizerName.
func HasFinalizer(obj client.Object) bool {
	for _, f := range obj.GetFinalizers() {
		if f == FinalizerName {
			return true
		}
	}
	return false
}

func marshalStrings(ss []string) string {
	out := "["
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", s)
	}
	return out + "]"
}
