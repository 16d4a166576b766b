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

package v1

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestProviderDeepCopyIsIndependent(t *testing.T) {
	skip := true
	p := &Provider{
		ObjectMeta: metav1.ObjectMeta{Name: "p0", Namespace: "default"},
		Spec: ProviderSpec{
			Secret:   "creds",
			MaxSlots: 3,
			Tags:     []string{"eu", "fast"},
			Verify: &VerifySpec{
				Skip: &skip,
				Overrides: &VerifyOverrides{
					Containers: &VerifyContainerOverrides{},
				},
			},
		},
		Status: ProviderStatus{Phase: ProviderReady, ActiveSlots: 2},
	}

	out := p.DeepCopy()
	if diff := cmp.Diff(p, out); diff != "" {
		t.Fatalf("deep copy diverged from original (-want +got):\n%s", diff)
	}

	out.Spec.Tags[0] = "mutated"
	*out.Spec.Verify.Skip = false
	if p.Spec.Tags[0] == "mutated" {
		t.Fatal("mutating the copy's Tags slice mutated the original")
	}
	if *p.Spec.Verify.Skip != true {
		t.Fatal("mutating the copy's Verify.Skip mutated the original")
	}
}

func TestMaskDeepCopyIsIndependent(t *testing.T) {
	m := &Mask{
		ObjectMeta: metav1.ObjectMeta{Name: "m0", Namespace: "default"},
		Spec:       MaskSpec{Providers: []string{"p0", "p1"}},
		Status:     MaskStatus{Phase: MaskActive},
	}
	out := m.DeepCopy()
	out.Spec.Providers[0] = "mutated"
	if m.Spec.Providers[0] == "mutated" {
		t.Fatal("mutating the copy's Providers slice mutated the original")
	}
}
