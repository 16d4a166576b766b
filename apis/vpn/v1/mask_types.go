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
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// MaskPhase is a short description of a Mask's current state.
type MaskPhase string

const (
	MaskPending        MaskPhase = "Pending"
	MaskWaiting        MaskPhase = "Waiting"
	MaskActive         MaskPhase = "Active"
	MaskTerminating    MaskPhase = "Terminating"
	MaskErrNoProviders MaskPhase = "ErrNoProviders"
)

// MaskSpec expresses a user's demand for VPN credentials.
type MaskSpec struct {
	// Providers, if non-empty, restricts assignment to Provider
	// resources whose tags intersect this set.
	Providers []string `json:"providers,omitempty"`
}

// MaskStatus mirrors the phase of the Mask's owned Consumer.
type MaskStatus struct {
	Phase       MaskPhase `json:"phase,omitempty"`
	Message     string    `json:"message,omitempty"`
	LastUpdated string    `json:"lastUpdated,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=".status.phase"
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=".status.lastUpdated"

// Mask is the user-facing request for VPN credentials. It owns exactly one
// Consumer, which performs the actual slot acquisition.
type Mask struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   MaskSpec   `json:"spec,omitempty"`
	Status MaskStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// MaskList is a list of Mask resources.
type MaskList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Mask `json:"items"`
}

func (in *MaskSpec) DeepCopyInto(out *MaskSpec) {
	*out = *in
	if in.Providers != nil {
		out.Providers = append([]string(nil), in.Providers...)
	}
}

func (in *MaskSpec) DeepCopy() *MaskSpec {
	if in == nil {
		return nil
	}
	out := new(MaskSpec)
	in.DeepCopyInto(out)
	return out
}

func (in *MaskStatus) DeepCopyInto(out *MaskStatus) {
	*out = *in
}

func (in *MaskStatus) DeepCopy() *MaskStatus {
	if in == nil {
		return nil
	}
	out := new(MaskStatus)
	in.DeepCopyInto(out)
	return out
}

func (in *Mask) DeepCopyInto(out *Mask) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

func (in *Mask) DeepCopy() *Mask {
	if in == nil {
		return nil
	}
	out := new(Mask)
	in.DeepCopyInto(out)
	return out
}

func (in *Mask) DeepCopyObject() runtime.Object {
	return in.DeepCopy()
}

// SetLastUpdated stamps the status object's lastUpdated field.
func (in *Mask) SetLastUpdated(rfc3339 string) {
	in.Status.LastUpdated = rfc3339
}

func (in *MaskList) DeepCopyInto(out *MaskList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]Mask, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

func (in *MaskList) DeepCopy() *MaskList {
	if in == nil {
		return nil
	}
	out := new(MaskList)
	in.DeepCopyInto(out)
	return out
}

func (in *MaskList) DeepCopyObject() runtime.Object {
	return in.DeepCopy()
}
