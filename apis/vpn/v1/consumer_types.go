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

// ConsumerPhase is a short description of a Consumer's current state.
type ConsumerPhase string

const (
	ConsumerPending        ConsumerPhase = "Pending"
	ConsumerWaiting        ConsumerPhase = "Waiting"
	ConsumerActive         ConsumerPhase = "Active"
	ConsumerTerminating    ConsumerPhase = "Terminating"
	ConsumerErrNoProviders ConsumerPhase = "ErrNoProviders"
)

// ConsumerSpec is inherited from the owning Mask's spec.
type ConsumerSpec struct {
	Providers []string `json:"providers,omitempty"`
}

// ConsumerStatus is the observed state of a Consumer.
type ConsumerStatus struct {
	Phase       ConsumerPhase `json:"phase,omitempty"`
	Message     string        `json:"message,omitempty"`
	LastUpdated string        `json:"lastUpdated,omitempty"`

	// Provider is set once a slot has been acquired through the
	// allocation protocol.
	Provider *AssignedProvider `json:"provider,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=".status.phase"
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=".status.lastUpdated"

// Consumer is the operator-internal holder of a Provider slot assignment.
// It is published as a CRD (Kubernetes has no non-user-visible custom
// resource mechanism) but is not meant to be manipulated directly.
type Consumer struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ConsumerSpec   `json:"spec,omitempty"`
	Status ConsumerStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// ConsumerList is a list of Consumer resources.
type ConsumerList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Consumer `json:"items"`
}

func (in *ConsumerSpec) DeepCopyInto(out *ConsumerSpec) {
	*out = *in
	if in.Providers != nil {
		out.Providers = append([]string(nil), in.Providers...)
	}
}

func (in *ConsumerSpec) DeepCopy() *ConsumerSpec {
	if in == nil {
		return nil
	}
	out := new(ConsumerSpec)
	in.DeepCopyInto(out)
	return out
}

func (in *AssignedProvider) DeepCopyInto(out *AssignedProvider) {
	*out = *in
}

func (in *AssignedProvider) DeepCopy() *AssignedProvider {
	if in == nil {
		return nil
	}
	out := new(AssignedProvider)
	in.DeepCopyInto(out)
	return out
}

func (in *ConsumerStatus) DeepCopyInto(out *ConsumerStatus) {
	*out = *in
	if in.Provider != nil {
		out.Provider = in.Provider.DeepCopy()
	}
}

func (in *ConsumerStatus) DeepCopy() *ConsumerStatus {
	if in == nil {
		return nil
	}
	out := new(ConsumerStatus)
	in.DeepCopyInto(out)
	return out
}

func (in *Consumer) DeepCopyInto(out *Consumer) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

func (in *Consumer) DeepCopy() *Consumer {
	if in == nil {
		return nil
	}
	out := new(Consumer)
	in.DeepCopyInto(out)
	return out
}

func (in *Consumer) DeepCopyObject() runtime.Object {
	return in.DeepCopy()
}

// SetLastUpdated stamps the status object's lastUpdated field.
func (in *Consumer) SetLastUpdated(rfc3339 string) {
	in.Status.LastUpdated = rfc3339
}

func (in *ConsumerList) DeepCopyInto(out *ConsumerList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]Consumer, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

func (in *ConsumerList) DeepCopy() *ConsumerList {
	if in == nil {
		return nil
	}
	out := new(ConsumerList)
	in.DeepCopyInto(out)
	return out
}

func (in *ConsumerList) DeepCopyObject() runtime.Object {
	return in.DeepCopy()
}
