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

// ProviderPhase is a short description of a Provider's current state.
type ProviderPhase string

const (
	ProviderPending           ProviderPhase = "Pending"
	ProviderVerifying         ProviderPhase = "Verifying"
	ProviderVerified          ProviderPhase = "Verified"
	ProviderReady             ProviderPhase = "Ready"
	ProviderActive            ProviderPhase = "Active"
	ProviderErrSecretNotFound ProviderPhase = "ErrSecretNotFound"
	ProviderErrVerifyFailed   ProviderPhase = "ErrVerifyFailed"
)

// ProviderSpec is the configuration for a Provider resource, which
// represents a VPN service account with a bounded number of concurrent
// sessions.
type ProviderSpec struct {
	// Secret names a credential blob, in the same namespace, whose keys
	// and values are injected into the VPN container verbatim.
	Secret string `json:"secret"`

	// MaxSlots is the hard capacity bound: how many Consumers may hold
	// an assignment to this Provider at once.
	// +kubebuilder:validation:Minimum=0
	MaxSlots int `json:"maxSlots"`

	// Tags are short names a Mask can use to select this Provider at
	// the exclusion of others. A Provider with no tags matches only Masks
	// whose providers list is empty.
	Tags []string `json:"tags,omitempty"`

	// Namespaces restricts which Mask namespaces may use this Provider.
	// Empty means all namespaces are permitted.
	Namespaces []string `json:"namespaces,omitempty"`

	// Verify configures credential verification via a probe pod.
	Verify *VerifySpec `json:"verify,omitempty"`
}

// ProviderStatus is the observed state of a Provider.
type ProviderStatus struct {
	Phase       ProviderPhase `json:"phase,omitempty"`
	Message     string        `json:"message,omitempty"`
	LastUpdated string        `json:"lastUpdated,omitempty"`
	LastVerified string       `json:"lastVerified,omitempty"`

	// ActiveSlots is the number of Reservations currently owned by this
	// Provider, clamped to MaxSlots.
	ActiveSlots int `json:"activeSlots,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Used",type=integer,JSONPath=".status.activeSlots"
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=".status.phase"
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=".status.lastUpdated"

// Provider represents a VPN service account with bounded capacity.
type Provider struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ProviderSpec   `json:"spec,omitempty"`
	Status ProviderStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// ProviderList is a list of Provider resources.
type ProviderList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Provider `json:"items"`
}

// DeepCopyInto copies the receiver into out.
func (in *ProviderSpec) DeepCopyInto(out *ProviderSpec) {
	*out = *in
	if in.Tags != nil {
		out.Tags = append([]string(nil), in.Tags...)
	}
	if in.Namespaces != nil {
		out.Namespaces = append([]string(nil), in.Namespaces...)
	}
	if in.Verify != nil {
		out.Verify = in.Verify.DeepCopy()
	}
}

// DeepCopy returns a deep copy of the receiver.
func (in *ProviderSpec) DeepCopy() *ProviderSpec {
	if in == nil {
		return nil
	}
	out := new(ProviderSpec)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the receiver into out.
func (in *VerifySpec) DeepCopyInto(out *VerifySpec) {
	*out = *in
	if in.Skip != nil {
		b := *in.Skip
		out.Skip = &b
	}
	if in.Overrides != nil {
		out.Overrides = in.Overrides.DeepCopy()
	}
}

// DeepCopy returns a deep copy of the receiver.
func (in *VerifySpec) DeepCopy() *VerifySpec {
	if in == nil {
		return nil
	}
	out := new(VerifySpec)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the receiver into out.
func (in *VerifyOverrides) DeepCopyInto(out *VerifyOverrides) {
	*out = *in
	if in.Containers != nil {
		out.Containers = in.Containers.DeepCopy()
	}
	if in.Pod != nil {
		out.Pod = in.Pod.DeepCopy()
	}
}

// DeepCopy returns a deep copy of the receiver.
func (in *VerifyOverrides) DeepCopy() *VerifyOverrides {
	if in == nil {
		return nil
	}
	out := new(VerifyOverrides)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the receiver into out.
func (in *VerifyContainerOverrides) DeepCopyInto(out *VerifyContainerOverrides) {
	*out = *in
	if in.Init != nil {
		out.Init = in.Init.DeepCopy()
	}
	if in.VPN != nil {
		out.VPN = in.VPN.DeepCopy()
	}
	if in.Probe != nil {
		out.Probe = in.Probe.DeepCopy()
	}
}

// DeepCopy returns a deep copy of the receiver.
func (in *VerifyContainerOverrides) DeepCopy() *VerifyContainerOverrides {
	if in == nil {
		return nil
	}
	out := new(VerifyContainerOverrides)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the receiver into out.
func (in *ProviderStatus) DeepCopyInto(out *ProviderStatus) {
	*out = *in
}

// DeepCopy returns a deep copy of the receiver.
func (in *ProviderStatus) DeepCopy() *ProviderStatus {
	if in == nil {
		return nil
	}
	out := new(ProviderStatus)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the receiver into out.
func (in *Provider) DeepCopyInto(out *Provider) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

// DeepCopy returns a deep copy of the receiver.
func (in *Provider) DeepCopy() *Provider {
	if in == nil {
		return nil
	}
	out := new(Provider)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *Provider) DeepCopyObject() runtime.Object {
	return in.DeepCopy()
}

// SetLastUpdated stamps the status object's lastUpdated field.
func (in *Provider) SetLastUpdated(rfc3339 string) {
	in.Status.LastUpdated = rfc3339
}

// DeepCopyInto copies the receiver into out.
func (in *ProviderList) DeepCopyInto(out *ProviderList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]Provider, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

// DeepCopy returns a deep copy of the receiver.
func (in *ProviderList) DeepCopy() *ProviderList {
	if in == nil {
		return nil
	}
	out := new(ProviderList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *ProviderList) DeepCopyObject() runtime.Object {
	return in.DeepCopy()
}
