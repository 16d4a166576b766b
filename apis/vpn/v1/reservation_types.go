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

// ReservationPhase is a short description of a Reservation's current state.
type ReservationPhase string

const (
	ReservationPending     ReservationPhase = "Pending"
	ReservationActive      ReservationPhase = "Active"
	ReservationTerminating ReservationPhase = "Terminating"
)

// ReservationSpec is a cross-namespace back-reference to the Consumer that
// holds this slot. The Reservation lives in the Provider's namespace; the
// Consumer it guards lives in the Mask's namespace.
type ReservationSpec struct {
	// ConsumerName of the Consumer reserving this slot.
	ConsumerName string `json:"consumerName"`

	// ConsumerNamespace of the Consumer reserving this slot.
	ConsumerNamespace string `json:"consumerNamespace"`

	// ConsumerUID of the Consumer reserving this slot. If a Consumer
	// with this name exists but carries a different UID, the
	// Reservation is dangling and eligible for pruning.
	ConsumerUID string `json:"consumerUid"`
}

// ReservationStatus is the observed state of a Reservation.
type ReservationStatus struct {
	Phase       ReservationPhase `json:"phase,omitempty"`
	Message     string           `json:"message,omitempty"`
	LastUpdated string           `json:"lastUpdated,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=".status.phase"
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=".status.lastUpdated"

// Reservation is a per-slot lock, named deterministically
// "{providerName}-{slot}" in the Provider's namespace. Its finalizer
// bridges the cluster's single-namespace owner-reference garbage
// collection into a two-namespace dependency: deletion is blocked until
// the paired Consumer is confirmed gone.
//
// Reservation resources are created and managed exclusively by the
// operator; they should never be created or edited by hand.
type Reservation struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ReservationSpec   `json:"spec,omitempty"`
	Status ReservationStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// ReservationList is a list of Reservation resources.
type ReservationList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Reservation `json:"items"`
}

func (in *ReservationSpec) DeepCopyInto(out *ReservationSpec) {
	*out = *in
}

func (in *ReservationSpec) DeepCopy() *ReservationSpec {
	if in == nil {
		return nil
	}
	out := new(ReservationSpec)
	in.DeepCopyInto(out)
	return out
}

func (in *ReservationStatus) DeepCopyInto(out *ReservationStatus) {
	*out = *in
}

func (in *ReservationStatus) DeepCopy() *ReservationStatus {
	if in == nil {
		return nil
	}
	out := new(ReservationStatus)
	in.DeepCopyInto(out)
	return out
}

func (in *Reservation) DeepCopyInto(out *Reservation) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

func (in *Reservation) DeepCopy() *Reservation {
	if in == nil {
		return nil
	}
	out := new(Reservation)
	in.DeepCopyInto(out)
	return out
}

func (in *Reservation) DeepCopyObject() runtime.Object {
	return in.DeepCopy()
}

// SetLastUpdated stamps the status object's lastUpdated field.
func (in *Reservation) SetLastUpdated(rfc3339 string) {
	in.Status.LastUpdated = rfc3339
}

func (in *ReservationList) DeepCopyInto(out *ReservationList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]Reservation, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

func (in *ReservationList) DeepCopy() *ReservationList {
	if in == nil {
		return nil
	}
	out := new(ReservationList)
	in.DeepCopyInto(out)
	return out
}

func (in *ReservationList) DeepCopyObject() runtime.Object {
	return in.DeepCopy()
}
