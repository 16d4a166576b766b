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

import "k8s.io/apimachinery/pkg/runtime"

// AssignedProvider records the Provider slot a Consumer (or the Mask it
// belongs to) has acquired through the allocation protocol.
type AssignedProvider struct {
	// Name of the assigned Provider resource.
	Name string `json:"name"`

	// Namespace of the assigned Provider resource.
	Namespace string `json:"namespace"`

	// UID of the assigned Provider resource, so a deleted-and-recreated
	// Provider with the same name is never mistaken for the original.
	UID string `json:"uid"`

	// Slot index assigned by the allocation protocol. Always < maxSlots.
	Slot int `json:"slot"`

	// UID of the Reservation object holding this slot.
	Reservation string `json:"reservation"`

	// Name of the Secret, in the Consumer's namespace, carrying a copy
	// of the Provider's credential blob.
	Secret string `json:"secret"`
}

// VerifyContainerOverrides carries raw JSON-mergeable overrides for each
// container of the verification pod. Validation of these is intentionally
// deferred to apply-time: Kubernetes core types don't provide first-class
// OpenAPI schemas that are convenient to embed here, so the fields accept
// arbitrary objects and are merged onto the controller-built template.
type VerifyContainerOverrides struct {
	// +kubebuilder:pruning:PreserveUnknownFields
	Init *runtime.RawExtension `json:"init,omitempty"`
	// +kubebuilder:pruning:PreserveUnknownFields
	VPN *runtime.RawExtension `json:"vpn,omitempty"`
	// +kubebuilder:pruning:PreserveUnknownFields
	Probe *runtime.RawExtension `json:"probe,omitempty"`
}

// VerifyOverrides carries overrides for the verification Pod as a whole,
// merged onto the controller-built template with a JSON deep merge.
type VerifyOverrides struct {
	Containers *VerifyContainerOverrides `json:"containers,omitempty"`

	// +kubebuilder:pruning:PreserveUnknownFields
	Pod *runtime.RawExtension `json:"pod,omitempty"`
}

// VerifySpec configures credential verification for a Provider.
type VerifySpec struct {
	// Skip disables verification entirely. Defaults to false.
	Skip *bool `json:"skip,omitempty"`

	// Timeout is a duration string (e.g. "60s") bounding how long the
	// verify pod is allowed to take before verification is considered
	// failed. Defaults to 60s.
	Timeout string `json:"timeout,omitempty"`

	// Interval is a duration string (e.g. "24h") for how often to
	// re-verify credentials. If unset, credentials are verified once.
	Interval string `json:"interval,omitempty"`

	// Overrides customizes the verification Pod template.
	Overrides *VerifyOverrides `json:"overrides,omitempty"`
}
