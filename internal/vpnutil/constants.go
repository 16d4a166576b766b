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

// Package vpnutil holds the substrate shared by all four reconcilers:
// status patching, finalizer management, JSON deep merge, the error
// taxonomy, metrics, and timing constants.
package vpnutil

import "time"

const (
	// FinalizerName is the single finalizer token used across all four
	// custom resource kinds.
	FinalizerName = "vpn.beebs.dev/finalizer"

	// ProbeInterval governs both requeue cadence on settled resources and
	// the staleness threshold for idempotent status rewrites.
	ProbeInterval = 12 * time.Second

	// ErrorRequeueInterval is the fixed backoff applied after a reconciler
	// error of any kind.
	ErrorRequeueInterval = 5 * time.Second

	// DefaultVerifyTimeout bounds how long a verification pod is given to
	// prove the credentials work, when Provider.spec.verify.timeout is unset.
	DefaultVerifyTimeout = 60 * time.Second

	// OwnerUIDLabel is set on projected Secrets; its value is the owning
	// Provider's UID.
	OwnerUIDLabel = "vpn.beebs.dev/owner"

	// VerifyLabel is set on the verify-Mask and verify-Consumer; its value
	// is the UID of the Provider the controller wants to force-match,
	// bypassing the normal phase/tag/namespace eligibility filters.
	VerifyLabel = "vpn.beebs.dev/verify"

	// AppLabel is set to ManagerName on controller-created verify pods.
	AppLabel = "app"

	// ManagerName is both the app label value on auxiliary objects and the
	// field-manager identity used for status subresource patches.
	ManagerName = "vpn-operator"

	// VerifySuffix names the verify-Mask deterministically:
	// "{providerName}-verify" in the Provider's namespace.
	VerifySuffix = "-verify"
)
