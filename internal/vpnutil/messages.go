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

// Status message constants, shared verbatim in meaning across reconcilers.
const (
	MsgPending        = "Resource first appeared to the controller."
	MsgTerminating    = "Resource deletion is pending garbage collection."
	MsgWaiting        = "Waiting on a slot from a Provider."
	MsgActive         = "Reserving slot with the assigned Provider."
	MsgErrNoProviders = "No valid Providers available."
)
