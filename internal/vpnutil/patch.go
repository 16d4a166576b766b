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
	"time"

	"sigs.k8s.io/controller-runtime/pkg/client"
)

// StatusObject is implemented by every CRD kind's pointer type. It lets
// PatchStatus stamp lastUpdated without each reconciler repeating the
// boilerplate.
type StatusObject interface {
	client.Object
	// SetLastUpdated stamps the status object's lastUpdated field with an
	// RFC3339 timestamp.
	SetLastUpdated(rfc3339 string)
}

// PatchStatus applies mutate to obj in place, stamps lastUpdated, and
// issues a Server-Side Apply patch against the status subresource under
// the fixed ManagerName field-manager identity. Patching (rather than
// blindly overwriting with Update) avoids clobbering fields written
// concurrently by another reconciler pass.
func PatchStatus[T StatusObject](ctx context.Context, c client.Client, obj T, mutate func(T)) error {
	mutate(obj)
	obj.SetLastUpdated(nowRFC3339())
	err := c.Status().Patch(ctx, obj, client.Apply, client.FieldOwner(ManagerName), client.ForceOwnership)
	if err != nil {
		return Classify(err)
	}
	return nil
}

func nowRFC3339() string {
	return timeNow().UTC().Format(time.RFC3339)
}

// timeNow is a package variable so that tests can substitute the clock.
var timeNow = time.Now
